package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gymstats/gymstats-hub/internal/application/command"
	"github.com/gymstats/gymstats-hub/pkg/timeutil"
)

func snapshotCmd(e *env) *cobra.Command {
	var (
		interval string
		at       string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Statistics of the week, month or year containing a date",
		Long: `Statistics of the week, month or year containing a date.

Closed periods are stored and served from the store on later calls;
the current period is always recomputed. --force recomputes a stored one.

Examples:
  gymstats snapshot -c c1 --interval week
  gymstats snapshot -c c1 --interval month --at 2024-02-10 --force
  gymstats snapshot list -c c1 --interval month`,
		RunE: e.withApp(func(cmd *cobra.Command, _ []string, app *App, p printer) error {
			iv, err := command.ParseInterval(interval)
			if err != nil {
				return err
			}
			ref := time.Now().In(app.Config.App.Location)
			if at != "" {
				if ref, err = timeutil.ParseDate(at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			res, err := app.SnapshotHandler().Handle(cmd.Context(), command.SnapshotIntervalCommand{
				ClimberID: climberFlag(cmd),
				Interval:  iv,
				At:        ref,
				Force:     force,
			})
			if err != nil {
				return err
			}
			if p.json {
				return p.JSON(map[string]any{
					"interval":    iv.String(),
					"interval_id": res.Snapshot.IntervalID,
					"year":        res.Snapshot.Year,
					"from":        timeutil.FormatDate(res.From),
					"to":          timeutil.FormatDate(res.To),
					"reused":      res.Reused,
					"statistics":  res.Statistics,
				})
			}

			source := "computed"
			if res.Reused {
				source = "stored " + res.Snapshot.CreatedAt.Format(time.RFC3339)
			}
			p.Printf("%s %d/%d  %s .. %s  %s\n",
				iv, res.Snapshot.IntervalID, res.Snapshot.Year,
				timeutil.FormatDate(res.From), timeutil.FormatDate(res.To), dim(source))
			printWindowStatistics(p, res.Statistics)
			return nil
		}),
	}

	requireClimber(cmd)
	cmd.Flags().StringVarP(&interval, "interval", "i", "week", "week, month or year")
	cmd.Flags().StringVar(&at, "at", "", "reference date (default: today)")
	cmd.Flags().BoolVar(&force, "force", false, "recompute a stored closed period")

	cmd.AddCommand(snapshotListCmd(e))

	return cmd
}

func snapshotListCmd(e *env) *cobra.Command {
	var interval string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Stored snapshots of a climber, most recent first",
		RunE: e.withApp(func(cmd *cobra.Command, _ []string, app *App, p printer) error {
			iv, err := command.ParseInterval(interval)
			if err != nil {
				return err
			}
			snapshots, err := app.Snapshots.List(cmd.Context(), climberFlag(cmd), iv)
			if err != nil {
				return err
			}

			type row struct {
				IntervalID int       `json:"interval_id"`
				Year       int       `json:"year"`
				Sessions   int       `json:"sessions"`
				Boulders   int       `json:"boulders"`
				CreatedAt  time.Time `json:"created_at"`
			}
			out := make([]row, 0, len(snapshots))
			for _, s := range snapshots {
				stats, err := s.Statistics()
				if err != nil {
					return err
				}
				out = append(out, row{
					IntervalID: s.IntervalID,
					Year:       s.Year,
					Sessions:   stats.Sessions,
					Boulders:   stats.Breakdown.All.Problems,
					CreatedAt:  s.CreatedAt,
				})
			}
			if p.json {
				return p.JSON(out)
			}

			p.Heading(plural(len(out), iv.String()+" snapshot"))
			rows := make([][]string, 0, len(out))
			for _, r := range out {
				rows = append(rows, []string{
					strconv.Itoa(r.Year),
					strconv.Itoa(r.IntervalID),
					strconv.Itoa(r.Sessions),
					strconv.Itoa(r.Boulders),
					r.CreatedAt.Format(time.RFC3339),
				})
			}
			if len(rows) > 0 {
				p.Table([]string{"YEAR", strings.ToUpper(iv.String()), "SESSIONS", "BOULDERS", "STORED"}, rows)
			}
			return nil
		}),
	}

	requireClimber(cmd)
	cmd.Flags().StringVarP(&interval, "interval", "i", "week", "week, month or year")

	return cmd
}
