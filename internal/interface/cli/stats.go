package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gymstats/gymstats-hub/internal/application/query"
	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/timeutil"
)

// rangeFlags holds --from/--to. Empty bounds are open.
type rangeFlags struct {
	from, to string
}

func (r *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "first day included (YYYY-MM-DD)")
	cmd.Flags().StringVar(&r.to, "to", "", "first day excluded (YYYY-MM-DD)")
}

func (r *rangeFlags) parse() (time.Time, time.Time, error) {
	from, err := timeutil.ParseDate(r.from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
	}
	to, err := timeutil.ParseDate(r.to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	return from, to, nil
}

func requireClimber(cmd *cobra.Command) {
	cmd.Flags().StringP("climber", "c", "", "climber id")
	_ = cmd.MarkFlagRequired("climber")
}

func climberFlag(cmd *cobra.Command) shared.ClimberID {
	id, _ := cmd.Flags().GetString("climber")
	return shared.ClimberID(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

func statsCmd(e *env) *cobra.Command {
	var (
		window rangeFlags
		prior  bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Achievements of a climber over a period",
		Long: `Achievements of a climber over a period.

Every problem tried in the period counts once, with its best achievement
(flash, top, zone or fail), split by rank against the climber's expected
grade band. With --prior, earlier sessions decide what is new.

Examples:
  gymstats stats -c c1 --from 2024-03-01 --to 2024-04-01
  gymstats stats -c c1 --prior=false`,
		RunE: e.withApp(func(cmd *cobra.Command, _ []string, app *App, p printer) error {
			from, to, err := window.parse()
			if err != nil {
				return err
			}
			stats, err := app.WindowHandler().Handle(cmd.Context(), query.WindowQuery{
				ClimberID: climberFlag(cmd),
				From:      from,
				To:        to,
				WithPrior: prior,
			})
			if err != nil {
				return err
			}
			if p.json {
				return p.JSON(stats)
			}
			printWindowStatistics(p, stats)
			return nil
		}),
	}

	requireClimber(cmd)
	window.bind(cmd)
	cmd.Flags().BoolVar(&prior, "prior", true, "compare with sessions before --from")

	return cmd
}

func printWindowStatistics(p printer, stats *query.WindowStatistics) {
	p.Heading(fmt.Sprintf("%s, %s", plural(stats.Sessions, "session"), stats.DurationHuman))
	if stats.Sessions == 0 {
		return
	}

	rows := [][]string{countsRow("all", stats.Breakdown.All)}
	for _, r := range climbing.Ranks {
		c := stats.Breakdown.ByRank[r]
		if c.Problems == 0 {
			continue
		}
		rows = append(rows, countsRow(r.String(), c))
	}
	p.Table([]string{"RANK", "BOULDERS", "FLASH", "TOP", "ZONE", "FAIL", "NEW TOPS"}, rows)

	if stats.HardTops != nil {
		p.Printf("%s %s\n", dim("hard tops:"), good(strconv.Itoa(*stats.HardTops)))
	}

	if len(stats.ByWallType) > 0 {
		p.Heading("Wall types")
		var rows [][]string
		for _, wt := range sortedKeys(stats.ByWallType) {
			s := stats.ByWallType[wt]
			var newTops, repeats int
			for _, split := range s.ByRank {
				newTops += split[0]
				repeats += split[1]
			}
			rows = append(rows, []string{wt, strconv.Itoa(s.Boulders), strconv.Itoa(newTops), strconv.Itoa(repeats)})
		}
		p.Table([]string{"TYPE", "BOULDERS", "NEW TOPS", "REPEATS"}, rows)
	}
}

func countsRow(label string, c achievement.Counts) []string {
	return []string{
		label,
		strconv.Itoa(c.Problems),
		strconv.Itoa(c.Flashes),
		strconv.Itoa(c.Tops),
		strconv.Itoa(c.Zones),
		strconv.Itoa(c.Fails),
		strconv.Itoa(c.NewTops + c.NewFlashes),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STRENGTHS
// ══════════════════════════════════════════════════════════════════════════════

func strengthsCmd(e *env) *cobra.Command {
	var window rangeFlags

	cmd := &cobra.Command{
		Use:   "strengths",
		Short: "Attributes over-represented among topped and failed problems",
		RunE: e.withApp(func(cmd *cobra.Command, _ []string, app *App, p printer) error {
			from, to, err := window.parse()
			if err != nil {
				return err
			}
			res, err := app.StrengthsHandler().Handle(cmd.Context(), query.StrengthsQuery{
				ClimberID: climberFlag(cmd),
				From:      from,
				To:        to,
			})
			if err != nil {
				return err
			}
			if p.json {
				return p.JSON(res)
			}

			p.Printf("%s tried, %s topped\n", plural(res.Tried, "problem"), good(strconv.Itoa(res.Topped)))
			p.Overrep("Strengths", res.Strengths)
			p.Overrep("Weaknesses", res.Weaknesses)
			return nil
		}),
	}

	requireClimber(cmd)
	window.bind(cmd)

	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func sessionsCmd(e *env) *cobra.Command {
	var window rangeFlags

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Per-session reports: success rate, wall types, holds and grades",
		RunE: e.withApp(func(cmd *cobra.Command, _ []string, app *App, p printer) error {
			from, to, err := window.parse()
			if err != nil {
				return err
			}
			reports, err := app.SessionReportsHandler().Handle(cmd.Context(), query.SessionReportsQuery{
				ClimberID: climberFlag(cmd),
				From:      from,
				To:        to,
			})
			if err != nil {
				return err
			}
			if p.json {
				return p.JSON(reports)
			}

			rows := make([][]string, 0, len(reports))
			for _, r := range reports {
				success := "-"
				if r.Successes != nil {
					success = strconv.Itoa(*r.Successes) + "%"
				}
				grades := make([]string, 0, len(r.Grades))
				for _, g := range r.Grades {
					grades = append(grades, fmt.Sprintf("%s %d/%d", g.Label, g.Split[0], g.Split[0]+g.Split[1]))
				}
				rows = append(rows, []string{
					timeutil.FormatDate(r.Date),
					string(r.SessionID),
					r.Gym,
					timeutil.FormatHours(r.Duration),
					success,
					strings.Join(grades, ", "),
				})
			}
			p.Heading(plural(len(reports), "session"))
			if len(rows) > 0 {
				p.Table([]string{"DATE", "SESSION", "GYM", "TIME", "TOPS", "GRADES"}, rows)
			}
			return nil
		}),
	}

	requireClimber(cmd)
	window.bind(cmd)

	return cmd
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
