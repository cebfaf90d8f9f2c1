package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gymstats/gymstats-hub/internal/application/query"
	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/pkg/timeutil"
)

func gymCmd(e *env) *cobra.Command {
	var unknown string

	cmd := &cobra.Command{
		Use:   "gym <abv>",
		Short: "Per-grade progress of a climber on the current problems of a gym",
		Long: `Per-grade progress of a climber on the current problems of a gym.

Each problem still on the wall counts once under its grade with the
climber's best achievement, or "not tried". Grades outside the gym's
scale are kept as their own column (keep), merged under "unknown"
(group) or ignored (drop).

Examples:
  gymstats gym cd1 -c c1
  gymstats gym bo1 -c c1 --unknown group`,
		Args: cobra.ExactArgs(1),
		RunE: e.withApp(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			mode, err := query.ParseUnknownGrades(unknown)
			if err != nil {
				return err
			}
			progress, err := app.GymProgressHandler().Handle(cmd.Context(), query.GymProgressQuery{
				ClimberID: climberFlag(cmd),
				GymAbv:    args[0],
				Unknown:   mode,
			})
			if err != nil {
				return err
			}
			if p.json {
				return p.JSON(progress)
			}

			title := progress.Gym
			if !progress.Since.IsZero() {
				title += " since " + timeutil.FormatDate(progress.Since)
			}
			p.Heading(title + ", " + plural(progress.Sessions, "session"))

			names := make([]string, 0, len(achievement.Achievements)+1)
			for _, a := range achievement.Achievements {
				names = append(names, string(a))
			}
			names = append(names, achievement.NotTried)

			header := append([]string{""}, progress.Labels...)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				counts := progress.Counts[name]
				row := []string{name}
				for i := range progress.Labels {
					n := 0
					if i < len(counts) {
						n = counts[i]
					}
					row = append(row, strconv.Itoa(n))
				}
				rows = append(rows, row)
			}
			p.Table(header, rows)
			return nil
		}),
	}

	requireClimber(cmd)
	cmd.Flags().StringVar(&unknown, "unknown", "keep", "grades outside the scale: keep, group or drop")

	return cmd
}
