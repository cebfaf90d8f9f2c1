package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/gymstats/gymstats-hub/internal/application/query"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

func searchCmd(e *env) *cobra.Command {
	var (
		climber string
		gym     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search problems with the filter language",
		Long: `Search problems with the filter language.

Clauses are separated by ';'. Keys: g (grade), gym, hh (handhold), fw
(footwork), t (wall type), me (move). Comparators: = < > <= >=.
The words top and fail keep problems the climber has topped or only tried;
the attributes over-represented among them are reported.

Examples:
  gymstats search "hh = crimps; g > blue" --gym cd1
  gymstats search "gym = cd1; t = slab; top" --climber c1`,
		Args: cobra.MinimumNArgs(1),
		RunE: e.withApp(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			res, err := app.SearchHandler().Handle(cmd.Context(), query.SearchQuery{
				Raw:        strings.Join(args, " "),
				ClimberID:  shared.ClimberID(climber),
				GymContext: gym,
			})
			if err != nil {
				return err
			}
			if p.json {
				return p.JSON(res)
			}

			for _, d := range res.Diagnostics {
				p.Printf("%s %s\n", warn("warning:"), d)
			}
			if !res.Filters.IsEmpty() {
				p.Printf("%s %s\n", dim("filters:"), res.Filters.String())
			}

			p.Heading(plural(len(res.Problems), "problem"))
			rows := make([][]string, 0, len(res.Problems))
			for _, pb := range res.Problems {
				rows = append(rows, problemRow(pb))
			}
			if len(rows) > 0 {
				p.Table([]string{"ID", "GYM", "GRADE", "TAGS", ""}, rows)
			}

			if res.Filters.Status != 0 {
				p.Overrep("Over-represented", res.Overrepresented)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&climber, "climber", "c", "", "climber for the top/fail filters")
	cmd.Flags().StringVarP(&gym, "gym", "g", "", "gym whose grade scale applies when the query names none")

	return cmd
}
