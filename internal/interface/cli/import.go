package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gymstats/gymstats-hub/internal/infrastructure/dataset"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

func importCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dataset.yaml>...",
		Short: "Import gyms, problems, climbers and sessions from YAML",
		Long: `Import gyms, problems, climbers and sessions from YAML.

Every record is an upsert keyed by its id, so a file can be imported again
after editing. Cached statistics are dropped afterwards.`,
		Args: cobra.MinimumNArgs(1),
		RunE: e.withApp(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			importer := dataset.NewImporter(app.Store, app.Logger)

			var total dataset.Stats
			for _, path := range args {
				ds, err := dataset.Load(path)
				if err != nil {
					return err
				}
				stats, err := importer.Import(cmd.Context(), ds)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				total.Gyms += stats.Gyms
				total.Climbers += stats.Climbers
				total.Thresholds += stats.Thresholds
				total.Problems += stats.Problems
				total.Sessions += stats.Sessions
				total.Records += stats.Records
			}

			dropped, err := app.InvalidateCache(cmd.Context())
			if err != nil {
				app.Logger.Warn("cache invalidation failed", logger.Err(err))
			}

			if p.json {
				return p.JSON(map[string]any{"imported": total, "cache_entries_dropped": dropped, "backend": app.Backend})
			}
			p.Printf("%s %d gyms, %d climbers, %d problems, %d sessions (%d records) into %s\n",
				good("imported"), total.Gyms, total.Climbers, total.Problems, total.Sessions, total.Records, app.Backend)
			if dropped > 0 {
				p.Printf("%s %d cached results dropped\n", dim("cache:"), dropped)
			}
			return nil
		}),
	}
}
