package cli

import (
	"github.com/spf13/cobra"
)

// env is shared by the commands of one invocation. The App is opened on
// first use so that commands without storage stay cheap.
type env struct {
	opts Options
	json bool
	app  *App
}

func (e *env) open(cmd *cobra.Command) (*App, error) {
	if e.app != nil {
		return e.app, nil
	}
	e.opts.LogOutput = cmd.ErrOrStderr()
	app, err := Open(cmd.Context(), e.opts)
	if err != nil {
		return nil, err
	}
	e.app = app
	return app, nil
}

func (e *env) printer(cmd *cobra.Command) printer {
	return printer{out: cmd.OutOrStdout(), json: e.json}
}

func (e *env) close() {
	if e.app != nil {
		e.app.Close()
		e.app = nil
	}
}

type runFunc func(cmd *cobra.Command, args []string, app *App, p printer) error

// withApp opens the App for the duration of one command.
func (e *env) withApp(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := e.open(cmd)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd, args, app, e.printer(cmd))
	}
}

// NewRootCmd returns the gymstats command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:     "gymstats",
		Short:   "Progress statistics for bouldering gyms",
		Version: version,
		Long: `gymstats searches gym problems and computes a climber's progress:
achievements over a period, per-grade progress in a gym, strengths and
weaknesses, and stored weekly/monthly/yearly snapshots.

Storage is a local SQLite file unless DATABASE_URL points to PostgreSQL.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.opts.DBPath, "db", "", "SQLite database file (default: $SQLITE_PATH or gymstats.db)")
	flags.StringVar(&e.opts.ScalesFile, "scales", "", "YAML file overlaying the built-in grade scales")
	flags.StringVar(&e.opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&e.json, "json", false, "print JSON instead of text")

	root.AddCommand(searchCmd(e))
	root.AddCommand(statsCmd(e))
	root.AddCommand(gymCmd(e))
	root.AddCommand(strengthsCmd(e))
	root.AddCommand(sessionsCmd(e))
	root.AddCommand(snapshotCmd(e))
	root.AddCommand(scalesCmd(e))
	root.AddCommand(importCmd(e))

	return root
}
