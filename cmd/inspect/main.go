// Command inspect reads a persona database for debugging: snapshots, change
// history, the decision log and today's targets.
package main

import (
	"fmt"
	"os"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	"github.com/danielpatrickdp/persona-state/internal/config"
	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
	"github.com/spf13/cobra"
)

// #region main

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region app

// app holds the handles shared by every subcommand.
type app struct {
	dbPath  string
	jsonOut bool
	lang    string

	db        *state.Store
	personas  *persona.Store
	decisions *logging.DecisionLog
	activity  *activity.Store
}

func (a *app) open() error {
	db, err := state.NewStore(a.dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	decisions, err := logging.NewDecisionLog(db.DB())
	if err != nil {
		db.Close()
		return err
	}
	acts, err := activity.NewStore(db.DB())
	if err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.decisions = decisions
	a.activity = acts
	a.personas = persona.NewStore(db, update.NewEngine(nil, update.DefaultUpdateConfig()))
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func newRootCommand() *cobra.Command {
	a := &app{}
	defaults, err := config.Load()
	if err != nil {
		defaults = config.Config{DBPath: "persona_state.db", Language: "en"}
	}

	cmd := &cobra.Command{
		Use:           "inspect",
		Short:         "Inspect persona state, history and decisions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.open()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	cmd.PersistentFlags().StringVar(&a.dbPath, "db", defaults.DBPath, "path to the persona SQLite database")
	cmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output as JSON instead of text")
	cmd.PersistentFlags().StringVar(&a.lang, "lang", defaults.Language, "language for explanations")

	cmd.AddCommand(
		newUsersCommand(a),
		newStateCommand(a),
		newHistoryCommand(a),
		newDecisionsCommand(a),
		newTargetsCommand(a),
		newPruneCommand(a),
	)
	return cmd
}

// #endregion app
