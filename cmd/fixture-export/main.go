// Command fixture-export writes a user's decision log as a replay fixture, so a
// live session can be pinned as a regression test.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/replay"
	"github.com/danielpatrickdp/persona-state/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to persona_state.db")
	userID := flag.String("user", "", "user whose decision log to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	description := flag.String("description", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *userID == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --user ID --out path/to/fixture.json [--description text]")
		os.Exit(2)
	}

	if err := run(*dbPath, *userID, *outPath, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

// run exports the whole log: a fixture always replays from the defaults, so a
// suffix of the log would not reproduce its recorded actions.
func run(dbPath, userID, outPath, description string) error {
	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	decisions, err := logging.NewDecisionLog(store.DB())
	if err != nil {
		return err
	}
	entries, err := decisions.ListDecisions(context.Background(), logging.Filter{UserID: userID})
	if err != nil {
		return err
	}
	if description == "" {
		description = fmt.Sprintf("decision log export for %s", userID)
	}
	f, err := replay.ExportFixture(userID, description, entries)
	if err != nil {
		return err
	}
	if len(f.Events) == 0 {
		return fmt.Errorf("no replayable decisions for %s", userID)
	}
	fmt.Printf("Found %d events (%d commits)\n", len(f.Events), f.ExpectedVersion)
	return writeFixture(f, outPath)
}

// #endregion extract

// #region output

func writeFixture(f *replay.Fixture, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Printf("Wrote fixture to %s\n", path)
	return nil
}

// #endregion output
