// Command replay re-runs feedback events through the update engine and gate
// and compares the actions against a fixture or the live decision log.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/replay"
	"github.com/danielpatrickdp/persona-state/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to persona_state.db (DB mode)")
	userID := flag.String("user", "", "user whose decision log to replay (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	dbMode := *dbPath != "" && *userID != ""
	if dbMode == (*fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/persona_state.db --user ID")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *userID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

// runDBMode replays every logged event from the default persona. Users created
// with a custom initial persona diverge from the first committed event.
func runDBMode(dbPath, userID string) int {
	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	decisions, err := logging.NewDecisionLog(store.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open decision log: %v\n", err)
		return 2
	}
	entries, err := decisions.ListDecisions(context.Background(), logging.Filter{UserID: userID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "list decisions: %v\n", err)
		return 2
	}
	run, err := replay.FromDecisions(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "extract events: %v\n", err)
		return 2
	}
	if len(run.Events) == 0 {
		fmt.Fprintf(os.Stderr, "no replayable decisions for %s\n", userID)
		return 2
	}

	results, final, err := replay.Replay(state.Default(userID), run.Events, replay.DefaultReplayConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}
	if run.Skipped > 0 {
		fmt.Printf("(%d deferred entries skipped)\n", run.Skipped)
	}
	return printComparison(results, run.Expected, final)
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	start, err := f.ToStartState()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start state: %v\n", err)
		return 2
	}
	results, final, err := replay.Replay(start, f.ToEvents(), f.Config.ToReplayConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	code := printComparison(results, f.ExpectedResults, final)
	if msgs := f.Check(results, final); len(msgs) > 0 {
		fmt.Println("\nFixture mismatches:")
		for _, m := range msgs {
			fmt.Printf("  %s\n", m)
		}
		code = 1
	}
	return code
}

// #endregion fixture-mode

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.ReplayResult, expected []replay.FixtureExpectedResult, final state.PersonaState) int {
	fmt.Printf("%-12s| %-12s| %-12s| %s\n", "Event", "Expected", "Replayed", "Match")
	fmt.Printf("%-12s+%-13s+%-13s+%s\n",
		"------------", "-------------", "-------------", "------")

	total := min(len(results), len(expected))
	matches := 0
	for i := 0; i < total; i++ {
		exp, got := expected[i].Action, results[i].Action
		match := "DIFF"
		if exp == got {
			match = "OK"
			matches++
		}
		fmt.Printf("%-12s| %-12s| %-12s| %s\n", shortID(results[i].EventID), exp, got, match)
	}

	summary := replay.Summarize(results, final)
	diverge := total - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge (commits=%d drops=%d no_ops=%d gate_rejects=%d, final version %d)\n",
		total, matches, diverge, summary.Commits, summary.Drops, summary.NoOps, summary.GateRejects, final.Version)
	if diverge > 0 {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion output
