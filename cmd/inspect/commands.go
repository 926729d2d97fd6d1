package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	"github.com/danielpatrickdp/persona-state/internal/explain"
	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/targets"
	"github.com/spf13/cobra"
)

// #region users

func newUsersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users with a stored persona",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.db.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), users)
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no users found")
				return nil
			}
			for _, u := range users {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}

// #endregion users

// #region state

func newStateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "state <user>",
		Short:   "Show the current persona with a plain-language summary",
		Args:    cobra.ExactArgs(1),
		Example: `inspect state u1 --lang pt-BR`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.personas.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				st.History = nil
				return printJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprint(cmd.OutOrStdout(), explain.NewRenderer(a.lang).Summary(st))
			return nil
		},
	}
}

// #endregion state

// #region history

func newHistoryCommand(a *app) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Show the change log, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.personas.History(cmd.Context(), args[0], last)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			fmt.Fprint(cmd.OutOrStdout(), explain.NewRenderer(a.lang).ChangeLog(recs))
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent records (0 = all)")
	return cmd
}

// #endregion history

// #region decisions

func newDecisionsCommand(a *app) *cobra.Command {
	var last int
	var decision string
	cmd := &cobra.Command{
		Use:   "decisions <user>",
		Short: "Show what happened to each feedback event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.decisions.ListDecisions(cmd.Context(), logging.Filter{UserID: args[0], Decision: decision, Limit: last})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no decisions found")
				return nil
			}
			printDecisionTable(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent decisions (0 = all)")
	cmd.Flags().StringVar(&decision, "decision", "", "filter by decision (commit, no_op, drop, deferred)")
	return cmd
}

func printDecisionTable(w io.Writer, entries []logging.DecisionEntry) {
	fmt.Fprintf(w, "%-8s  %-10s  %-34s  %6s  %5s  %-9s  %s\n",
		"Event", "Kind", "Field", "Dir", "Conf", "Decision", "Reason")
	fmt.Fprintf(w, "%-8s+-%-10s+-%-34s+-%6s+-%5s+-%-9s+-%s\n",
		"--------", "----------", "----------------------------------", "------", "-----", "---------", "--------------------")
	for _, e := range entries {
		field := e.TargetField
		if field == "" {
			field = "—"
		}
		fmt.Fprintf(w, "%-8s  %-10s  %-34s  %6.2f  %5.2f  %-9s  %s\n",
			shortID(e.EventID), e.Kind, field, e.Direction, e.Confidence, e.Decision, e.Reason)
	}
}

// #endregion decisions

// #region targets

func newTargetsCommand(a *app) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "targets <user>",
		Short: "Show the day's targets and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().UTC()
			if day != "" {
				d, err := time.Parse(time.DateOnly, day)
				if err != nil {
					return fmt.Errorf("parse --day: %w", err)
				}
				at = d.Add(23*time.Hour + 59*time.Minute)
			}
			st, err := a.personas.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			recent, err := a.activity.Since(cmd.Context(), args[0], at.AddDate(0, 0, -29))
			if err != nil {
				return err
			}
			t := targets.ComputeFor(st, recent, at)
			p := t.Progress(recent)
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), p)
			}
			printProgress(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to compute, YYYY-MM-DD (default today)")
	return cmd
}

func printProgress(w io.Writer, p targets.Progress) {
	t := p.Targets
	fmt.Fprintf(w, "Day:        %s\n", t.Day.Format(time.DateOnly))
	fmt.Fprintf(w, "Multiplier: %.2f\n", t.Multiplier)
	fmt.Fprintf(w, "Fatigue:    %.2f (%d signals)\n", t.FatigueFactor, t.FatigueSignals)
	fmt.Fprintf(w, "Rationale:  %s\n\n", t.Rationale)
	fmt.Fprintf(w, "%-8s  %6s  %9s  %9s\n", "Action", "Target", "Completed", "Remaining")
	for _, k := range []activity.Kind{activity.KindPost, activity.KindReply, activity.KindLike, activity.KindFollow} {
		fmt.Fprintf(w, "%-8s  %6d  %9d  %9d\n", k, t.For(k), p.Completed[k], p.Remaining[k])
	}
	fmt.Fprintf(w, "\nComplete:   %.0f%%\n", p.Percentage)
}

// #endregion targets

// #region prune

func newPruneCommand(a *app) *cobra.Command {
	var policy persona.RetentionPolicy
	cmd := &cobra.Command{
		Use:   "prune <user>",
		Short: "Delete old change records; the version counter is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.personas.Prune(cmd.Context(), args[0], policy)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&policy.KeepRecent, "keep", 100, "records to keep")
	cmd.Flags().BoolVar(&policy.KeepOutcome, "keep-outcome", true, "never delete outcome-driven records")
	return cmd
}

// #endregion prune

// #region output

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if id == "" {
		return "—"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
