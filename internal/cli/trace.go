package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/engine"
	"github.com/roach88/vigil/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - filter to one session
	Action   string // optional - filter mutations to one action
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Mutations []journal.Mutation `json:"mutations"`
	Sessions  []journal.Session  `json:"sessions"`
	Stats     TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the journal.
type TraceStats struct {
	Mutations int   `json:"mutations"`
	LastSeq   int64 `json:"last_seq"`
	Sessions  int   `json:"sessions"`
	Violated  int   `json:"violated"`
	Failed    int   `json:"failed"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled mutations and session outcomes",
		Long: `Show the mutation history and session outcomes recorded in a journal
by "vigil run --db".

Mutations are listed in seq order, sessions in the order they finished.

Examples:
  vigil trace --db ./vigil.db
  vigil trace --db ./vigil.db --session session-horse
  vigil trace --db ./vigil.db --action increment --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "filter to one session id")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter mutations to one action type")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd)

	j, err := journal.Open(opts.Database)
	if err != nil {
		_ = f.Fail(ErrCodeJournal, err)
		return exitError(ExitCommandError, "failed to open database", err)
	}
	defer j.Close()

	mutations, err := j.Mutations(ctx)
	if err != nil {
		return exitError(ExitCommandError, "failed to read mutations", err)
	}
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return exitError(ExitCommandError, "failed to read sessions", err)
	}

	result := buildTrace(mutations, sessions, opts.Session, opts.Action)

	return f.Result(result, nil, func(w io.Writer) { printTraceText(w, result) })
}

// buildTrace filters the journal and computes stats. Stats describe the
// filtered view.
func buildTrace(mutations []journal.Mutation, sessions []journal.Session, session, action string) TraceResult {
	result := TraceResult{
		Mutations: []journal.Mutation{},
		Sessions:  []journal.Session{},
	}

	for _, m := range mutations {
		if action != "" && m.Action != action {
			continue
		}
		result.Mutations = append(result.Mutations, m)
		result.Stats.LastSeq = max(result.Stats.LastSeq, m.Seq)
	}

	for _, s := range sessions {
		if session != "" && s.ID != session {
			continue
		}
		result.Sessions = append(result.Sessions, s)
		switch s.Outcome {
		case engine.OutcomeViolated:
			result.Stats.Violated++
		case engine.OutcomeFailed:
			result.Stats.Failed++
		}
	}

	result.Stats.Mutations = len(result.Mutations)
	result.Stats.Sessions = len(result.Sessions)
	return result
}

func printTraceText(w io.Writer, result TraceResult) {
	if len(result.Mutations) == 0 && len(result.Sessions) == 0 {
		fmt.Fprintln(w, "Journal is empty.")
		return
	}

	fmt.Fprintf(w, "Mutations (%d):\n", result.Stats.Mutations)
	for _, m := range result.Mutations {
		fmt.Fprintf(w, "  [%d] %s %s\n", m.Seq, m.Action, string(m.State))
	}

	fmt.Fprintf(w, "Sessions (%d):\n", result.Stats.Sessions)
	for _, s := range result.Sessions {
		line := fmt.Sprintf("  %s %s %s", s.ID, s.Kind, s.Outcome)
		if len(s.Violations) > 0 {
			line += " [" + strings.Join(s.Violations, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nStats: %d mutation(s), last seq %d, %d session(s), %d violated, %d failed\n",
		result.Stats.Mutations, result.Stats.LastSeq, result.Stats.Sessions,
		result.Stats.Violated, result.Stats.Failed)
}
