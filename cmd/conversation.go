package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/config"
	"github.com/otherjamesbrown/voxreel/pkg/conversation"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
	"github.com/otherjamesbrown/voxreel/pkg/snapshot"
)

// TurnView is the listing form of a turn.
type TurnView struct {
	ID         string            `json:"id" yaml:"id"`
	Direction  segment.Direction `json:"direction" yaml:"direction"`
	Start      time.Time         `json:"start" yaml:"start"`
	End        time.Time         `json:"end" yaml:"end"`
	SegmentIDs []string          `json:"segment_ids" yaml:"segment_ids"`
	Text       string            `json:"text,omitempty" yaml:"text,omitempty"`
}

// TurnsReport is the output of the turns command.
type TurnsReport struct {
	Root           string        `json:"root" yaml:"root"`
	MergeThreshold time.Duration `json:"merge_threshold" yaml:"merge_threshold"`
	Turns          []TurnView    `json:"turns" yaml:"turns"`
}

// SessionView is the listing form of a session.
type SessionView struct {
	Index      int       `json:"index" yaml:"index"`
	ID         string    `json:"id" yaml:"id"`
	Start      time.Time `json:"start" yaml:"start"`
	End        time.Time `json:"end" yaml:"end"`
	TurnIDs    []string  `json:"turn_ids" yaml:"turn_ids"`
	SegmentIDs []string  `json:"segment_ids" yaml:"segment_ids"`
}

// SessionsReport is the output of the sessions command.
type SessionsReport struct {
	Root       string        `json:"root" yaml:"root"`
	SessionGap time.Duration `json:"session_gap" yaml:"session_gap"`
	Sessions   []SessionView `json:"sessions" yaml:"sessions"`
	SnapshotID string        `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
}

func newTurnView(t conversation.Turn) TurnView {
	return TurnView{
		ID:         t.ID,
		Direction:  t.Direction,
		Start:      t.Start,
		End:        t.End,
		SegmentIDs: t.SegmentIDs(),
		Text:       t.Text(),
	}
}

func newSessionView(s conversation.Session) SessionView {
	return SessionView{
		Index:      s.Index,
		ID:         s.ID,
		Start:      s.Start,
		End:        s.End,
		TurnIDs:    s.TurnIDs(),
		SegmentIDs: s.SegmentIDs(),
	}
}

// groupingKeys maps grouping flags to configuration keys.
var groupingKeys = map[string]string{
	"merge-threshold": "merge_threshold",
	"session-gap":     "session_gap",
}

// addGroupingFlags registers the merge threshold and, for session aware
// commands, the session gap override.
func addGroupingFlags(cmd *cobra.Command, sessions bool) {
	cmd.Flags().Duration("merge-threshold", config.DefaultMergeThreshold, "Merge same-direction segments closer than this (0 disables merging)")
	if sessions {
		cmd.Flags().Duration("session-gap", config.DefaultSessionGap, "Start a new session after a silence this long")
	}
}

// NewTurnsCommand creates the turns command.
func NewTurnsCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "turns <root>",
		Short: "Group segments into conversational turns",
		Long: `Scan a storage root and group its segments into turns.

Segments are ordered by timestamp, with the user first when two segments
start at the same instant. Consecutive segments in the same direction merge
into one turn when the next starts less than the merge threshold after the
previous one ends.

Examples:
  voxreel turns ./recordings
  voxreel turns ./recordings --merge-threshold 3s --output yaml`,
		Args: cobra.ExactArgs(1),
	}
	addGroupingFlags(cmd, false)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if _, err := deps.applyFlagOverrides(cmd, groupingKeys); err != nil {
			return err
		}
		cat, turns, err := deps.conversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		report := TurnsReport{
			Root:           cat.Root(),
			MergeThreshold: deps.Config.MergeThreshold,
			Turns:          make([]TurnView, len(turns)),
		}
		for i, t := range turns {
			report.Turns[i] = newTurnView(t)
		}
		return render(cmd.OutOrStdout(), deps.Config.OutputFormat, report, func(w io.Writer) error {
			return outputTurnsText(w, report)
		})
	}
	return cmd
}

func outputTurnsText(w io.Writer, r TurnsReport) error {
	fmt.Fprintf(w, "Turns: %d (merge threshold %s)\n\n", len(r.Turns), r.MergeThreshold)
	if len(r.Turns) == 0 {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tSTART\tDIR\tSEGMENTS\tTEXT")
	for i, t := range r.Turns {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			i+1,
			formatTime(t.Start),
			t.Direction.Label(),
			len(t.SegmentIDs),
			truncate(valueOrDefault(t.Text, "-"), 60))
	}
	return tw.Flush()
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var save bool
	cmd := &cobra.Command{
		Use:   "sessions <root>",
		Short: "Split a conversation into sessions",
		Long: `Scan a storage root, build turns and split them into sessions.

A new session starts when a turn begins at least the session gap after the
previous turn ends. Sessions are numbered from 1 in chronological order.

With --save the session layout is stored as a snapshot so later compiles can
refer to it with --snapshot even after new recordings arrive.

Examples:
  voxreel sessions ./recordings
  voxreel sessions ./recordings --session-gap 10m
  voxreel sessions ./recordings --save`,
		Args: cobra.ExactArgs(1),
	}
	addGroupingFlags(cmd, true)
	cmd.Flags().BoolVar(&save, "save", false, "Store the sessions as a snapshot")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if _, err := deps.applyFlagOverrides(cmd, groupingKeys); err != nil {
			return err
		}
		ctx := cmd.Context()
		cat, turns, err := deps.conversation(ctx, args[0])
		if err != nil {
			return err
		}
		cfg := deps.Config
		sessions, err := conversation.DetectSessions(turns, cfg.SessionGap)
		if err != nil {
			return err
		}

		report := SessionsReport{
			Root:       cat.Root(),
			SessionGap: cfg.SessionGap,
			Sessions:   make([]SessionView, len(sessions)),
		}
		for i, s := range sessions {
			report.Sessions[i] = newSessionView(s)
		}

		if save {
			store, closeStore, err := deps.OpenSnapshots(ctx, deps)
			if err != nil {
				return fmt.Errorf("opening snapshot store: %w", err)
			}
			defer closeStore()

			snap := snapshot.New(cat.Root(), cfg.MergeThreshold, cfg.SessionGap, sessions)
			if err := store.Save(ctx, snap); err != nil {
				return fmt.Errorf("saving snapshot: %w", err)
			}
			deps.logger().Info("Snapshot saved",
				logging.F("snapshot_id", snap.ID),
				logging.F("sessions", len(snap.Sessions)))
			report.SnapshotID = snap.ID
		}

		return render(cmd.OutOrStdout(), cfg.OutputFormat, report, func(w io.Writer) error {
			return outputSessionsText(w, report)
		})
	}
	return cmd
}

func outputSessionsText(w io.Writer, r SessionsReport) error {
	fmt.Fprintf(w, "Sessions: %d (gap %s)\n\n", len(r.Sessions), r.SessionGap)
	if len(r.Sessions) > 0 {
		tw := newTable(w)
		fmt.Fprintln(tw, "#\tID\tSTART\tEND\tDURATION\tTURNS\tSEGMENTS")
		for _, s := range r.Sessions {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
				s.Index,
				s.ID,
				formatTime(s.Start),
				formatTime(s.End),
				formatDuration(s.End.Sub(s.Start)),
				len(s.TurnIDs),
				len(s.SegmentIDs))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if r.SnapshotID != "" {
		fmt.Fprintf(w, "\nSaved snapshot: %s\n", r.SnapshotID)
	}
	return nil
}
