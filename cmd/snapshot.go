package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/pkg/snapshot"
)

// NewSnapshotCommand creates the snapshot command with its subcommands.
func NewSnapshotCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect saved session snapshots",
		Long: `Inspect session snapshots written by 'voxreel sessions --save'.

Snapshots are kept in the directory named by snapshot_dir, or in PostgreSQL
when snapshot_store is postgres. A snapshot ID may be shortened to any
unique prefix.

Examples:
  voxreel snapshot list
  voxreel snapshot show 3f2a
  voxreel snapshot show 3f2a --output yaml`,
		Aliases: []string{"snapshots"},
	}

	cmd.AddCommand(newSnapshotListCommand(deps))
	cmd.AddCommand(newSnapshotShowCommand(deps))
	return cmd
}

func newSnapshotListCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := deps.OpenSnapshots(ctx, deps)
			if err != nil {
				return fmt.Errorf("opening snapshot store: %w", err)
			}
			defer closeStore()

			list, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("listing snapshots: %w", err)
			}
			if list == nil {
				list = []snapshot.Summary{}
			}
			return render(cmd.OutOrStdout(), deps.Config.OutputFormat, list, func(w io.Writer) error {
				return outputSnapshotListText(w, list)
			})
		},
	}
}

func newSnapshotShowCommand(deps *Deps) *cobra.Command {
	var session int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the sessions recorded in a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := deps.OpenSnapshots(ctx, deps)
			if err != nil {
				return fmt.Errorf("opening snapshot store: %w", err)
			}
			defer closeStore()

			snap, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if session > 0 {
				sess, err := snap.Session(session)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), deps.Config.OutputFormat, sess, func(w io.Writer) error {
					return outputSnapshotSessionText(w, sess)
				})
			}
			return render(cmd.OutOrStdout(), deps.Config.OutputFormat, snap, func(w io.Writer) error {
				return outputSnapshotText(w, snap)
			})
		},
	}
	cmd.Flags().IntVar(&session, "session", 0, "Show only the session with this index")
	return cmd
}

func outputSnapshotListText(w io.Writer, list []snapshot.Summary) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No snapshots saved.")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCREATED\tSESSIONS\tSEGMENTS\tROOT")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			s.ID, formatTime(s.CreatedAt), s.Sessions, s.Segments, s.Root)
	}
	return tw.Flush()
}

func outputSnapshotText(w io.Writer, s *snapshot.Snapshot) error {
	fmt.Fprintf(w, "Snapshot: %s\n", s.ID)
	fmt.Fprintf(w, "  Created:         %s\n", formatTime(s.CreatedAt))
	fmt.Fprintf(w, "  Root:            %s\n", s.Root)
	fmt.Fprintf(w, "  Merge threshold: %s\n", s.MergeThreshold)
	fmt.Fprintf(w, "  Session gap:     %s\n\n", s.SessionGap)

	tw := newTable(w)
	fmt.Fprintln(tw, "#\tID\tSTART\tEND\tTURNS\tSEGMENTS")
	for _, sess := range s.Sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			sess.Index,
			sess.ID,
			formatTime(sess.Start),
			formatTime(sess.End),
			len(sess.TurnIDs),
			len(sess.SegmentIDs))
	}
	return tw.Flush()
}

func outputSnapshotSessionText(w io.Writer, s snapshot.Session) error {
	fmt.Fprintf(w, "Session %d (%s)\n", s.Index, s.ID)
	fmt.Fprintf(w, "  %s - %s\n\n", formatTime(s.Start), formatTime(s.End))
	fmt.Fprintln(w, "Turns:")
	for _, id := range s.TurnIDs {
		fmt.Fprintf(w, "  %s\n", id)
	}
	fmt.Fprintln(w, "\nSegments:")
	for _, id := range s.SegmentIDs {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}
