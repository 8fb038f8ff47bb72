package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/config"
	"github.com/otherjamesbrown/voxreel/pkg/compile"
	"github.com/otherjamesbrown/voxreel/pkg/conversation"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
	"github.com/otherjamesbrown/voxreel/pkg/transcript"
)

// compileKeys maps compile flags to configuration keys.
var compileKeys = map[string]string{
	"spacing":           "spacing",
	"gap":               "gap",
	"max-gap":           "max_gap",
	"trim":              "trim",
	"trim-padding":      "trim_padding",
	"sample-rate":       "sample_rate",
	"channels":          "channels",
	"silence-threshold": "silence_threshold_db",
	"merge-threshold":   "merge_threshold",
	"session-gap":       "session_gap",
}

// compileFlags holds the per-invocation compile flags.
type compileFlags struct {
	out              string
	transcript       string
	transcriptFormat string
	selectIDs        []string
	selectionFile    string
	session          int
	snapshotID       string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var f compileFlags
	cmd := &cobra.Command{
		Use:   "compile <root> -o <out.wav>",
		Short: "Compile selected segments into one audio file and transcript",
		Long: `Concatenate selected segments into a single WAV file with silence
between them, and optionally write a time-aligned transcript.

Choose what to compile with one of:
  --select          comma-separated segment or turn IDs, in output order
  --selection-file  a file with one ID per line (# starts a comment)
  --session N       session N of the current recordings
  --snapshot ID     a saved snapshot; add --session N for one of its sessions
Without any of these the whole conversation is compiled.

Every selected ID is checked before any output is written. Unknown IDs are
all reported together and nothing is created. Output files appear only
when compilation succeeds.

Segments with other sample rates or channel counts are converted to the
output format. With --spacing original the real pause between recordings is
kept, capped at --max-gap.

The transcript format follows the --transcript extension (.vtt, .srt, .txt,
.json) unless --transcript-format is given.

Examples:
  # Whole conversation with a WebVTT transcript
  voxreel compile ./recordings -o call.wav --transcript call.vtt

  # Two turns, original pauses, trimmed silence
  voxreel compile ./recordings -o part.wav \
    --select turn:20240301_100000-user.wav,turn:20240301_100004-assistant.wav \
    --spacing original --trim

  # Second session from a saved snapshot
  voxreel compile ./recordings -o s2.wav --snapshot 3f2a --session 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, deps, args[0], f)
		},
	}

	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output WAV file (required)")
	cmd.Flags().StringVar(&f.transcript, "transcript", "", "Transcript file to write alongside the audio")
	cmd.Flags().StringVar(&f.transcriptFormat, "transcript-format", "", "Transcript format: vtt, srt, txt, json")
	cmd.Flags().StringSliceVar(&f.selectIDs, "select", nil, "Segment or turn IDs to compile, in order")
	cmd.Flags().StringVar(&f.selectionFile, "selection-file", "", "File listing segment or turn IDs, one per line")
	cmd.Flags().IntVar(&f.session, "session", 0, "Compile the session with this 1-based index")
	cmd.Flags().StringVar(&f.snapshotID, "snapshot", "", "Use sessions from a saved snapshot (ID or unique prefix)")

	cmd.Flags().String("spacing", config.DefaultSpacing, "Gap policy: fixed or original")
	cmd.Flags().Duration("gap", config.DefaultGap, "Silence between segments with fixed spacing")
	cmd.Flags().Duration("max-gap", config.DefaultMaxGap, "Longest pause kept with original spacing")
	cmd.Flags().Bool("trim", false, "Trim leading and trailing silence from each segment")
	cmd.Flags().Duration("trim-padding", config.DefaultTrimPadding, "Silence kept at each trimmed edge")
	cmd.Flags().Float64("silence-threshold", config.DefaultSilenceThreshold, "Level in dBFS below which audio counts as silence")
	cmd.Flags().Int("sample-rate", config.DefaultSampleRate, "Output sample rate in Hz")
	cmd.Flags().Int("channels", config.DefaultChannels, "Output channels (1 or 2)")
	addGroupingFlags(cmd, true)

	_ = cmd.MarkFlagRequired("out")
	cmd.MarkFlagsMutuallyExclusive("select", "selection-file", "session")
	cmd.MarkFlagsMutuallyExclusive("select", "selection-file", "snapshot")

	return cmd
}

func runCompile(cmd *cobra.Command, deps *Deps, root string, f compileFlags) error {
	ctx := cmd.Context()
	cfg, err := deps.applyFlagOverrides(cmd, compileKeys)
	if err != nil {
		return err
	}
	opts, err := compileOptions(cfg)
	if err != nil {
		return err
	}
	if f.transcriptFormat != "" {
		format, err := transcript.ParseFormat(f.transcriptFormat)
		if err != nil {
			return err
		}
		opts.TranscriptFormat = format
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	cat, err := deps.scan(ctx, root)
	if err != nil {
		return err
	}
	segs, err := deps.selectSegments(ctx, cat, f)
	if err != nil {
		return err
	}

	analyzer, release, err := deps.analyzer(ctx)
	if err != nil {
		return err
	}
	defer release()

	compiler, err := compile.NewCompiler(opts, analyzer, deps.logger(), deps.Metrics, deps.Tracer)
	if err != nil {
		return err
	}
	art, err := compiler.Compile(ctx, compile.Request{
		Segments:       segs,
		AudioPath:      f.out,
		TranscriptPath: f.transcript,
	})
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), cfg.OutputFormat, art, func(w io.Writer) error {
		return outputArtifactText(w, art)
	})
}

// selectSegments resolves the selection flags against the catalog.
func (d *Deps) selectSegments(ctx context.Context, cat *segment.Catalog, f compileFlags) ([]segment.Segment, error) {
	cfg := d.Config
	turns, err := conversation.BuildTurns(cat.Segments(), cfg.MergeThreshold)
	if err != nil {
		return nil, err
	}
	index := conversation.NewIndex(turns)

	var sel compile.Selection
	switch {
	case len(f.selectIDs) > 0:
		sel = compile.NewSelection(f.selectIDs...)

	case f.selectionFile != "":
		file, err := os.Open(f.selectionFile)
		if err != nil {
			return nil, fmt.Errorf("opening selection file: %w", err)
		}
		defer file.Close()
		sel, err = compile.ParseSelection(file)
		if err != nil {
			return nil, fmt.Errorf("reading selection file %s: %w", f.selectionFile, err)
		}

	case f.snapshotID != "":
		store, closeStore, err := d.OpenSnapshots(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot store: %w", err)
		}
		defer closeStore()
		snap, err := store.Get(ctx, f.snapshotID)
		if err != nil {
			return nil, err
		}
		var ids []string
		if f.session > 0 {
			sess, err := snap.Session(f.session)
			if err != nil {
				return nil, err
			}
			ids = sess.SegmentIDs
		} else {
			for _, sess := range snap.Sessions {
				ids = append(ids, sess.SegmentIDs...)
			}
		}
		d.logger().Debug("Selection from snapshot",
			logging.F("snapshot_id", snap.ID),
			logging.F("session", f.session),
			logging.F("segments", len(ids)))
		sel = compile.NewSelection(ids...)

	case f.session != 0:
		sessions, err := conversation.DetectSessions(turns, cfg.SessionGap)
		if err != nil {
			return nil, err
		}
		sess, err := conversation.ByIndex(sessions, f.session)
		if err != nil {
			return nil, err
		}
		sel = compile.NewSelection(sess.SegmentIDs()...)

	default:
		var ids []string
		for _, t := range turns {
			ids = append(ids, t.SegmentIDs()...)
		}
		sel = compile.NewSelection(ids...)
	}

	return compile.Resolve(sel, cat, index)
}

func outputArtifactText(w io.Writer, a *compile.Artifact) error {
	fmt.Fprintf(w, "Compiled %d segment(s)\n", len(a.Entries))
	fmt.Fprintf(w, "  ID:         %s\n", a.ID)
	fmt.Fprintf(w, "  Audio:      %s\n", a.AudioPath)
	if a.TranscriptPath != "" {
		fmt.Fprintf(w, "  Transcript: %s (%s)\n", a.TranscriptPath, a.TranscriptFormat)
	}
	fmt.Fprintf(w, "  Format:     %d Hz, %d channel(s)\n", a.Format.SampleRate, a.Format.Channels)
	fmt.Fprintf(w, "  Duration:   %s\n\n", formatClock(a.Duration))

	tw := newTable(w)
	fmt.Fprintln(tw, "START\tEND\tDIR\tSEGMENT")
	for _, e := range a.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", formatClock(e.Start), formatClock(e.End), e.Direction.Label(), e.SegmentID)
	}
	return tw.Flush()
}
