package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/config"
	"github.com/otherjamesbrown/voxreel/pkg/audio"
	"github.com/otherjamesbrown/voxreel/pkg/compile"
	"github.com/otherjamesbrown/voxreel/pkg/conversation"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

// AnalysisFailure is the reported form of a segment that could not be
// analyzed.
type AnalysisFailure struct {
	ID      string             `json:"id" yaml:"id"`
	Path    string             `json:"path" yaml:"path"`
	Code    vrerrors.ErrorCode `json:"code" yaml:"code"`
	Message string             `json:"error" yaml:"error"`
}

// AnalyzeReport is the output of the analyze command.
type AnalyzeReport struct {
	Root     string              `json:"root" yaml:"root"`
	Silence  audio.SilenceParams `json:"silence" yaml:"silence"`
	Results  []audio.Result      `json:"results" yaml:"results"`
	Failures []AnalysisFailure   `json:"failures" yaml:"failures"`
}

var analyzeKeys = map[string]string{
	"silence-threshold": "silence_threshold_db",
	"min-silence":       "min_silence",
	"merge-threshold":   "merge_threshold",
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "analyze <root> [id...]",
		Short: "Measure levels and silence of segments",
		Long: `Decode segments and report their peak and RMS levels together with
the length of leading and trailing silence.

Without IDs every segment under the root is analyzed. IDs may name segments
or turns (turn:<first segment id>). Segments that cannot be decoded are
reported as failures; the rest are still analyzed.

When redis_addr is configured results are cached and reused until the file
changes.

Examples:
  voxreel analyze ./recordings
  voxreel analyze ./recordings 2024/20240301_100000-user.wav
  voxreel analyze ./recordings --silence-threshold -45 --min-silence 300ms`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.Flags().Float64("silence-threshold", config.DefaultSilenceThreshold, "Level in dBFS below which audio counts as silence")
	cmd.Flags().Duration("min-silence", config.DefaultMinSilence, "Shortest quiet edge reported as silence")
	addGroupingFlags(cmd, false)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := deps.applyFlagOverrides(cmd, analyzeKeys)
		if err != nil {
			return err
		}

		cat, err := deps.scan(ctx, args[0])
		if err != nil {
			return err
		}
		segs, err := selectForAnalysis(cat, args[1:], cfg.MergeThreshold)
		if err != nil {
			return err
		}

		analyzer, release, err := deps.analyzer(ctx)
		if err != nil {
			return err
		}
		defer release()

		items := make([]audio.Item, len(segs))
		for i, s := range segs {
			items[i] = audio.Item{ID: s.ID, Ref: s.Audio}
		}
		results, failures, err := analyzer.AnalyzeAll(ctx, items)
		if err != nil {
			return err
		}

		report := AnalyzeReport{
			Root:     cat.Root(),
			Silence:  analyzer.Silence,
			Results:  results,
			Failures: make([]AnalysisFailure, len(failures)),
		}
		for i, f := range failures {
			report.Failures[i] = AnalysisFailure{
				ID:      f.ID,
				Path:    f.Path,
				Code:    f.Code,
				Message: f.Err.Error(),
			}
		}
		return render(cmd.OutOrStdout(), cfg.OutputFormat, report, func(w io.Writer) error {
			return outputAnalyzeText(w, report)
		})
	}
	return cmd
}

// selectForAnalysis returns every segment when ids is empty, otherwise the
// resolved selection.
func selectForAnalysis(cat *segment.Catalog, ids []string, merge time.Duration) ([]segment.Segment, error) {
	if len(ids) == 0 {
		return cat.Segments(), nil
	}
	turns, err := conversation.BuildTurns(cat.Segments(), merge)
	if err != nil {
		return nil, err
	}
	return compile.Resolve(compile.NewSelection(ids...), cat, conversation.NewIndex(turns))
}

func outputAnalyzeText(w io.Writer, r AnalyzeReport) error {
	fmt.Fprintf(w, "Analyzed: %d  Failed: %d  (threshold %.1f dBFS, min silence %s)\n\n",
		len(r.Results), len(r.Failures), r.Silence.ThresholdDB, r.Silence.MinDuration)

	if len(r.Results) > 0 {
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tDURATION\tPEAK dBFS\tRMS dBFS\tLEAD\tTRAIL\tNOTE")
		for _, res := range r.Results {
			a := res.Analysis
			var note string
			switch {
			case a.Silent():
				note = "silent"
			case res.Cached:
				note = "cached"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.1f\t%s\t%s\t%s\n",
				res.ID,
				formatDuration(a.Duration),
				a.PeakDBFS,
				a.RMSDBFS,
				formatDuration(a.LeadingSilence),
				formatDuration(a.TrailingSilence),
				note)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures:\n")
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tCODE\tERROR")
		for _, f := range r.Failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Code, truncate(f.Message, 80))
		}
		return tw.Flush()
	}
	return nil
}
