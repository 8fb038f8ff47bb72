package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

// ScanReport is the output of the scan command.
type ScanReport struct {
	Root     string                `json:"root" yaml:"root"`
	Segments []segment.Segment     `json:"segments" yaml:"segments"`
	Failures []segment.ScanFailure `json:"failures" yaml:"failures"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "scan <root>",
		Short: "List the segments under a storage root",
		Long: `Scan a storage root and list every recognized audio segment.

Segment metadata comes from the file name: a timestamp, a direction token
(user or assistant) and optional transcript text. A sidecar file with the
same base name and a .txt extension supplies the text when present.

Files that cannot be parsed or decoded are reported as failures and do not
stop the scan.

Examples:
  # List segments
  voxreel scan ./recordings

  # Machine-readable catalog
  voxreel scan ./recordings --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := deps.scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report := ScanReport{
				Root:     cat.Root(),
				Segments: cat.Segments(),
				Failures: cat.Failures(),
			}
			return render(cmd.OutOrStdout(), deps.Config.OutputFormat, report, func(w io.Writer) error {
				return outputScanText(w, report)
			})
		},
	}
}

func outputScanText(w io.Writer, r ScanReport) error {
	fmt.Fprintf(w, "Root: %s\n", r.Root)
	fmt.Fprintf(w, "Segments: %d\n\n", len(r.Segments))

	if len(r.Segments) > 0 {
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tTIMESTAMP\tDIR\tDURATION\tRATE\tTEXT")
		for _, s := range r.Segments {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				s.ID,
				formatTime(s.Timestamp),
				s.Direction,
				formatDuration(s.Duration),
				s.SampleRate,
				truncate(valueOrDefault(s.TranscriptText, "-"), 48))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures: %d\n", len(r.Failures))
		tw := newTable(w)
		fmt.Fprintln(tw, "PATH\tSTAGE\tCODE\tERROR")
		for _, f := range r.Failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Path, f.Stage, f.Code, truncate(f.Message, 80))
		}
		return tw.Flush()
	}
	return nil
}
