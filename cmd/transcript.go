package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/voxreel/pkg/transcript"
)

// NewTranscriptCommand creates the transcript command with its subcommands.
func NewTranscriptCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Work with compiled transcripts",
	}
	cmd.AddCommand(newTranscriptShowCommand(deps))
	return cmd
}

func newTranscriptShowCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file.vtt>",
		Short: "Print the cues of a WebVTT transcript",
		Long: `Parse a WebVTT transcript and print its cues.

Cue identifiers are reported as segment IDs and <v User>/<v Assistant>
voice tags as directions, so a transcript written by 'voxreel compile' reads
back exactly. Other WebVTT files are accepted as well.

Examples:
  voxreel transcript show call.vtt
  voxreel transcript show call.vtt --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening transcript: %w", err)
			}
			defer f.Close()

			doc, err := transcript.ParseVTT(f)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			return render(cmd.OutOrStdout(), cfg.OutputFormat, doc, func(w io.Writer) error {
				return outputTranscriptText(w, doc)
			})
		},
	}
}

func outputTranscriptText(w io.Writer, doc *transcript.Document) error {
	fmt.Fprintf(w, "Cues: %d  Duration: %s\n", len(doc.Entries), formatClock(doc.Duration))
	if len(doc.Speakers) > 0 {
		fmt.Fprintf(w, "Speakers: %s\n", strings.Join(doc.Speakers, ", "))
	}
	fmt.Fprintln(w)

	tw := newTable(w)
	fmt.Fprintln(tw, "START\tEND\tSPEAKER\tTEXT")
	for _, e := range doc.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			formatClock(e.Start),
			formatClock(e.End),
			valueOrDefault(e.Direction.Label(), "-"),
			valueOrDefault(e.Text, transcript.NoTranscript))
	}
	return tw.Flush()
}
