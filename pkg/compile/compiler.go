package compile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/voxreel/pkg/audio"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/observability"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
	"github.com/otherjamesbrown/voxreel/pkg/timeline"
	"github.com/otherjamesbrown/voxreel/pkg/transcript"
)

// Defaults.
const (
	DefaultTrimPadding       = 100 * time.Millisecond
	DefaultMaxOutputDuration = 4 * time.Hour

	// tempPrefix marks in-progress output. The scanner skips dot files.
	tempPrefix = ".voxreel-"
)

// Options configures a Compiler.
type Options struct {
	Output            audio.OutputFormat
	Spacing           Spacing
	Trim              bool
	TrimPadding       time.Duration
	MaxOutputDuration time.Duration
	DecodeTimeout     time.Duration

	// TranscriptFormat overrides the format inferred from the transcript path.
	TranscriptFormat transcript.Format
}

// DefaultOptions returns 16 kHz mono WAV with a fixed 500ms gap and no trimming.
func DefaultOptions() Options {
	return Options{
		Output:            audio.DefaultOutputFormat(),
		Spacing:           DefaultSpacing(),
		TrimPadding:       DefaultTrimPadding,
		MaxOutputDuration: DefaultMaxOutputDuration,
		DecodeTimeout:     audio.DefaultDecodeTimeout,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if err := o.Output.Validate(); err != nil {
		return err
	}
	if err := o.Spacing.Validate(); err != nil {
		return err
	}
	if o.TrimPadding < 0 {
		return vrerrors.Validationf("trim padding must not be negative, got %s", o.TrimPadding)
	}
	if o.MaxOutputDuration <= 0 {
		return vrerrors.Validationf("max output duration must be positive, got %s", o.MaxOutputDuration)
	}
	if o.TranscriptFormat != "" {
		if _, err := transcript.ParseFormat(string(o.TranscriptFormat)); err != nil {
			return err
		}
	}
	return nil
}

// Request names what to compile and where to write it.
type Request struct {
	// Segments are resolved segments in output order.
	Segments []segment.Segment

	AudioPath string

	// TranscriptPath is optional.
	TranscriptPath string
}

// Artifact describes a finished compilation. It is never modified.
type Artifact struct {
	ID               string             `json:"id" yaml:"id"`
	AudioPath        string             `json:"audio_path" yaml:"audio_path"`
	TranscriptPath   string             `json:"transcript_path,omitempty" yaml:"transcript_path,omitempty"`
	TranscriptFormat transcript.Format  `json:"transcript_format,omitempty" yaml:"transcript_format,omitempty"`
	Format           audio.OutputFormat `json:"format" yaml:"format"`
	Duration         time.Duration      `json:"duration" yaml:"duration"`
	Frames           int                `json:"frames" yaml:"frames"`
	Entries          []transcript.Entry `json:"entries" yaml:"entries"`
	CreatedAt        time.Time          `json:"created_at" yaml:"created_at"`
}

// SegmentIDs returns the compiled segment IDs in output order.
func (a *Artifact) SegmentIDs() []string {
	ids := make([]string, len(a.Entries))
	for i, e := range a.Entries {
		ids[i] = e.SegmentID
	}
	return ids
}

// Compiler renders segments into one WAV file and a transcript.
type Compiler struct {
	opts     Options
	analyzer *audio.Analyzer
	logger   logging.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewCompiler validates opts and returns a compiler. The analyzer is only
// used when trimming is enabled.
func NewCompiler(opts Options, analyzer *audio.Analyzer, logger logging.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*Compiler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.DecodeTimeout <= 0 {
		opts.DecodeTimeout = audio.DefaultDecodeTimeout
	}
	if analyzer == nil {
		analyzer = audio.NewAnalyzer(logger, metrics, tracer)
		analyzer.Timeout = opts.DecodeTimeout
	}
	return &Compiler{
		opts:     opts,
		analyzer: analyzer,
		logger:   logger.With(logging.F("component", "compiler")),
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

// placement is a segment with the trim applied to it.
type placement struct {
	seg      segment.Segment
	leading  time.Duration
	trailing time.Duration
}

func (p placement) duration() time.Duration {
	d := p.seg.Duration - p.leading - p.trailing
	if d < 0 {
		return 0
	}
	return d
}

// Compile writes the artifact. Nothing appears at the destination paths
// unless every step succeeds.
func (c *Compiler) Compile(ctx context.Context, req Request) (art *Artifact, err error) {
	id := uuid.New().String()
	ctx = context.WithValue(ctx, logging.ArtifactIDKey, id)
	log := c.logger.WithContext(ctx)

	ctx, span := c.tracer.StartStageSpan(ctx, observability.StageCompile)
	defer span.End()
	helper := observability.NewSpanHelper(span)
	helper.SetArtifact(id)
	started := time.Now()

	defer func() {
		if err != nil {
			code := vrerrors.CodeOf(err)
			helper.SetError(err, string(code), vrerrors.IsRetryable(code))
			c.metrics.RecordArtifact(observability.StatusFailed, len(req.Segments), 0)
		}
	}()

	tformat, err := c.checkRequest(req)
	if err != nil {
		return nil, err
	}

	placements, err := c.placements(ctx, req.Segments)
	if err != nil {
		return nil, err
	}

	items := make([]timeline.Item, len(placements))
	for i, p := range placements {
		items[i] = timeline.Item{SegmentID: p.seg.ID, Duration: p.duration()}
		if i > 0 {
			items[i].GapBefore = c.opts.Spacing.Between(placements[i-1].seg, p.seg)
		}
	}
	plan, err := timeline.Build(items, c.opts.Output.SampleRate)
	if err != nil {
		return nil, err
	}
	if plan.Duration > c.opts.MaxOutputDuration {
		return nil, fmt.Errorf("compiled output would last %s, limit is %s: %w",
			plan.Duration.Truncate(time.Second), c.opts.MaxOutputDuration, vrerrors.ErrResourceExhausted)
	}

	entries, err := transcript.Build(plan, req.Segments)
	if err != nil {
		return nil, err
	}

	log.Info("Compiling segments",
		logging.F("segments", len(placements)),
		logging.F("duration", plan.Duration),
		logging.F("output", req.AudioPath))

	audioTmp, err := c.writeAudio(ctx, req.AudioPath, id, plan, placements, log)
	if err != nil {
		return nil, err
	}
	defer removeIfExists(audioTmp)

	var transcriptTmp string
	if req.TranscriptPath != "" {
		transcriptTmp, err = writeTranscript(req.TranscriptPath, id, entries, tformat)
		if err != nil {
			return nil, err
		}
		defer removeIfExists(transcriptTmp)
	}

	if err := ctx.Err(); err != nil {
		return nil, vrerrors.ClassifyError(err, observability.StageCompile)
	}

	if err := publish(id, audioTmp, req.AudioPath, transcriptTmp, req.TranscriptPath); err != nil {
		return nil, err
	}

	art = &Artifact{
		ID:             id,
		AudioPath:      req.AudioPath,
		TranscriptPath: req.TranscriptPath,
		Format:         c.opts.Output,
		Duration:       plan.Duration,
		Frames:         plan.TotalFrames,
		Entries:        entries,
		CreatedAt:      time.Now().UTC(),
	}
	if req.TranscriptPath != "" {
		art.TranscriptFormat = tformat
	}

	c.metrics.RecordArtifact(observability.StatusSuccess, len(entries), plan.Duration.Seconds())
	c.metrics.RecordStage(observability.StageCompile, time.Since(started).Seconds())
	helper.SetSegments(len(entries))
	helper.SetSuccess()
	log.Info("Compiled artifact",
		logging.F("audio", req.AudioPath),
		logging.F("transcript", req.TranscriptPath),
		logging.F("duration", plan.Duration),
		logging.F("elapsed", time.Since(started)))
	return art, nil
}

// checkRequest validates the request before any work and returns the
// transcript format to use.
func (c *Compiler) checkRequest(req Request) (transcript.Format, error) {
	if len(req.Segments) == 0 {
		return "", vrerrors.Validationf("nothing to compile: selection resolved to no segments")
	}
	if req.AudioPath == "" {
		return "", vrerrors.Validationf("output audio path is required")
	}
	if !strings.EqualFold(filepath.Ext(req.AudioPath), ".wav") {
		return "", vrerrors.Validationf("output audio must be a .wav file, got %q", req.AudioPath)
	}
	if err := checkDir(req.AudioPath); err != nil {
		return "", err
	}

	if req.TranscriptPath == "" {
		return "", nil
	}
	if filepath.Clean(req.TranscriptPath) == filepath.Clean(req.AudioPath) {
		return "", vrerrors.Validationf("transcript and audio paths must differ")
	}
	if err := checkDir(req.TranscriptPath); err != nil {
		return "", err
	}
	if c.opts.TranscriptFormat != "" {
		return transcript.ParseFormat(string(c.opts.TranscriptFormat))
	}
	return transcript.FormatForPath(req.TranscriptPath)
}

func checkDir(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("output directory %s: %w", dir, vrerrors.ErrNotFound)
		}
		return err
	}
	if !info.IsDir() {
		return vrerrors.Validationf("output directory %s is not a directory", dir)
	}
	return nil
}

// placements computes per-segment trim amounts. Trimming needs an
// analysis of every segment; any analysis failure fails the compilation.
func (c *Compiler) placements(ctx context.Context, segs []segment.Segment) ([]placement, error) {
	out := make([]placement, len(segs))
	for i, s := range segs {
		out[i] = placement{seg: s}
	}
	if !c.opts.Trim {
		return out, nil
	}

	items := make([]audio.Item, len(segs))
	for i, s := range segs {
		items[i] = audio.Item{ID: s.ID, Ref: s.Audio}
	}
	results, failures, err := c.analyzer.AnalyzeAll(ctx, items)
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		f := failures[0]
		return nil, fmt.Errorf("analyze %s (and %d more): %w: %w", f.ID, len(failures)-1, vrerrors.ErrUnreadable, f.Err)
	}

	byID := make(map[string]audio.Analysis, len(results))
	for _, r := range results {
		byID[r.ID] = r.Analysis
	}
	pad := c.opts.TrimPadding
	for i := range out {
		an := byID[out[i].seg.ID]
		if an.Silent() {
			// Keep a silent clip's padding rather than removing it entirely.
			out[i].leading = max(0, an.Duration-pad)
			continue
		}
		out[i].leading = max(0, an.LeadingSilence-pad)
		out[i].trailing = max(0, an.TrailingSilence-pad)
	}
	return out, nil
}

// writeAudio streams the plan into a hidden temp file next to dest and
// returns its path. The temp file is removed on failure.
func (c *Compiler) writeAudio(ctx context.Context, dest, id string, plan timeline.Plan, placements []placement, log logging.Logger) (path string, err error) {
	path = filepath.Join(filepath.Dir(dest), tempPrefix+id+".wav.tmp")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", classifyWriteError(err)
	}
	defer func() {
		if err != nil {
			f.Close()
			removeIfExists(path)
		}
	}()

	asm := &assembler{
		ctx:        ctx,
		c:          c,
		log:        log,
		plan:       plan,
		placements: placements,
	}
	if err := audio.EncodeWAV(f, asm, c.opts.Output); err != nil {
		if asm.err != nil {
			return "", asm.err
		}
		return "", classifyWriteError(err)
	}
	if asm.err != nil {
		return "", asm.err
	}
	if asm.written != plan.TotalFrames {
		return "", fmt.Errorf("wrote %d frames, planned %d: %w", asm.written, plan.TotalFrames, vrerrors.ErrInvalidState)
	}
	if err := f.Sync(); err != nil {
		return "", classifyWriteError(err)
	}
	if err := f.Close(); err != nil {
		return "", classifyWriteError(err)
	}
	return path, nil
}

// writeTranscript writes entries to a hidden temp file next to dest.
func writeTranscript(dest, id string, entries []transcript.Entry, format transcript.Format) (path string, err error) {
	path = filepath.Join(filepath.Dir(dest), tempPrefix+id+"."+string(format)+".tmp")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", classifyWriteError(err)
	}
	defer func() {
		if err != nil {
			f.Close()
			removeIfExists(path)
		}
	}()

	if err := transcript.Write(f, entries, format); err != nil {
		return "", classifyWriteError(err)
	}
	if err := f.Close(); err != nil {
		return "", classifyWriteError(err)
	}
	return path, nil
}

// classifyWriteError maps a full disk to ErrResourceExhausted.
func classifyWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("write output: %w: %w", vrerrors.ErrResourceExhausted, err)
	}
	return fmt.Errorf("write output: %w", err)
}

// publish moves the finished files into place, audio first. When the
// transcript cannot be placed, the audio destination is put back the way
// it was.
func publish(id, audioTmp, audioPath, transcriptTmp, transcriptPath string) error {
	var previous string
	if transcriptTmp != "" {
		if _, err := os.Lstat(audioPath); err == nil {
			previous = filepath.Join(filepath.Dir(audioPath), tempPrefix+id+".wav.prev")
			if err := os.Rename(audioPath, previous); err != nil {
				return fmt.Errorf("publish audio: %w", err)
			}
		}
	}
	restore := func() {
		if previous != "" {
			_ = os.Rename(previous, audioPath)
		} else {
			removeIfExists(audioPath)
		}
	}

	if err := os.Rename(audioTmp, audioPath); err != nil {
		if previous != "" {
			_ = os.Rename(previous, audioPath)
		}
		return fmt.Errorf("publish audio: %w", err)
	}
	if transcriptTmp == "" {
		return nil
	}
	if err := os.Rename(transcriptTmp, transcriptPath); err != nil {
		restore()
		return fmt.Errorf("publish transcript: %w", err)
	}
	removeIfExists(previous)
	return nil
}

func removeIfExists(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
