package audio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
	"golang.org/x/sync/errgroup"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/observability"
)

// Silence detection defaults.
const (
	DefaultSilenceThresholdDB = -50.0
	DefaultMinSilence         = 200 * time.Millisecond
	DefaultConcurrency        = 4

	// FloorDBFS is reported for digital silence instead of -Inf.
	FloorDBFS = -120.0
)

// SilenceParams controls silence detection.
type SilenceParams struct {
	// ThresholdDB is the level in dBFS below which a frame is silent.
	ThresholdDB float64 `json:"threshold_db" yaml:"threshold_db"`

	// MinDuration is the shortest quiet edge reported as silence.
	MinDuration time.Duration `json:"min_duration" yaml:"min_duration"`
}

// DefaultSilenceParams returns the default silence parameters.
func DefaultSilenceParams() SilenceParams {
	return SilenceParams{
		ThresholdDB: DefaultSilenceThresholdDB,
		MinDuration: DefaultMinSilence,
	}
}

// Validate checks the silence parameters.
func (p SilenceParams) Validate() error {
	if p.ThresholdDB >= 0 {
		return vrerrors.Validationf("silence threshold must be below 0 dBFS, got %.1f", p.ThresholdDB)
	}
	if p.MinDuration < 0 {
		return vrerrors.Validationf("minimum silence duration must not be negative, got %s", p.MinDuration)
	}
	return nil
}

// Analysis holds per-segment audio measurements.
type Analysis struct {
	Duration        time.Duration `json:"duration" yaml:"duration"`
	Frames          int           `json:"frames" yaml:"frames"`
	SampleRate      int           `json:"sample_rate" yaml:"sample_rate"`
	Peak            float64       `json:"peak" yaml:"peak"`
	PeakDBFS        float64       `json:"peak_dbfs" yaml:"peak_dbfs"`
	RMS             float64       `json:"rms" yaml:"rms"`
	RMSDBFS         float64       `json:"rms_dbfs" yaml:"rms_dbfs"`
	LeadingSilence  time.Duration `json:"leading_silence" yaml:"leading_silence"`
	TrailingSilence time.Duration `json:"trailing_silence" yaml:"trailing_silence"`
}

// Silent reports whether the whole clip is below the silence threshold.
func (a Analysis) Silent() bool {
	return a.Frames > 0 && a.LeadingSilence >= a.Duration
}

// Item names a segment to analyze.
type Item struct {
	ID  string
	Ref Ref
}

// Result is a successful analysis of one item.
type Result struct {
	ID       string   `json:"id" yaml:"id"`
	Analysis Analysis `json:"analysis" yaml:"analysis"`
	Cached   bool     `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// Failure records an item that could not be analyzed.
type Failure struct {
	ID   string             `json:"id" yaml:"id"`
	Path string             `json:"path" yaml:"path"`
	Code vrerrors.ErrorCode `json:"code" yaml:"code"`
	Err  error              `json:"-" yaml:"-"`
}

// Error returns the failure message.
func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.ID, f.Err)
}

// Cache stores analyses between runs.
type Cache interface {
	Get(ctx context.Context, item Item, params SilenceParams) (Analysis, bool, error)
	Put(ctx context.Context, item Item, params SilenceParams, a Analysis) error
}

// Analyzer measures segments.
type Analyzer struct {
	Silence     SilenceParams
	Timeout     time.Duration
	Concurrency int

	// Cache is optional.
	Cache Cache

	logger  logging.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewAnalyzer creates an analyzer with default settings.
func NewAnalyzer(logger logging.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Analyzer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Analyzer{
		Silence:     DefaultSilenceParams(),
		Timeout:     DefaultDecodeTimeout,
		Concurrency: DefaultConcurrency,
		logger:      logger.With(logging.F("component", "analyzer")),
		metrics:     metrics,
		tracer:      tracer,
	}
}

// Analyze decodes ref once, streaming, and measures it.
func (a *Analyzer) Analyze(ctx context.Context, ref Ref) (Analysis, error) {
	an, err := withTimeout(ctx, a.Timeout, func(ctx context.Context) (Analysis, error) {
		s, format, err := ref.Open()
		if err != nil {
			return Analysis{}, err
		}
		defer s.Close()
		return Measure(ctx, s, format.SampleRate, a.Silence)
	})
	if err != nil {
		return Analysis{}, vrerrors.ClassifyError(err, observability.StageAnalyze)
	}
	return an, nil
}

// Measure consumes s and computes level and silence statistics.
func Measure(ctx context.Context, s beep.Streamer, rate beep.SampleRate, p SilenceParams) (Analysis, error) {
	threshold := math.Pow(10, p.ThresholdDB/20)

	buf := make([][2]float64, streamChunk)
	var (
		frames    int
		peak      float64
		sumSq     float64
		firstLoud = -1
		lastLoud  = -1
	)
	for {
		if err := ctx.Err(); err != nil {
			return Analysis{}, err
		}
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			l, r := math.Abs(buf[i][0]), math.Abs(buf[i][1])
			amp := math.Max(l, r)
			if amp > peak {
				peak = amp
			}
			sumSq += (buf[i][0]*buf[i][0] + buf[i][1]*buf[i][1]) / 2
			if amp >= threshold {
				if firstLoud < 0 {
					firstLoud = frames + i
				}
				lastLoud = frames + i
			}
		}
		frames += n
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return Analysis{}, fmt.Errorf("decode stream: %w", err)
	}
	if frames == 0 {
		return Analysis{}, fmt.Errorf("zero frames decoded")
	}

	rms := math.Sqrt(sumSq / float64(frames))
	an := Analysis{
		Duration:   rate.D(frames),
		Frames:     frames,
		SampleRate: int(rate),
		Peak:       peak,
		PeakDBFS:   toDBFS(peak),
		RMS:        rms,
		RMSDBFS:    toDBFS(rms),
	}

	if firstLoud < 0 {
		an.LeadingSilence = an.Duration
		return an, nil
	}

	minFrames := rate.N(p.MinDuration)
	if firstLoud >= minFrames {
		an.LeadingSilence = rate.D(firstLoud)
	}
	if trailing := frames - 1 - lastLoud; trailing >= minFrames && trailing > 0 {
		an.TrailingSilence = rate.D(trailing)
	}
	return an, nil
}

func toDBFS(v float64) float64 {
	if v <= 0 {
		return FloorDBFS
	}
	db := 20 * math.Log10(v)
	if db < FloorDBFS {
		return FloorDBFS
	}
	return db
}

// AnalyzeAll analyzes items concurrently. A failing item is recorded and
// never aborts the batch. Results keep the input order.
func (a *Analyzer) AnalyzeAll(ctx context.Context, items []Item) ([]Result, []Failure, error) {
	ctx, span := a.tracer.StartStageSpan(ctx, observability.StageAnalyze)
	defer span.End()
	started := time.Now()

	limit := a.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]*Result, len(items))
	failures := make([]*Failure, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			res, err := a.analyzeItem(gctx, item)
			if err != nil {
				failures[i] = &Failure{
					ID:   item.ID,
					Path: item.Ref.Path,
					Code: vrerrors.CodeOf(err),
					Err:  err,
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, vrerrors.ClassifyError(err, observability.StageAnalyze)
	}

	var (
		out  []Result
		fail []Failure
	)
	for i := range items {
		if results[i] != nil {
			out = append(out, *results[i])
		}
		if failures[i] != nil {
			fail = append(fail, *failures[i])
		}
	}

	a.metrics.RecordStage(observability.StageAnalyze, time.Since(started).Seconds())
	helper := observability.NewSpanHelper(span)
	helper.SetSegments(len(out))
	helper.SetSuccess()
	return out, fail, nil
}

func (a *Analyzer) analyzeItem(ctx context.Context, item Item) (*Result, error) {
	ctx, span := a.tracer.StartSegmentSpan(ctx, observability.StageAnalyze, item.ID)
	defer span.End()

	if a.Cache != nil {
		cached, ok, err := a.Cache.Get(ctx, item, a.Silence)
		if err != nil {
			a.logger.Warn("Analysis cache lookup failed", logging.F("segment_id", item.ID), logging.Err(err))
		}
		a.metrics.RecordCacheLookup(ok)
		if ok {
			a.metrics.RecordAnalysis(observability.StatusCached)
			return &Result{ID: item.ID, Analysis: cached, Cached: true}, nil
		}
	}

	an, err := a.Analyze(ctx, item.Ref)
	if err != nil {
		a.metrics.RecordAnalysis(observability.StatusFailed)
		code := vrerrors.CodeOf(err)
		observability.NewSpanHelper(span).SetError(err, string(code), vrerrors.IsRetryable(code))
		a.logger.Warn("Segment analysis failed",
			logging.F("segment_id", item.ID),
			logging.F("code", string(code)),
			logging.Err(err))
		return nil, err
	}
	a.metrics.RecordAnalysis(observability.StatusSuccess)

	if a.Cache != nil {
		if err := a.Cache.Put(ctx, item, a.Silence, an); err != nil {
			a.logger.Warn("Analysis cache store failed", logging.F("segment_id", item.ID), logging.Err(err))
		}
	}
	return &Result{ID: item.ID, Analysis: an}, nil
}
