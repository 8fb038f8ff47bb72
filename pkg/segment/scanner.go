package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/otherjamesbrown/voxreel/pkg/audio"
	"github.com/otherjamesbrown/voxreel/pkg/batch"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/observability"
)

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	Convention   Convention
	ProbeTimeout time.Duration
	Concurrency  int
}

// DefaultScannerConfig returns the default scanner settings.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Convention:   DefaultConvention(),
		ProbeTimeout: audio.DefaultDecodeTimeout,
		Concurrency:  batch.DefaultConcurrency,
	}
}

// Scanner builds catalogs from a storage root.
type Scanner struct {
	cfg      ScannerConfig
	logger   logging.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	progress func(batch.Snapshot)
}

// NewScanner creates a scanner.
func NewScanner(cfg ScannerConfig, logger logging.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Scanner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = audio.DefaultDecodeTimeout
	}
	return &Scanner{
		cfg:     cfg,
		logger:  logger.With(logging.F("component", "scanner")),
		metrics: metrics,
		tracer:  tracer,
	}
}

// OnProgress registers a callback receiving progress updates while files
// are probed.
func (s *Scanner) OnProgress(fn func(batch.Snapshot)) {
	s.progress = fn
}

// Scan walks root and returns a catalog of every recognizable segment.
// Unparseable or undecodable files become catalog failures; only an
// unusable root fails the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (*Catalog, error) {
	if err := s.cfg.Convention.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.StartStageSpan(ctx, observability.StageScan)
	defer span.End()
	helper := observability.NewSpanHelper(span)
	started := time.Now()

	absRoot, err := checkRoot(root)
	if err != nil {
		helper.SetError(err, string(vrerrors.ErrIOError), false)
		return nil, err
	}

	files, walkFailures := s.discover(absRoot)

	proc := batch.NewProcessor(batch.ProcessorConfig{
		Concurrency: s.cfg.Concurrency,
		Name:        "scan",
	}, func(ctx context.Context, path string) (Segment, error) {
		ctx, span := s.tracer.StartSegmentSpan(ctx, observability.StageProbe, relID(absRoot, path))
		defer span.End()
		seg, err := s.buildSegment(ctx, absRoot, path)
		if err != nil {
			se := vrerrors.ClassifyError(err, observability.StageProbe)
			observability.NewSpanHelper(span).SetError(err, string(se.Code), false)
		}
		return seg, err
	}, s.logger)
	if s.progress != nil {
		proc.OnStart(func(p *batch.Progress) { p.SetOnUpdate(s.progress) })
	}

	res := proc.Process(ctx, files)
	if res.Cancelled {
		err := vrerrors.ClassifyError(ctx.Err(), observability.StageScan)
		helper.SetError(err, string(err.Code), false)
		return nil, err
	}

	segments := make([]Segment, 0, res.SucceededCount)
	failures := walkFailures
	for _, r := range res.Results {
		if r.Err == nil {
			segments = append(segments, r.Value)
			s.metrics.RecordScanned(observability.StatusSuccess)
			continue
		}

		se := vrerrors.ClassifyError(r.Err, observability.StageProbe)
		stage := observability.StageProbe
		if se.Code == vrerrors.ErrParseError {
			stage = observability.StageScan
		}
		rel := relID(absRoot, r.Path)
		failures = append(failures, ScanFailure{
			Path:    rel,
			Stage:   stage,
			Code:    se.Code,
			Message: r.Err.Error(),
			Err:     r.Err,
		})
		s.metrics.RecordScanned(observability.StatusFailed)
		s.metrics.RecordScanFailure(stage, string(se.Code))
		s.logger.Warn("Skipping unreadable segment",
			logging.F("path", rel),
			logging.F("code", string(se.Code)),
			logging.Err(r.Err))
	}

	catalog, err := NewCatalog(absRoot, segments, failures)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStage(observability.StageScan, time.Since(started).Seconds())
	helper.SetSegments(catalog.Len())
	helper.SetSuccess()
	s.logger.Info("Scan complete",
		logging.F("root", absRoot),
		logging.F("segments", catalog.Len()),
		logging.F("failures", len(failures)),
		logging.F("elapsed", time.Since(started)))

	return catalog, nil
}

// checkRoot verifies root is a readable directory and returns its absolute path.
func checkRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve storage root %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage root %s: %w", root, vrerrors.ErrNotFound)
		}
		return "", fmt.Errorf("storage root %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("storage root %s is not a directory: %w", root, vrerrors.ErrValidation)
	}
	if _, err := os.ReadDir(absRoot); err != nil {
		return "", fmt.Errorf("storage root %s is not readable: %w", root, err)
	}
	return absRoot, nil
}

// discover lists candidate audio files under root, skipping hidden entries.
// Unreadable subdirectories are reported as failures.
func (s *Scanner) discover(root string) ([]string, []ScanFailure) {
	var (
		files    []string
		failures []ScanFailure
	)
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			failures = append(failures, ScanFailure{
				Path:    relID(root, p),
				Stage:   observability.StageScan,
				Code:    vrerrors.ErrIOError,
				Message: err.Error(),
				Err:     err,
			})
			s.logger.Warn("Skipping unreadable path", logging.F("path", p), logging.Err(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if s.cfg.Convention.IsAudio(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	return files, failures
}

// buildSegment parses, probes and reads the sidecar for one file.
func (s *Scanner) buildSegment(ctx context.Context, root, path string) (Segment, error) {
	conv := s.cfg.Convention

	parsed, err := conv.Parse(path)
	if err != nil {
		return Segment{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Segment{}, err
	}

	ref, err := audio.NewRef(path)
	if err != nil {
		return Segment{}, err
	}

	probe, err := audio.Probe(ctx, ref, s.cfg.ProbeTimeout)
	if err != nil {
		return Segment{}, err
	}

	seg := Segment{
		ID:         relID(root, path),
		Timestamp:  parsed.Timestamp,
		Direction:  parsed.Direction,
		Duration:   probe.Duration,
		Frames:     probe.Frames,
		SampleRate: probe.SampleRate,
		Channels:   probe.Channels,
		Format:     probe.Codec,
		Audio:      ref,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
	}
	if !parsed.HasTimestamp {
		seg.Timestamp = info.ModTime().Truncate(time.Millisecond)
		seg.TimestampFromMTime = true
	}

	text, ok, err := ReadSidecar(conv.SidecarPath(path))
	if err != nil {
		s.logger.Warn("Unreadable transcript sidecar", logging.F("segment_id", seg.ID), logging.Err(err))
	}
	if ok && text != "" {
		seg.TranscriptText = text
	} else {
		seg.TranscriptText = parsed.Text
	}
	return seg, nil
}

// relID returns the slash-separated path of p relative to root.
func relID(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
