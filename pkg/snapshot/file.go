package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

const fileExt = ".yaml"

// fileRecord is the on-disk YAML form. Durations are written as strings.
type fileRecord struct {
	ID             string    `yaml:"id"`
	CreatedAt      time.Time `yaml:"created_at"`
	Root           string    `yaml:"root"`
	MergeThreshold string    `yaml:"merge_threshold"`
	SessionGap     string    `yaml:"session_gap"`
	Sessions       []Session `yaml:"sessions"`
}

// FileStore keeps one YAML file per snapshot in a directory.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes snap atomically.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	data, err := yaml.Marshal(fileRecord{
		ID:             snap.ID,
		CreatedAt:      snap.CreatedAt,
		Root:           snap.Root,
		MergeThreshold: snap.MergeThreshold.String(),
		SessionGap:     snap.SessionGap.String(),
		Sessions:       snap.Sessions,
	})
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(snap.ID))
}

// Get loads the snapshot whose ID equals or uniquely starts with id.
func (s *FileStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	full, err := matchID(ids, id)
	if err != nil {
		return nil, err
	}
	return s.load(full)
}

// List returns summaries, newest first. Unreadable files are skipped.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	list := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.load(id)
		if err != nil {
			continue
		}
		list = append(list, snap.Summary())
	}
	sortSummaries(list)
	return list, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

func (s *FileStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	return ids, nil
}

func (s *FileStore) load(id string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("snapshot %s: %w", id, vrerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", id, err)
	}
	merge, err := time.ParseDuration(rec.MergeThreshold)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot %s merge_threshold: %w", id, err)
	}
	gap, err := time.ParseDuration(rec.SessionGap)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot %s session_gap: %w", id, err)
	}
	return &Snapshot{
		ID:             rec.ID,
		CreatedAt:      rec.CreatedAt,
		Root:           rec.Root,
		MergeThreshold: merge,
		SessionGap:     gap,
		Sessions:       rec.Sessions,
	}, nil
}
