// Package snapshot persists detected sessions so a later run can compile
// exactly the segments a session held when it was saved.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/voxreel/pkg/conversation"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// Session is the saved form of one session.
type Session struct {
	Index      int       `json:"index" yaml:"index"`
	ID         string    `json:"id" yaml:"id"`
	Start      time.Time `json:"start" yaml:"start"`
	End        time.Time `json:"end" yaml:"end"`
	TurnIDs    []string  `json:"turn_ids" yaml:"turn_ids"`
	SegmentIDs []string  `json:"segment_ids" yaml:"segment_ids"`
}

// Snapshot records the sessions detected over a storage root.
type Snapshot struct {
	ID             string        `json:"id" yaml:"id"`
	CreatedAt      time.Time     `json:"created_at" yaml:"created_at"`
	Root           string        `json:"root" yaml:"root"`
	MergeThreshold time.Duration `json:"merge_threshold" yaml:"merge_threshold"`
	SessionGap     time.Duration `json:"session_gap" yaml:"session_gap"`
	Sessions       []Session     `json:"sessions" yaml:"sessions"`
}

// Summary is a one-line view used by listings.
type Summary struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Root      string    `json:"root" yaml:"root"`
	Sessions  int       `json:"sessions" yaml:"sessions"`
	Segments  int       `json:"segments" yaml:"segments"`
}

// Store saves and loads snapshots. Get accepts a full ID or a unique prefix.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context) ([]Summary, error)
}

// New captures sessions under a fresh ID.
func New(root string, mergeThreshold, sessionGap time.Duration, sessions []conversation.Session) *Snapshot {
	snap := &Snapshot{
		ID:             uuid.New().String(),
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
		Root:           root,
		MergeThreshold: mergeThreshold,
		SessionGap:     sessionGap,
		Sessions:       make([]Session, len(sessions)),
	}
	for i, s := range sessions {
		snap.Sessions[i] = Session{
			Index:      s.Index,
			ID:         s.ID,
			Start:      s.Start.UTC(),
			End:        s.End.UTC(),
			TurnIDs:    s.TurnIDs(),
			SegmentIDs: s.SegmentIDs(),
		}
	}
	return snap
}

// Session returns the session with the given 1-based index.
func (s *Snapshot) Session(index int) (Session, error) {
	for _, sess := range s.Sessions {
		if sess.Index == index {
			return sess, nil
		}
	}
	return Session{}, fmt.Errorf("snapshot %s has no session %d: %w", s.ID, index, vrerrors.ErrNotFound)
}

// Summary returns the listing view of s.
func (s *Snapshot) Summary() Summary {
	sum := Summary{ID: s.ID, CreatedAt: s.CreatedAt, Root: s.Root, Sessions: len(s.Sessions)}
	for _, sess := range s.Sessions {
		sum.Segments += len(sess.SegmentIDs)
	}
	return sum
}

// Validate checks a snapshot before it is stored.
func (s *Snapshot) Validate() error {
	if _, err := uuid.Parse(s.ID); err != nil {
		return vrerrors.Validationf("snapshot id %q is not a UUID", s.ID)
	}
	if s.Root == "" {
		return vrerrors.Validationf("snapshot root is required")
	}
	for i, sess := range s.Sessions {
		if sess.Index != i+1 {
			return vrerrors.Validationf("snapshot session %d has index %d", i+1, sess.Index)
		}
	}
	return nil
}

// matchID picks the single ID that equals or starts with prefix.
func matchID(ids []string, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", vrerrors.Validationf("snapshot id is required")
	}
	var matches []string
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("snapshot %s: %w", prefix, vrerrors.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return "", vrerrors.Validationf("snapshot id %q is ambiguous (%s)", prefix, strings.Join(matches, ", "))
}

func sortSummaries(list []Summary) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
