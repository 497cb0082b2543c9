package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/signscribe/internal/segment"
)

var (
	ErrInvalidSegment    = errors.New("invalid segment")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrInvalidTransition = errors.New("invalid visit transition")
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusReview    Status = "review"
)

type Visit struct {
	Status    Status
	StartedAt time.Time
}

// Snapshot is a consistent copy of the store's contents.
type Snapshot struct {
	Visit        Visit
	Segments     []segment.Segment
	Entities     []segment.Entity
	HealthRecord string
}

// Store is the append-only, deduplicating home of a visit's segments and entities.
// Segments are kept sorted by TStart, ties in insertion order.
type Store struct {
	mu           sync.RWMutex
	visit        Visit
	segments     []segment.Segment
	segmentIDs   map[string]struct{}
	entities     []segment.Entity
	entityIDs    map[string]struct{}
	healthRecord string
}

func New() *Store {
	return &Store{
		visit:      Visit{Status: StatusIdle},
		segmentIDs: make(map[string]struct{}),
		entityIDs:  make(map[string]struct{}),
	}
}

func (s *Store) Visit() Visit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visit
}

func (s *Store) Status() Status {
	return s.Visit().Status
}

// StartVisit moves idle to recording, clears every collection and anchors StartedAt.
func (s *Store) StartVisit(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visit.Status != StatusIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.visit.Status)
	}
	s.clearLocked()
	s.visit = Visit{Status: StatusRecording, StartedAt: now}
	return nil
}

// StopVisit moves recording to review and keeps the history.
func (s *Store) StopVisit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visit.Status != StatusRecording {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, s.visit.Status)
	}
	s.visit.Status = StatusReview
	return nil
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.visit = Visit{Status: StatusIdle}
}

func (s *Store) clearLocked() {
	s.segments = nil
	s.segmentIDs = make(map[string]struct{})
	s.entities = nil
	s.entityIDs = make(map[string]struct{})
	s.healthRecord = ""
}

// AddSegment inserts seg unless its id is already stored. It reports whether the segment was new.
func (s *Store) AddSegment(seg segment.Segment) (bool, error) {
	if err := seg.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.segmentIDs[seg.ID]; ok {
		return false, nil
	}
	s.insertSegmentLocked(seg)
	return true, nil
}

// insertion point is after every segment with TStart <= seg.TStart, keeping ties in arrival order
func (s *Store) insertSegmentLocked(seg segment.Segment) {
	seg = seg.Clone()
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].TStart > seg.TStart
	})
	s.segments = append(s.segments, segment.Segment{})
	copy(s.segments[i+1:], s.segments[i:])
	s.segments[i] = seg
	s.segmentIDs[seg.ID] = struct{}{}
}

// AddEntities inserts the entities whose ids are new and returns how many were stored.
// Invalid entities are skipped and reported in the joined error.
func (s *Store) AddEntities(list []segment.Entity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	added := 0
	for _, e := range list {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidEntity, err))
			continue
		}
		if _, ok := s.entityIDs[e.ID]; ok {
			continue
		}
		s.entities = append(s.entities, e)
		s.entityIDs[e.ID] = struct{}{}
		added++
	}
	return added, errors.Join(errs...)
}

// AddEmission stores a segment together with the entities derived from it. Either everything new
// is inserted or, on a validation failure, nothing is.
func (s *Store) AddEmission(seg segment.Segment, entities []segment.Entity) (bool, error) {
	if err := seg.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
		}
		if e.SourceSegmentID != seg.ID {
			return false, fmt.Errorf("%w: entity %s points at %s, not %s", ErrInvalidEntity, e.ID, e.SourceSegmentID, seg.ID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.segmentIDs[seg.ID]; ok {
		return false, nil
	}
	s.insertSegmentLocked(seg)
	for _, e := range entities {
		if _, ok := s.entityIDs[e.ID]; ok {
			continue
		}
		s.entities = append(s.entities, e)
		s.entityIDs[e.ID] = struct{}{}
	}
	return true, nil
}

func (s *Store) Segments() []segment.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSegments(s.segments)
}

func (s *Store) Entities() []segment.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]segment.Entity(nil), s.entities...)
}

func (s *Store) SegmentByID(id string) (segment.Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, seg := range s.segments {
		if seg.ID == id {
			return seg.Clone(), true
		}
	}
	return segment.Segment{}, false
}

func (s *Store) HealthRecord() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthRecord
}

func (s *Store) SetHealthRecord(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthRecord = text
}

// AppendHealthRecord adds text on a new line after the existing record.
func (s *Store) AppendHealthRecord(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := strings.TrimSpace(s.healthRecord)
	if existing == "" {
		s.healthRecord = text
		return
	}
	s.healthRecord = existing + "\n" + text
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Visit:        s.visit,
		Segments:     cloneSegments(s.segments),
		Entities:     append([]segment.Entity(nil), s.entities...),
		HealthRecord: s.healthRecord,
	}
}

func cloneSegments(in []segment.Segment) []segment.Segment {
	out := make([]segment.Segment, len(in))
	for i, seg := range in {
		out[i] = seg.Clone()
	}
	return out
}
