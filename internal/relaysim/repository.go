package relaysim

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// relay sessions.
type Repository interface {
	// CreateSession opens a session for cameraID and returns a copy of it.
	CreateSession(cameraID int64) Session

	// Touch records a heartbeat. ErrSessionNotFound if the session is gone.
	Touch(id SessionID) error

	// RemoveSession drops a session. Removing an unknown session is a no-op.
	RemoveSession(id SessionID)

	// RegisterSegment records a new segment for the session. Duplicate
	// sequence numbers are ignored and do not corrupt state.
	RegisterSegment(id SessionID, seg Segment) error

	// GetSegmentsSnapshot returns the session's segments sorted by sequence
	// number, along with its ended flag. ok is false for an unknown session.
	GetSegmentsSnapshot(id SessionID) (segments []Segment, ended bool, ok bool)

	// EndSession marks the camera feed as finished. New segments are rejected.
	EndSession(id SessionID) error

	// Expire removes every session last seen before cutoff and returns their ids.
	Expire(cutoff time.Time) []SessionID

	// Lookup returns a copy of the session without its segments.
	Lookup(id SessionID) (Session, bool)

	// ActiveSessionCount returns the number of sessions. Used for metrics.
	ActiveSessionCount() int
}

var (
	// ErrSessionNotFound is returned for ids the relay does not know.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when registering a segment on a session
	// whose feed has ended.
	ErrSessionEnded = errors.New("session has ended")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
	now   func() time.Time
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore(), time.Now)
}

// NewInMemoryRepositoryWithStore constructs a repository on store, reading
// time from now.
func NewInMemoryRepositoryWithStore(store Store, now func() time.Time) *InMemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &InMemoryRepository{store: store, now: now}
}

// CreateSession implements Repository.CreateSession.
func (r *InMemoryRepository) CreateSession(cameraID int64) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	sess := &Session{
		ID:         SessionID(uuid.NewString()),
		CameraID:   cameraID,
		CreatedAt:  now,
		LastSeenAt: now,
		Segments:   make(map[int64]Segment),
	}
	r.store.SetSession(sess)

	out := *sess
	out.Segments = nil
	return out
}

// Touch implements Repository.Touch.
func (r *InMemoryRepository) Touch(id SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastSeenAt = r.now().UTC()
	return nil
}

// RemoveSession implements Repository.RemoveSession.
func (r *InMemoryRepository) RemoveSession(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.DeleteSession(id)
}

// RegisterSegment implements Repository.RegisterSegment.
func (r *InMemoryRepository) RegisterSegment(id SessionID, seg Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Ended {
		return ErrSessionEnded
	}

	// Ignore duplicate sequence numbers to avoid corrupting state.
	if _, exists := sess.Segments[seg.Sequence]; exists {
		return nil
	}

	seg.ReceivedAt = r.now().UTC()
	sess.Segments[seg.Sequence] = seg
	return nil
}

// GetSegmentsSnapshot implements Repository.GetSegmentsSnapshot.
func (r *InMemoryRepository) GetSegmentsSnapshot(id SessionID) (segments []Segment, ended bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.store.GetSession(id)
	if !exists {
		return nil, false, false
	}
	if len(sess.Segments) == 0 {
		return nil, sess.Ended, true
	}

	sequences := make([]int64, 0, len(sess.Segments))
	for seq := range sess.Segments {
		sequences = append(sequences, seq)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })

	segments = make([]Segment, 0, len(sequences))
	for _, seq := range sequences {
		segments = append(segments, sess.Segments[seq])
	}
	return segments, sess.Ended, true
}

// EndSession implements Repository.EndSession.
func (r *InMemoryRepository) EndSession(id SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.Ended = true
	return nil
}

// Expire implements Repository.Expire.
func (r *InMemoryRepository) Expire(cutoff time.Time) []SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []SessionID
	for _, id := range r.store.ListSessionIDs() {
		sess, ok := r.store.GetSession(id)
		if ok && sess.LastSeenAt.Before(cutoff) {
			r.store.DeleteSession(id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Lookup implements Repository.Lookup.
func (r *InMemoryRepository) Lookup(id SessionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.store.GetSession(id)
	if !ok {
		return Session{}, false
	}
	out := *sess
	out.Segments = nil
	return out, true
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.ListSessionIDs())
}
