package relaysim

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultWindowSize is the default number of segments in the sliding window.
	DefaultWindowSize = 6
	// DefaultSessionTTL drops sessions that miss three 30s heartbeats.
	DefaultSessionTTL = 90 * time.Second
)

// Service applies relay rules (session expiry, contiguous sliding window) and
// delegates storage to Repository.
type Service struct {
	repo       Repository
	windowSize int
	ttl        time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// NewService returns a Service that keeps at most windowSize segments in the
// playlist window and expires sessions idle for longer than ttl. Zero values
// select the defaults.
func NewService(repo Repository, windowSize int, ttl time.Duration, log *slog.Logger) *Service {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, windowSize: windowSize, ttl: ttl, now: time.Now, log: log}
}

// Start opens a session for cameraID.
func (s *Service) Start(cameraID int64) Session {
	sess := s.repo.CreateSession(cameraID)
	s.log.Info("session started", slog.String("session_id", string(sess.ID)), slog.Int64("camera_id", cameraID))
	return sess
}

// Stop closes a session. Unknown ids are ignored.
func (s *Service) Stop(id SessionID) {
	s.repo.RemoveSession(id)
	s.log.Info("session stopped", slog.String("session_id", string(id)))
}

// Heartbeat keeps a session alive.
func (s *Service) Heartbeat(id SessionID) error {
	return s.repo.Touch(id)
}

// Lookup returns the session record for id.
func (s *Service) Lookup(id SessionID) (Session, bool) {
	return s.repo.Lookup(id)
}

// Alive reports whether id is still a session.
func (s *Service) Alive(id SessionID) bool {
	_, ok := s.repo.Lookup(id)
	return ok
}

// RegisterSegment records a segment for the session; duplicates are idempotent.
func (s *Service) RegisterSegment(id SessionID, seg Segment) error {
	return s.repo.RegisterSegment(id, seg)
}

// EndSession marks the session's feed as finished.
func (s *Service) EndSession(id SessionID) error {
	return s.repo.EndSession(id)
}

// GetPlaylist returns the HLS media playlist for the session: a contiguous
// sliding window of at most s.windowSize segments, no gaps.
func (s *Service) GetPlaylist(id SessionID) (m3u8 string, ok bool) {
	segments, ended, ok := s.repo.GetSegmentsSnapshot(id)
	if !ok {
		return "", false
	}
	window := contiguousVisibleSegments(segments, s.windowSize)
	return BuildLivePlaylist(window, ended), true
}

// ActiveSessions returns the number of open sessions.
func (s *Service) ActiveSessions() int {
	return s.repo.ActiveSessionCount()
}

// Sweep drops sessions idle for longer than the TTL and returns how many.
func (s *Service) Sweep() int {
	expired := s.repo.Expire(s.now().UTC().Add(-s.ttl))
	for _, id := range expired {
		s.log.Info("session expired", slog.String("session_id", string(id)))
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done. onSweep, if set,
// receives the number of expired sessions.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Sweep()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// contiguousVisibleSegments implements "slide then filter": the window slides
// over the newest windowSize segments so a missing segment eventually falls
// off the back, then stops at the first gap. Players error on 42 followed by 44.
// segs must be sorted by Sequence ascending.
func contiguousVisibleSegments(segs []Segment, windowSize int) []Segment {
	if len(segs) == 0 || windowSize <= 0 {
		return nil
	}

	start := 0
	if len(segs) > windowSize {
		start = len(segs) - windowSize
	}
	windowed := segs[start:]

	visible := make([]Segment, 0, len(windowed))
	for i := range windowed {
		if i > 0 && windowed[i].Sequence != windowed[i-1].Sequence+1 {
			break
		}
		visible = append(visible, windowed[i])
	}
	return visible
}
