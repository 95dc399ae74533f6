package relaysim

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"camstream/internal/platform/logger"
)

func newTestService(window int) (*Service, *InMemoryRepository) {
	repo := NewInMemoryRepository()
	return NewService(repo, window, 0, logger.Discard()), repo
}

func register(t *testing.T, svc *Service, id SessionID, seqs ...int64) {
	t.Helper()
	for _, seq := range seqs {
		if err := svc.RegisterSegment(id, Segment{Sequence: seq, Duration: 2.0, Path: fmt.Sprintf("/%d.ts", seq)}); err != nil {
			t.Fatalf("RegisterSegment(%d): %v", seq, err)
		}
	}
}

func TestNewService_defaults(t *testing.T) {
	svc, _ := newTestService(0)
	if svc.windowSize != DefaultWindowSize || svc.ttl != DefaultSessionTTL {
		t.Errorf("defaults not applied: window=%d ttl=%s", svc.windowSize, svc.ttl)
	}

	sess := svc.Start(1)
	register(t, svc, sess.ID, 1, 2, 3, 4, 5, 6, 7)
	m3u8, ok := svc.GetPlaylist(sess.ID)
	if !ok {
		t.Fatal("GetPlaylist: ok false")
	}
	if !strings.Contains(m3u8, "#EXT-X-MEDIA-SEQUENCE:2") {
		t.Errorf("default window 6 should show sequence 2..7: %s", m3u8)
	}
}

func TestService_GetPlaylist_not_found(t *testing.T) {
	svc, _ := newTestService(6)
	if _, ok := svc.GetPlaylist("missing"); ok {
		t.Error("expected ok false for missing session")
	}
}

func TestService_GetPlaylist_hide_segments_after_gap(t *testing.T) {
	svc, _ := newTestService(6)
	sess := svc.Start(1)
	register(t, svc, sess.ID, 1, 2, 4, 5)

	m3u8, _ := svc.GetPlaylist(sess.ID)
	if !strings.Contains(m3u8, "/1.ts") || !strings.Contains(m3u8, "/2.ts") {
		t.Errorf("expected /1.ts and /2.ts: %s", m3u8)
	}
	if strings.Contains(m3u8, "/4.ts") || strings.Contains(m3u8, "/5.ts") {
		t.Errorf("segments after the gap should stay hidden until 3 arrives: %s", m3u8)
	}

	register(t, svc, sess.ID, 3)
	m3u8, _ = svc.GetPlaylist(sess.ID)
	if strings.Count(m3u8, "#EXTINF") != 5 {
		t.Errorf("expected 5 segments once the gap is filled: %s", m3u8)
	}
}

func TestService_GetPlaylist_gap_falls_off_window(t *testing.T) {
	svc, _ := newTestService(3)
	sess := svc.Start(1)
	register(t, svc, sess.ID, 1, 3, 4, 5)

	m3u8, _ := svc.GetPlaylist(sess.ID)
	if !strings.Contains(m3u8, "#EXT-X-MEDIA-SEQUENCE:3") || strings.Count(m3u8, "#EXTINF") != 3 {
		t.Errorf("window should slide past the missing segment: %s", m3u8)
	}
}

func TestService_GetPlaylist_ended_includes_endlist(t *testing.T) {
	svc, _ := newTestService(6)
	sess := svc.Start(1)
	register(t, svc, sess.ID, 1)
	if err := svc.EndSession(sess.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	m3u8, _ := svc.GetPlaylist(sess.ID)
	if !strings.Contains(m3u8, "#EXT-X-ENDLIST") {
		t.Errorf("ended session should include #EXT-X-ENDLIST: %s", m3u8)
	}
}

func TestService_Stop_then_Heartbeat(t *testing.T) {
	svc, _ := newTestService(6)
	sess := svc.Start(1)
	if err := svc.Heartbeat(sess.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	svc.Stop(sess.ID)
	if err := svc.Heartbeat(sess.ID); err == nil {
		t.Error("heartbeat after stop should fail")
	}
	if svc.Alive(sess.ID) {
		t.Error("stopped session should not be alive")
	}
}

func TestService_Sweep_expires_idle_sessions(t *testing.T) {
	clock := newFakeClock()
	repo := NewInMemoryRepositoryWithStore(NewInMemoryStore(), clock.Now)
	svc := NewService(repo, 6, 90*time.Second, logger.Discard())
	svc.now = clock.Now

	idle := svc.Start(1)
	busy := svc.Start(2)
	for i := 0; i < 4; i++ {
		clock.Advance(30 * time.Second)
		_ = svc.Heartbeat(busy.ID)
	}

	if n := svc.Sweep(); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if svc.Alive(idle.ID) || !svc.Alive(busy.ID) {
		t.Error("only the idle session should expire")
	}
	if svc.ActiveSessions() != 1 {
		t.Errorf("expected 1 active session, got %d", svc.ActiveSessions())
	}
}

func TestService_RunSweeper_stops_with_context(t *testing.T) {
	svc, _ := newTestService(6)
	ctx, cancel := context.WithCancel(context.Background())

	sweeps := make(chan int, 16)
	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 5*time.Millisecond, func(n int) { sweeps <- n })
		close(done)
	}()

	select {
	case <-sweeps:
	case <-time.After(time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
