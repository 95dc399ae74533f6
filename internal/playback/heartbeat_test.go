package playback

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"camstream/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveness records, on the clock shared with the fake negotiator, when each
// session first went live and when it stopped being live.
type liveness struct {
	mu      sync.Mutex
	cur     string
	liveAt  map[string]uint64
	leftAt  map[string]uint64
	counter func() uint64
}

func (l *liveness) observe(st Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st.State.IsLive() && st.SessionID != "" {
		if _, ok := l.liveAt[st.SessionID]; !ok {
			l.liveAt[st.SessionID] = l.counter()
		}
		l.cur = st.SessionID
		return
	}
	if l.cur != "" {
		l.leftAt[l.cur] = l.counter()
		l.cur = ""
	}
}

// TestPlayer_heartbeats_only_while_live drives real players with random
// command and adapter event sequences and checks every heartbeat that would
// reach the relay against the session's live window.
func TestPlayer_heartbeats_only_while_live(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()
	sent := 0

	for run := 0; run < 30; run++ {
		var h *harness
		live := &liveness{liveAt: map[string]uint64{}, leftAt: map[string]uint64{}}
		h = newHarness(t, func(cfg *Config) {
			cfg.HeartbeatInterval = time.Millisecond
			cfg.OnStateChange = live.observe
		})
		live.counter = func() uint64 { return h.neg.clock.Add(1) }

		var adapter *fakeAdapter
		for step := 0; step < 40; step++ {
		drain:
			for {
				select {
				case a := <-h.factory.adapters:
					adapter = a
				default:
					break drain
				}
			}

			switch rng.Intn(7) {
			case 0:
				h.player.Play(ctx)
			case 1:
				require.NoError(t, h.player.Stop(ctx))
			case 2:
				require.NoError(t, h.player.Reload(ctx))
			case 3:
				if adapter != nil {
					adapter.send(transport.EventReady, nil)
				}
			case 4:
				if adapter != nil {
					adapter.send(transport.EventStalled, transport.ErrStallTimeout)
				}
			case 5:
				if adapter != nil {
					adapter.send(transport.EventFatal, errBoom)
				}
			case 6:
				time.Sleep(3 * time.Millisecond)
			}
		}
		require.NoError(t, h.player.Close())

		live.mu.Lock()
		for _, call := range h.neg.beatCalls() {
			if !call.live {
				continue
			}
			sent++
			wentLive, ok := live.liveAt[call.id]
			if !assert.True(t, ok, "run %d: heartbeat for %s which never played", run, call.id) {
				continue
			}
			assert.Greater(t, call.seq, wentLive, "run %d: heartbeat for %s before it played", run, call.id)
			if left, ok := live.leftAt[call.id]; ok {
				assert.Less(t, call.seq, left, "run %d: heartbeat for %s after it stopped", run, call.id)
			}
		}
		live.mu.Unlock()
	}
	assert.Positive(t, sent, "no heartbeat was ever sent")
}
