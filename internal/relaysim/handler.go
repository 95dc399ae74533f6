package relaysim

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"camstream/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"

	// DefaultFrameInterval paces the socket frame push.
	DefaultFrameInterval = 200 * time.Millisecond
	writeWait            = 5 * time.Second
)

// Handler exposes relay endpoints using go-chi.
type Handler struct {
	svc           *Service
	log           *slog.Logger
	metrics       *metrics.Metrics
	token         string
	frameInterval time.Duration
	upgrader      websocket.Upgrader
}

// NewHandler returns a Handler over svc. token is the bearer token callers
// must present; the empty token accepts any bearer. Metrics may be nil.
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics, token string) *Handler {
	return &Handler{
		svc:           svc,
		log:           log,
		metrics:       m,
		token:         token,
		frameInterval: DefaultFrameInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetFrameInterval changes the socket frame rate.
func (h *Handler) SetFrameInterval(d time.Duration) {
	if d > 0 {
		h.frameInterval = d
	}
}

// Routes mounts every relay endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.RequireBearer)
		r.Post("/stream/start", h.StartStream)
		r.Post("/stream/stop", h.StopStream)
		r.Post("/stream/{session_id}/heartbeat", h.Heartbeat)
		r.Get("/stream/{session_id}", h.GetPlaylist)
		r.Get("/ws/{session_id}", h.FrameSocket)
	})
	// Ingest side.
	r.Post("/stream/{session_id}/segments", h.RegisterSegment)
	r.Post("/stream/{session_id}/end", h.EndStream)
}

// RequireBearer rejects requests without an acceptable bearer token.
func (h *Handler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" || (h.token != "" && token != h.token) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartStream handles POST /stream/start.
// Body: { "cameraId": 7 }.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CameraID <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sess := h.svc.Start(req.CameraID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(startResponse{
		SessionID:     string(sess.ID),
		StreamAddress: "/stream/" + string(sess.ID),
	})
}

// StopStream handles POST /stream/stop. Unknown sessions are not an error.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.svc.Stop(SessionID(req.SessionID))
	w.WriteHeader(http.StatusNoContent)
}

// Heartbeat handles POST /stream/{session_id}/heartbeat.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if err := h.svc.Heartbeat(id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("heartbeat failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterSegment handles POST /stream/{session_id}/segments.
// Body: { "sequence": 42, "duration": 2.0, "path": "/segments/42.ts" }.
func (h *Handler) RegisterSegment(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))

	var seg Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil || seg.Duration <= 0 || seg.Path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.RegisterSegment(id, seg); err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, ErrSessionEnded):
			h.log.Info("segment rejected session ended",
				slog.String("session_id", string(id)),
				slog.Int64("sequence", seg.Sequence))
			w.WriteHeader(http.StatusConflict)
		default:
			h.log.Error("register segment failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	h.log.Debug("segment registered", slog.String("session_id", string(id)), slog.Int64("sequence", seg.Sequence))
	h.metrics.IncSegmentsRegistered()
	w.WriteHeader(http.StatusCreated)
}

// EndStream handles POST /stream/{session_id}/end.
func (h *Handler) EndStream(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if err := h.svc.EndSession(id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.log.Info("stream ended", slog.String("session_id", string(id)))
	w.WriteHeader(http.StatusOK)
}

// GetPlaylist handles GET /stream/{session_id}.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	m3u8, ok := h.svc.GetPlaylist(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

// FrameSocket handles GET /ws/{session_id}: it upgrades to a websocket and
// pushes one JPEG per binary message until the session goes away.
func (h *Handler) FrameSocket(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	sess, ok := h.svc.Lookup(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("socket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Read pump: control frames and client close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.frameInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		if !h.svc.Alive(id) {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
		frame, err := encodeFrame(n, sess.CameraID)
		if err != nil {
			h.log.Error("encode frame failed", slog.String("error", err.Error()))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
