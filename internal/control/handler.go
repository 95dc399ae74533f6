// Package control exposes a player over HTTP: status, the play, stop and
// reload commands, and the latest still picture.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"camstream/internal/playback"
	"camstream/internal/render"

	"github.com/go-chi/chi/v5"
)

const commandTimeout = 5 * time.Second

// Player is the part of playback.Player the control surface drives.
type Player interface {
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
	Status() playback.Status
}

// Picture is a source of still images and render counters.
type Picture interface {
	JPEG() ([]byte, error)
	Stats() render.Stats
}

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	State             string       `json:"state"`
	CameraID          int64        `json:"cameraId"`
	SessionID         string       `json:"sessionId,omitempty"`
	Transport         string       `json:"transport"`
	Generation        uint64       `json:"generation"`
	Error             string       `json:"error,omitempty"`
	LastHeartbeatAt   time.Time    `json:"lastHeartbeatAt,omitzero"`
	HeartbeatFailures int          `json:"heartbeatFailures"`
	Frames            uint64       `json:"frames"`
	ShowRetry         bool         `json:"showRetry"`
	ShowStall         bool         `json:"showStallIndicator"`
	Loading           bool         `json:"loading"`
	NeedsAuth         bool         `json:"needsAuth"`
	Render            render.Stats `json:"render"`
}

// Handler exposes player control endpoints using go-chi.
type Handler struct {
	player  Player
	picture Picture
	log     *slog.Logger
}

// NewHandler returns a Handler for player. picture may be nil, in which case
// the snapshot endpoint always answers 404.
func NewHandler(player Player, picture Picture, log *slog.Logger) *Handler {
	return &Handler{player: player, picture: picture, log: log}
}

// Routes mounts the control endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Post("/play", h.command("play", Player.Play))
	r.Post("/stop", h.command("stop", Player.Stop))
	r.Post("/reload", h.command("reload", Player.Reload))
	r.Get("/snapshot.jpg", h.GetSnapshot)
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) status() StatusResponse {
	st := h.player.Status()
	resp := StatusResponse{
		State:             st.State.String(),
		CameraID:          st.CameraID,
		SessionID:         st.SessionID,
		Transport:         string(st.Transport),
		Generation:        st.Generation,
		LastHeartbeatAt:   st.LastHeartbeatAt,
		HeartbeatFailures: st.HeartbeatFailures,
		Frames:            st.Frames,
		ShowRetry:         st.ShowRetry(),
		ShowStall:         st.ShowStallIndicator(),
		Loading:           st.Loading(),
		NeedsAuth:         st.NeedsAuth(),
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if h.picture != nil {
		resp.Render = h.picture.Stats()
	}
	return resp
}

// command handles POST /play, /stop and /reload. The body is the status
// after the command was applied.
func (h *Handler) command(name string, run func(Player, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		if err := run(h.player, ctx); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, playback.ErrRetryThrottled):
				status = http.StatusTooManyRequests
			case errors.Is(err, playback.ErrPlayerClosed):
				status = http.StatusServiceUnavailable
			case errors.Is(err, context.DeadlineExceeded):
				status = http.StatusGatewayTimeout
			}
			h.log.Info("command rejected", slog.String("command", name), slog.String("error", err.Error()))
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, h.status())
	}
}

// GetSnapshot handles GET /snapshot.jpg.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.picture == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	data, err := h.picture.JPEG()
	if err != nil {
		if errors.Is(err, render.ErrNoPicture) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("snapshot encode failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
