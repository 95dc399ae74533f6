// Package relaysim is a small in-process relay backend. It hands out stream
// sessions, expires the ones that stop sending heartbeats, serves a live HLS
// media playlist per session and pushes JPEG frames over a socket.
package relaysim

import "time"

// SessionID identifies a relay session.
type SessionID string

// Segment is a single HLS media segment registered by an ingest process.
// This also matches the input JSON payload for registering segments.
type Segment struct {
	Sequence int64   `json:"sequence"`
	Duration float64 `json:"duration"`
	Path     string  `json:"path"`

	ReceivedAt time.Time `json:"-"`
}

// Session is the relay's record of one viewer session.
type Session struct {
	ID         SessionID
	CameraID   int64
	CreatedAt  time.Time
	LastSeenAt time.Time
	Segments   map[int64]Segment

	// Ended means the camera feed finished; the playlist carries ENDLIST.
	Ended bool
}

type startRequest struct {
	CameraID int64 `json:"cameraId"`
}

type startResponse struct {
	SessionID     string `json:"sessionId"`
	StreamAddress string `json:"streamAddress"`
}

type stopRequest struct {
	SessionID string `json:"sessionId"`
}
