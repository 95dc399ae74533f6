package relay

import "net/url"

// CameraSource describes where a camera's video comes from. It is supplied by
// camera management and never mutated here.
type CameraSource struct {
	CameraID int64
	// PrimaryAddress is the native transport address, usually rtsp://.
	PrimaryAddress string
	// PlayableAddress is an optional address a viewer can load directly.
	PlayableAddress string
}

// SessionHandle is the result of a successful negotiation.
type SessionHandle struct {
	SessionID string
	// StreamAddress is the address exactly as the relay returned it.
	StreamAddress string
	// PlayableURL is StreamAddress resolved against the relay origin.
	PlayableURL *url.URL
	// ControlURL is the socket address for frame-push transports (ws or wss).
	ControlURL *url.URL
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
