package config

import "time"

// Default timings of a stream session.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultEstablishTimeout  = 20 * time.Second
	DefaultStallTimeout      = 10 * time.Second
	DefaultRetryMinInterval  = 2 * time.Second
	DefaultRelaySessionTTL   = 90 * time.Second
)

// Settings is the environment-derived configuration shared by the binaries.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	RelayBaseURL string
	RelayToken   string

	CameraID        int64
	PrimaryAddress  string
	PlayableAddress string
	TransportKind   string

	HeartbeatInterval time.Duration
	EstablishTimeout  time.Duration
	StallTimeout      time.Duration
	RetryMinInterval  time.Duration

	// RelaySessionTTL and SegmentWindow are only read by the relay simulator.
	RelaySessionTTL time.Duration
	SegmentWindow   int
}

// FromEnv builds Settings from the process environment. Call Load first to
// merge a .env file into the environment.
func FromEnv() Settings {
	return Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		RelayBaseURL: GetEnv("RELAY_BASE_URL", "http://localhost:8090"),
		RelayToken:   GetEnv("RELAY_TOKEN", ""),

		CameraID:        GetEnvInt64("CAMERA_ID", 0),
		PrimaryAddress:  GetEnv("CAMERA_PRIMARY_URL", ""),
		PlayableAddress: GetEnv("CAMERA_PLAYABLE_URL", ""),
		TransportKind:   GetEnv("TRANSPORT_KIND", "segmented-http"),

		HeartbeatInterval: GetEnvMillis("HEARTBEAT_INTERVAL_MS", DefaultHeartbeatInterval),
		EstablishTimeout:  GetEnvMillis("ESTABLISH_TIMEOUT_MS", DefaultEstablishTimeout),
		StallTimeout:      GetEnvMillis("STALL_TIMEOUT_MS", DefaultStallTimeout),
		RetryMinInterval:  GetEnvMillis("RETRY_MIN_INTERVAL_MS", DefaultRetryMinInterval),

		RelaySessionTTL: GetEnvMillis("RELAY_SESSION_TTL_MS", DefaultRelaySessionTTL),
		SegmentWindow:   GetEnvInt("SLIDING_WINDOW_SIZE", 6),
	}
}
