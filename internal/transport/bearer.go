package transport

import (
	"net/http"

	"camstream/internal/relay"
)

// bearerTransport adds the current bearer token to every outgoing request.
type bearerTransport struct {
	base  http.RoundTripper
	creds relay.Credentials
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := t.creds.BearerToken()
	if !ok {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(req)
}

// withBearer returns a shallow copy of hc whose transport injects credentials.
func withBearer(hc *http.Client, creds relay.Credentials) *http.Client {
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	out := *hc
	out.Transport = &bearerTransport{base: base, creds: creds}
	return &out
}

// bearerHeader returns the Authorization header for socket handshakes.
func bearerHeader(creds relay.Credentials) http.Header {
	h := http.Header{}
	if creds == nil {
		return h
	}
	if token, ok := creds.BearerToken(); ok {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
