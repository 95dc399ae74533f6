package relay

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin returns scheme://host of u with an empty path.
func Origin(u *url.URL) *url.URL {
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}

// ResolveStreamAddress turns the relay's streamAddress into an absolute URL.
// Addresses carrying a scheme are used as they are; anything else is a path
// joined to origin.
func ResolveStreamAddress(origin *url.URL, streamAddress string) (*url.URL, error) {
	if streamAddress == "" {
		return nil, fmt.Errorf("empty stream address")
	}
	ref, err := url.Parse(streamAddress)
	if err != nil {
		return nil, fmt.Errorf("parse stream address %q: %w", streamAddress, err)
	}
	if ref.Scheme != "" {
		return ref, nil
	}
	if !strings.HasPrefix(ref.Path, "/") {
		ref.Path = "/" + ref.Path
	}
	return Origin(origin).ResolveReference(ref), nil
}

// ControlURL returns the frame socket address for sessionID: origin/ws/{id}
// with http mapped to ws and https to wss.
func ControlURL(origin *url.URL, sessionID string) (*url.URL, error) {
	scheme, err := socketScheme(origin.Scheme)
	if err != nil {
		return nil, err
	}
	return &url.URL{
		Scheme:  scheme,
		Host:    origin.Host,
		Path:    "/ws/" + sessionID,
		RawPath: "/ws/" + url.PathEscape(sessionID),
	}, nil
}

func socketScheme(s string) (string, error) {
	switch strings.ToLower(s) {
	case "http", "ws":
		return "ws", nil
	case "https", "wss":
		return "wss", nil
	default:
		return "", fmt.Errorf("no socket scheme for %q", s)
	}
}
