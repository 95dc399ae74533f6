package relaysim

import (
	"strings"
	"testing"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

func TestBuildLivePlaylist_empty_not_ended(t *testing.T) {
	out := BuildLivePlaylist(nil, false)
	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Error("expected #EXTM3U header")
	}
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:1") {
		t.Error("expected target duration 1 for empty")
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0") {
		t.Error("expected media sequence 0")
	}
	if strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Error("should not contain ENDLIST when not ended")
	}
}

func TestBuildLivePlaylist_empty_ended(t *testing.T) {
	if out := BuildLivePlaylist(nil, true); !strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Error("expected #EXT-X-ENDLIST when ended")
	}
}

func TestBuildLivePlaylist_with_segments(t *testing.T) {
	segs := []Segment{
		{Sequence: 38, Duration: 2.0, Path: "/segments/38.ts"},
		{Sequence: 39, Duration: 2.0, Path: "/segments/39.ts"},
	}
	out := BuildLivePlaylist(segs, false)

	if !strings.Contains(out, "#EXT-X-TARGETDURATION:2") {
		t.Errorf("expected TARGETDURATION 2: %s", out)
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:38") {
		t.Errorf("expected MEDIA-SEQUENCE 38: %s", out)
	}
	if !strings.Contains(out, "#EXTINF:2.000,") {
		t.Errorf("expected EXTINF with duration 2.000: %s", out)
	}
}

func TestBuildLivePlaylist_target_duration_ceiling(t *testing.T) {
	out := BuildLivePlaylist([]Segment{{Sequence: 1, Duration: 2.5, Path: "/a.ts"}}, true)
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:3") {
		t.Errorf("expected TARGETDURATION 3 (ceil 2.5): %s", out)
	}
	if !strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Error("expected #EXT-X-ENDLIST when ended")
	}
}

// The playlist must be readable by the same parser the stream client uses.
func TestBuildLivePlaylist_parses_as_media_playlist(t *testing.T) {
	segs := []Segment{
		{Sequence: 10, Duration: 2.0, Path: "seg10.ts"},
		{Sequence: 11, Duration: 1.5, Path: "seg11.ts"},
		{Sequence: 12, Duration: 2.0, Path: "seg12.ts"},
	}
	pl, err := playlist.Unmarshal([]byte(BuildLivePlaylist(segs, true)))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		t.Fatalf("expected media playlist, got %T", pl)
	}
	if media.MediaSequence != 10 {
		t.Errorf("expected media sequence 10, got %d", media.MediaSequence)
	}
	if len(media.Segments) != 3 || media.Segments[0].URI != "seg10.ts" {
		t.Errorf("unexpected segments: %+v", media.Segments)
	}
	if !media.Endlist {
		t.Error("expected Endlist")
	}
}
