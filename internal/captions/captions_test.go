package captions

import (
	"strings"
	"testing"

	"github.com/papercastlabs/papercast-core/internal/podcast"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cues := []podcast.CaptionCue{
		{StartSec: 4.0, EndSec: 6.88, Speaker: "A", Text: "Welcome to the show."},
		{StartSec: 7.48, EndSec: 12.123, Speaker: "B", Text: "Glad to be here: let's dig in."},
		{StartSec: 3672.001, EndSec: 3675.999, Speaker: "A", Text: "That wraps it up."},
	}

	track := Encode(cues)
	if !strings.HasPrefix(track, "WEBVTT\n") {
		t.Fatalf("track missing header: %q", track[:20])
	}

	got, err := Decode(track)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(cues) {
		t.Fatalf("expected %d cues, got %d", len(cues), len(got))
	}
	for i := range cues {
		if got[i] != cues[i] {
			t.Fatalf("cue %d mismatch: got %+v want %+v", i, got[i], cues[i])
		}
	}
}

func TestDecodeCue(t *testing.T) {
	track := "WEBVTT\n\n1\n00:00:05.000 --> 00:00:09.250\n[A]: Hello there\n"
	cues, err := Decode(track)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	cue := cues[0]
	if cue.StartSec != 5.0 || cue.EndSec != 9.25 {
		t.Fatalf("unexpected timing: %v -> %v", cue.StartSec, cue.EndSec)
	}
	if cue.Speaker != "A" || cue.Text != "Hello there" {
		t.Fatalf("unexpected payload: [%s]: %s", cue.Speaker, cue.Text)
	}
}

func TestDecodeWithoutIndexLines(t *testing.T) {
	track := "WEBVTT\n\n00:00:00.000 --> 00:00:01.500\n[B]: Short one\n"
	cues, err := Decode(track)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cues) != 1 || cues[0].Speaker != "B" {
		t.Fatalf("unexpected cues: %+v", cues)
	}
}

func TestDecodeRejectsMalformedTrack(t *testing.T) {
	cases := []struct {
		name  string
		track string
	}{
		{"missing header", "1\n00:00:00.000 --> 00:00:01.000\n[A]: hi\n"},
		{"reversed range", "WEBVTT\n\n1\n00:00:02.000 --> 00:00:01.000\n[A]: hi\n"},
		{"zero width", "WEBVTT\n\n1\n00:00:01.000 --> 00:00:01.000\n[A]: hi\n"},
		{"bad payload", "WEBVTT\n\n1\n00:00:00.000 --> 00:00:01.000\nno speaker tag\n"},
		{"missing text", "WEBVTT\n\n1\n00:00:00.000 --> 00:00:01.000\n"},
	}
	for _, tc := range cases {
		if _, err := Decode(tc.track); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestTimestampFormat(t *testing.T) {
	cases := []struct {
		sec  float64
		want string
	}{
		{0, "00:00:00.000"},
		{5, "00:00:05.000"},
		{9.25, "00:00:09.250"},
		{61.001, "00:01:01.001"},
		{3599.999, "00:59:59.999"},
		{3600, "01:00:00.000"},
	}
	for _, tc := range cases {
		got := FormatTimestamp(tc.sec)
		if got != tc.want {
			t.Fatalf("FormatTimestamp(%v) = %q, want %q", tc.sec, got, tc.want)
		}
		back, err := ParseTimestamp(got)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", got, err)
		}
		if back != RoundMS(tc.sec) {
			t.Fatalf("round trip of %v gave %v", tc.sec, back)
		}
	}
}

func TestParseTimestampRejectsOutOfRange(t *testing.T) {
	for _, ts := range []string{"00:61:00.000", "00:00:75.000", "garbage"} {
		if _, err := ParseTimestamp(ts); err == nil {
			t.Fatalf("expected error for %q", ts)
		}
	}
}
