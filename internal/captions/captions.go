// Package captions encodes and decodes the timed caption track that ships
// alongside the mixed podcast audio. The format is line based: a WEBVTT
// header, then for each cue an index line, a timestamp range line and a
// "[speaker]: text" payload line, with a blank line between cues.
package captions

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/papercastlabs/papercast-core/internal/podcast"
)

const header = "WEBVTT"

// Encode serializes cues to the caption track format. Cues must already be
// in ascending start order; timestamps are written with millisecond
// precision so Decode(Encode(cues)) reproduces the input exactly.
func Encode(cues []podcast.CaptionCue) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for i, cue := range cues {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(FormatTimestamp(cue.StartSec))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(cue.EndSec))
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s]: %s\n", cue.Speaker, cue.Text)
	}
	return b.String()
}

// Decode parses a caption track produced by Encode back into cues.
func Decode(track string) ([]podcast.CaptionCue, error) {
	scanner := bufio.NewScanner(strings.NewReader(track))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("empty caption track")
	}
	if got := strings.TrimSpace(scanner.Text()); got != header {
		return nil, fmt.Errorf("unexpected caption header %q", got)
	}

	var cues []podcast.CaptionCue
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Index lines are optional noise for the parser.
		if _, err := strconv.Atoi(line); err == nil {
			if !scanner.Scan() {
				return nil, fmt.Errorf("cue %d: missing timestamp line", len(cues)+1)
			}
			line = strings.TrimSpace(scanner.Text())
		}

		start, end, err := parseRange(line)
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", len(cues)+1, err)
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("cue %d: missing text line", len(cues)+1)
		}
		speaker, text, err := parsePayload(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", len(cues)+1, err)
		}
		cues = append(cues, podcast.CaptionCue{
			StartSec: start,
			EndSec:   end,
			Speaker:  speaker,
			Text:     text,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read caption track: %w", err)
	}
	return cues, nil
}

func parseRange(line string) (float64, float64, error) {
	parts := strings.Split(line, " --> ")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timestamp range %q", line)
	}
	start, err := ParseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, fmt.Errorf("cue range %q is not increasing", line)
	}
	return start, end, nil
}

func parsePayload(line string) (string, string, error) {
	rest, ok := strings.CutPrefix(line, "[")
	if !ok {
		return "", "", fmt.Errorf("malformed cue payload %q", line)
	}
	speaker, text, ok := strings.Cut(rest, "]: ")
	if !ok || speaker == "" {
		return "", "", fmt.Errorf("malformed cue payload %q", line)
	}
	return speaker, text, nil
}

// FormatTimestamp renders seconds as HH:MM:SS.mmm.
func FormatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(ts string) (float64, error) {
	var h, m, s, ms int64
	if _, err := fmt.Sscanf(ts, "%02d:%02d:%02d.%03d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	if m > 59 || s > 59 || ms > 999 {
		return 0, fmt.Errorf("timestamp %q out of range", ts)
	}
	total := h*3600000 + m*60000 + s*1000 + ms
	return float64(total) / 1000, nil
}

// RoundMS rounds a seconds value to millisecond precision, the resolution
// the track format can represent.
func RoundMS(sec float64) float64 {
	return math.Round(sec*1000) / 1000
}
