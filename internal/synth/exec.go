package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/papercastlabs/papercast-core/internal/config"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
}

type execResponse struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// NewExecSynth wraps an external TTS command. The command receives a JSON
// request on stdin and must answer with base64-encoded little-endian
// 16-bit mono PCM on stdout.
func NewExecSynth(cfg config.SynthConfig) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command is empty")
	}
	return &execSynth{cmd: args, sampleRate: cfg.SampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.VoiceID,
		SampleRate: e.sampleRate,
	})
	if err != nil {
		return Clip{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	command := exec.CommandContext(ctx, base, args...)
	command.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Clip{}, fmt.Errorf("synth command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Clip{}, fmt.Errorf("decode synth response: %w", err)
	}
	return clipFromExecResponse(req.Text, resp, e.sampleRate)
}

// clipFromExecResponse validates and decodes a backend response. The
// backend must honor the requested sample rate: the mixer assembles at
// the configured rate, so a mismatched clip would change playback speed
// and desync captions. Such responses are rejected, not resampled.
func clipFromExecResponse(text string, resp execResponse, sampleRate int) (Clip, error) {
	if resp.SampleRate != 0 && resp.SampleRate != sampleRate {
		return Clip{}, fmt.Errorf("synth returned sample rate %d, requested %d", resp.SampleRate, sampleRate)
	}
	raw, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return Clip{}, fmt.Errorf("decode synth pcm: %w", err)
	}
	if len(raw)%2 != 0 {
		return Clip{}, fmt.Errorf("synth pcm payload not aligned")
	}

	pcm := make([]int, len(raw)/2)
	for i := range pcm {
		pcm[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return Clip{
		Text:       text,
		PCM:        pcm,
		SampleRate: sampleRate,
		DurationMS: durationMS(len(pcm), sampleRate),
	}, nil
}
