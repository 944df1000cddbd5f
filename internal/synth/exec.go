package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/config"
	"github.com/intonelabs/intone/internal/emotion"
)

// execEngine drives one long-lived synthesis subprocess speaking
// newline-delimited JSON over stdio: one request line in, one response line
// out. The subprocess loads the voice model once at startup and holds it for
// the life of the engine, so per-segment calls never pay the model-load cost
// again. The process is a single-owner resource; calls serialize through the
// mutex. An I/O failure kills the process and the next call restarts it.
type execEngine struct {
	cmd []string
	cfg config.EngineConfig

	mu     sync.Mutex
	proc   *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *bytes.Buffer
}

type execRequest struct {
	Text        string  `json:"text"`
	Model       string  `json:"model,omitempty"`
	LengthScale float64 `json:"length_scale"`
	NoiseScale  float64 `json:"noise_scale"`
	NoiseW      float64 `json:"noise_w"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
}

type execResponse struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
	Error      string `json:"error"`
}

// NewExecEngine builds an engine from a shell-style command line. The
// subprocess is started lazily on the first synthesis call.
func NewExecEngine(cfg config.EngineConfig) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &execEngine{cmd: args, cfg: cfg}, nil
}

// start launches the subprocess. Caller holds the mutex.
func (e *execEngine) start() error {
	args := append([]string{}, e.cmd[1:]...)
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	command := exec.Command(e.cmd[0], args...)

	stdin, err := command.StdinPipe()
	if err != nil {
		return fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	command.Stderr = stderr

	if err := command.Start(); err != nil {
		return fmt.Errorf("start engine command: %w", err)
	}

	e.proc = command
	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	e.stderr = stderr
	return nil
}

// stop kills the subprocess and forgets it. Caller holds the mutex.
func (e *execEngine) stop() {
	if e.proc == nil {
		return
	}
	_ = e.stdin.Close()
	_ = e.proc.Process.Kill()
	_ = e.proc.Wait()
	e.proc = nil
	e.stdin = nil
	e.stdout = nil
	e.stderr = nil
}

// Close shuts the subprocess down. Safe to call when it never started.
func (e *execEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stop()
	return nil
}

func (e *execEngine) Synthesize(ctx context.Context, text string, p emotion.Profile) (audio.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.proc == nil {
		if err := e.start(); err != nil {
			return audio.Clip{}, err
		}
	}

	payload, err := json.Marshal(execRequest{
		Text:        text,
		Model:       e.cfg.ModelPath,
		LengthScale: p.LengthScale,
		NoiseScale:  p.NoiseScale,
		NoiseW:      p.NoiseW,
		SampleRate:  e.cfg.SampleRate,
		Channels:    e.cfg.Channels,
	})
	if err != nil {
		return audio.Clip{}, err
	}

	line, err := e.roundTrip(ctx, payload)
	if err != nil {
		stderr := ""
		if e.stderr != nil {
			stderr = e.stderr.String()
		}
		e.stop()
		if stderr != "" {
			return audio.Clip{}, fmt.Errorf("engine request failed: %w: %s", err, stderr)
		}
		return audio.Clip{}, fmt.Errorf("engine request failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		e.stop()
		return audio.Clip{}, fmt.Errorf("decode engine response: %w", err)
	}
	if resp.Error != "" {
		return audio.Clip{}, fmt.Errorf("engine reported: %s", resp.Error)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode engine pcm: %w", err)
	}
	rate := resp.SampleRate
	if rate == 0 {
		rate = e.cfg.SampleRate
	}
	return audio.Clip{SampleRate: rate, Channels: e.cfg.Channels, PCM: pcm}, nil
}

// roundTrip writes one request line and reads one response line. A context
// cancellation kills the subprocess to unblock the read. Caller holds the
// mutex.
func (e *execEngine) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	done := make(chan struct{})
	proc := e.proc
	go func() {
		select {
		case <-ctx.Done():
			_ = proc.Process.Kill()
		case <-done:
		}
	}()
	defer close(done)

	if _, err := e.stdin.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	line, err := e.stdout.ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}
