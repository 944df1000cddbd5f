package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/config"
	"github.com/intonelabs/intone/internal/emotion"
)

// wyomingEngine synthesizes through a Piper server speaking the Wyoming
// protocol over TCP (default port 10200). Each event is framed as:
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
//
// Connections are per-request, so concurrent calls are safe without extra
// locking.
type wyomingEngine struct {
	endpoint string
	cfg      config.EngineConfig
}

// NewWyomingEngine builds an engine talking to a Piper server at
// cfg.Endpoint (host:port, tcp:// and http:// prefixes tolerated).
func NewWyomingEngine(cfg config.EngineConfig) (Engine, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "tcp://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if endpoint == "" {
		return nil, fmt.Errorf("wyoming endpoint is empty")
	}
	return &wyomingEngine{endpoint: endpoint, cfg: cfg}, nil
}

func (w *wyomingEngine) Synthesize(ctx context.Context, text string, p emotion.Profile) (audio.Clip, error) {
	if text == "" {
		return audio.Clip{}, fmt.Errorf("empty text for synthesis")
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", w.endpoint)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(60 * time.Second))
	}

	synthEvent := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text": text,
			"voice": map[string]any{
				"name": w.cfg.ModelPath,
			},
			"synthesis": map[string]any{
				"length_scale": p.LengthScale,
				"noise_scale":  p.NoiseScale,
				"noise_w":      p.NoiseW,
			},
		},
	}
	if err := writeEvent(conn, synthEvent, nil); err != nil {
		return audio.Clip{}, fmt.Errorf("sending synthesize event: %w", err)
	}

	var (
		pcmBuf     bytes.Buffer
		sampleRate = w.cfg.SampleRate
		channels   = w.cfg.Channels
	)
	for {
		evt, payload, err := readEvent(conn)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("reading piper event: %w", err)
		}
		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				sampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				channels = int(ch)
			}
		case "audio-chunk":
			if len(payload) > 0 {
				pcmBuf.Write(payload)
			}
		case "audio-stop":
			return audio.Clip{SampleRate: sampleRate, Channels: channels, PCM: pcmBuf.Bytes()}, nil
		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return audio.Clip{}, fmt.Errorf("piper error: %s", msg)
		}
	}
}

type wyomingEvent struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	evt.PayloadLength = 0 // length travels in the header line
	jsonBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	header := fmt.Sprintf("%d %d\n", len(jsonBytes), len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(jsonBytes); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func readEvent(r io.Reader) (*wyomingEvent, []byte, error) {
	headerBuf := make([]byte, 0, 64)
	oneByte := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, oneByte); err != nil {
			return nil, nil, fmt.Errorf("reading header: %w", err)
		}
		if oneByte[0] == '\n' {
			break
		}
		headerBuf = append(headerBuf, oneByte[0])
	}

	parts := strings.SplitN(string(headerBuf), " ", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", string(headerBuf))
	}
	jsonLen, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json_length: %w", err)
	}
	payloadLen, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload_length: %w", err)
	}

	jsonBuf := make([]byte, jsonLen+1) // +1 for the trailing \n
	if _, err := io.ReadFull(r, jsonBuf); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}
	jsonBuf = jsonBuf[:jsonLen]

	var evt wyomingEvent
	if err := json.Unmarshal(jsonBuf, &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}
