package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes the clip as a 16-bit PCM WAV stream.
func EncodeWAV(ws io.WriteSeeker, c Clip) error {
	samples, err := c.Samples()
	if err != nil {
		return err
	}
	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: c.Channels, SampleRate: c.SampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		buffer.Data[i] = int(s)
	}

	enc := wav.NewEncoder(ws, c.SampleRate, 16, c.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile encodes the clip into a WAV file at path.
func WriteWAVFile(path string, c Clip) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()
	if err := EncodeWAV(file, c); err != nil {
		return err
	}
	return file.Close()
}

// DecodeWAV reads a 16-bit PCM WAV stream into a clip.
func DecodeWAV(rs io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(rs)
	buffer, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return Clip{}, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}
	samples := make([]int16, len(buffer.Data))
	for i, s := range buffer.Data {
		samples[i] = int16(s)
	}
	return FromSamples(samples, buffer.Format.SampleRate, buffer.Format.NumChannels), nil
}

// DecodeWAVBytes reads an in-memory WAV payload into a clip.
func DecodeWAVBytes(data []byte) (Clip, error) {
	return DecodeWAV(bytes.NewReader(data))
}
