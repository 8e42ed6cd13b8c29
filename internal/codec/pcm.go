// Package codec converts between floating-point audio samples and the 16-bit
// signed integer PCM wire format used by the coaching stream, in both
// directions, plus base64 text encoding for transport.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/domain/repositories"
)

const (
	// InputSampleRate is the fixed rate of outbound microphone audio.
	InputSampleRate = 16000
	// OutputSampleRate is the fixed rate of synthesized audio from the model.
	OutputSampleRate = 24000

	bytesPerSample = 2
	scale          = 32768
)

// Envelope is an outbound media payload ready for the wire.
type Envelope struct {
	Data     string `json:"data"` // base64
	MIMEType string `json:"mimeType"`
}

// EncodePCM16 converts float samples in [-1.0, 1.0] to raw 16-bit signed
// little-endian PCM. The transform truncates toward zero, so it is lossy by
// design (one quantization step) but deterministic.
func EncodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := int32(s * scale)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(buf[i*bytesPerSample:], uint16(int16(v)))
	}
	return buf
}

// EncodeOutbound converts float samples to 16-bit PCM and wraps them in the
// base64 wire envelope.
func EncodeOutbound(samples []float32) Envelope {
	return Envelope{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
		MIMEType: repositories.AudioMIMEType,
	}
}

// EncodeFrame wraps a JPEG frame snapshot for the wire.
func EncodeFrame(jpeg []byte) Envelope {
	return Envelope{
		Data:     base64.StdEncoding.EncodeToString(jpeg),
		MIMEType: repositories.VideoMIMEType,
	}
}

// Buffer is a decoded multi-channel float audio buffer.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || len(b.Channels) == 0 {
		return 0
	}
	return time.Duration(len(b.Channels[0])) * time.Second / time.Duration(b.SampleRate)
}

// DecodeInbound interprets payload as interleaved 16-bit signed little-endian
// integers, de-interleaves per channel and normalizes each sample by 1/32768.
// A payload whose byte length is not a multiple of 2*channels is rejected
// with ErrMalformedFrame; the caller drops the frame and continues.
func DecodeInbound(payload []byte, sampleRate, channels int) (Buffer, error) {
	if channels <= 0 {
		return Buffer{}, fmt.Errorf("%w: channel count %d", entities.ErrMalformedFrame, channels)
	}
	frameBytes := bytesPerSample * channels
	if len(payload)%frameBytes != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes is not a multiple of %d",
			entities.ErrMalformedFrame, len(payload), frameBytes)
	}

	frames := len(payload) / frameBytes
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		base := f * frameBytes
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(payload[base+ch*bytesPerSample:]))
			out[ch][f] = float32(v) / scale
		}
	}
	return Buffer{Channels: out, SampleRate: sampleRate}, nil
}

// DurationOfPCM returns the playback length of a raw mono 16-bit PCM payload.
func DurationOfPCM(payload []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(payload) / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
