package discord

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/sonoscope/pkg/audio"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
	// opusMaxPacket bounds one encoded packet.
	opusMaxPacket = 4000
)

// frameEncoder turns one 20 ms interleaved stereo frame into a packet.
type frameEncoder interface {
	encode(pcm []int16) ([]byte, error)
}

type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder(bitrate int) (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return &opusEncoder{enc: enc}, nil
}

func (e *opusEncoder) encode(pcm []int16) ([]byte, error) {
	opus, err := e.enc.Encode(pcm, opusFrameSize, opusMaxPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return opus, nil
}

// toFrames converts mono float32 at rate into 20 ms interleaved 48 kHz
// stereo int16 frames. The last frame is zero-padded.
func toFrames(samples []float32, rate int, volume float64) [][]int16 {
	pcm := audio.Resample(samples, rate, opusSampleRate)
	if volume != 1 {
		pcm = append([]float32(nil), pcm...)
		audio.Gain(pcm, float32(volume))
	}
	stereo := audio.ToInt16(audio.MonoToStereo(pcm))

	const frameLen = opusFrameSize * opusChannels
	frames := make([][]int16, 0, (len(stereo)+frameLen-1)/frameLen)
	for len(stereo) > 0 {
		f := make([]int16, frameLen)
		n := copy(f, stereo)
		stereo = stereo[n:]
		frames = append(frames, f)
	}
	return frames
}
