// Package speaker implements output.Output on the host's default sound
// device through github.com/ebitengine/oto/v3.
//
// oto allows one audio context per process, so every Output shares it. The
// first Initialize fixes the device sample rate; later outputs must agree or
// omit sample_rate.
package speaker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/sonoscope/pkg/audio"
	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
)

const (
	defaultSampleRate = 44100
	defaultBuffer     = 100 * time.Millisecond
	pollInterval      = 10 * time.Millisecond
)

var shared struct {
	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

func openDevice(rate int, buffer time.Duration) (*oto.Context, int, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.ctx != nil {
		if rate != 0 && rate != shared.rate {
			return nil, 0, fmt.Errorf("speaker: device already open at %d Hz, cannot reopen at %d Hz", shared.rate, rate)
		}
		return shared.ctx, shared.rate, nil
	}
	if rate == 0 {
		rate = defaultSampleRate
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("speaker: open device: %w", err)
	}
	<-ready
	shared.ctx, shared.rate = ctx, rate
	slog.Info("audio device opened", "format", audio.Format{SampleRate: rate, Channels: 1}, "buffer", buffer)
	return ctx, rate, nil
}

// Output plays through the default device.
type Output struct {
	mu     sync.Mutex
	ctx    *oto.Context
	rate   int
	volume float64
	player *oto.Player
	stop   chan struct{}
}

// New returns an unopened speaker output.
func New() *Output {
	return &Output{volume: 1, stop: make(chan struct{})}
}

// Initialize reads sample_rate, buffer and volume.
func (o *Output) Initialize(_ context.Context, opts provider.Options) error {
	if err := opts.Check("sample_rate", "buffer", "volume"); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	rate, err := opts.Int("sample_rate", 0)
	if err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	buffer, err := opts.Duration("buffer", defaultBuffer)
	if err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	vol, err := opts.Float("volume", 1)
	if err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	if err := output.CheckVolume(vol); err != nil {
		return err
	}
	ctx, actual, err := openDevice(rate, buffer)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.ctx, o.rate, o.volume = ctx, actual, vol
	o.mu.Unlock()
	return nil
}

// Play implements output.Output. Buffers at other rates are resampled to the
// device rate.
func (o *Output) Play(ctx context.Context, samples []float32, sampleRate int, blocking bool) error {
	if err := output.CheckPlay(samples, sampleRate); err != nil {
		return err
	}
	o.mu.Lock()
	if o.ctx == nil {
		o.mu.Unlock()
		return output.ErrNotInitialized
	}
	pcm := audio.Resample(samples, sampleRate, o.rate)
	p := o.ctx.NewPlayer(bytes.NewReader(audio.Float32ToBytes(pcm)))
	p.SetVolume(o.volume)
	o.replace(p)
	stop := o.stop
	o.mu.Unlock()

	p.Play()
	if !blocking {
		return nil
	}

	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for p.IsPlaying() {
		select {
		case <-tick.C:
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// replace swaps in p and silences the previous player. Callers hold mu.
func (o *Output) replace(p *oto.Player) {
	if o.player != nil {
		o.player.Pause()
		if err := o.player.Close(); err != nil {
			slog.Debug("speaker: close player", "err", err)
		}
	}
	o.player = p
	close(o.stop)
	o.stop = make(chan struct{})
}

// Stop implements output.Output.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replace(nil)
	return nil
}

// SetVolume implements output.Output. It applies to the current buffer too.
func (o *Output) SetVolume(v float64) error {
	if err := output.CheckVolume(v); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = v
	if o.player != nil {
		o.player.SetVolume(v)
	}
	return nil
}

// ListDevices reports the default device; oto does not enumerate hardware.
func (o *Output) ListDevices(context.Context) ([]output.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rate := o.rate
	if rate == 0 {
		rate = defaultSampleRate
	}
	return []output.Device{{ID: "default", Name: "System default output", Default: true, SampleRate: rate, Channels: 1}}, nil
}

// Close stops playback. The shared device stays open for the process.
func (o *Output) Close() error {
	return o.Stop()
}

var _ output.Output = (*Output)(nil)
