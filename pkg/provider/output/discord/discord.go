// Package discord implements output.Output by streaming audio into a Discord
// voice channel through bwmarrin/discordgo.
//
// Buffers are resampled to 48 kHz stereo, cut into 20 ms frames, Opus
// encoded and fed to the voice connection's send channel. discordgo paces
// the send channel in real time, so the send loop needs no timer of its own.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
)

// voice is the part of *discordgo.VoiceConnection the output needs.
type voice interface {
	Speaking(bool) error
	Disconnect() error
}

// playback tracks one Play call until its frames are sent or replaced.
type playback struct {
	done chan struct{}
	once sync.Once
}

func (p *playback) finish() {
	if p != nil {
		p.once.Do(func() { close(p.done) })
	}
}

// Output streams audio into one voice channel. It is safe for concurrent
// use.
type Output struct {
	mu      sync.Mutex
	session *discordgo.Session
	guildID string
	vc      voice
	send    chan<- []byte
	enc     frameEncoder
	volume  float64

	queue    [][]int16
	current  *playback
	speaking bool

	wake      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// New returns an unconnected Discord output.
func New() *Output {
	return &Output{volume: 1, wake: make(chan struct{}, 1), closed: make(chan struct{})}
}

// Initialize reads token, guild_id, channel_id (all required) and bitrate,
// opens a gateway session and joins the voice channel.
func (o *Output) Initialize(_ context.Context, opts provider.Options) error {
	if err := opts.Check("token", "guild_id", "channel_id", "bitrate"); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	var errs []error
	get := func(k string) string {
		v, err := opts.String(k, "")
		if err != nil {
			errs = append(errs, err)
		} else if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", k))
		}
		return v
	}
	token, guildID, channelID := get("token"), get("guild_id"), get("channel_id")
	bitrate, err := opts.Int("bitrate", 0)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("discord: %w", err)
	}

	enc, err := newOpusEncoder(bitrate)
	if err != nil {
		return err
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	// Not deafened would make Discord send us everyone's audio.
	vc, err := session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	o.mu.Lock()
	o.session, o.guildID = session, guildID
	o.mu.Unlock()
	o.attach(vc, vc.OpusSend, enc)
	slog.Info("joined discord voice channel", "guild", guildID, "channel", channelID)
	return nil
}

// attach wires a voice connection and starts the send loop.
func (o *Output) attach(vc voice, send chan<- []byte, enc frameEncoder) {
	o.mu.Lock()
	o.vc, o.send, o.enc = vc, send, enc
	o.mu.Unlock()
	go o.sendLoop()
}

// Play implements output.Output.
func (o *Output) Play(ctx context.Context, samples []float32, sampleRate int, blocking bool) error {
	if err := output.CheckPlay(samples, sampleRate); err != nil {
		return err
	}
	o.mu.Lock()
	if o.vc == nil {
		o.mu.Unlock()
		return output.ErrNotInitialized
	}
	select {
	case <-o.closed:
		o.mu.Unlock()
		return errors.New("discord: output closed")
	default:
	}
	o.current.finish()
	pb := &playback{done: make(chan struct{})}
	o.current = pb
	o.queue = toFrames(samples, sampleRate, o.volume)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	if !blocking {
		return nil
	}
	select {
	case <-pb.done:
		return nil
	case <-o.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Output) sendLoop() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.current.finish()
			if o.speaking {
				o.setSpeaking(false)
			}
			o.mu.Unlock()
			select {
			case <-o.wake:
				continue
			case <-o.closed:
				return
			}
		}
		frame := o.queue[0]
		o.queue = o.queue[1:]
		if !o.speaking {
			o.setSpeaking(true)
		}
		enc, send := o.enc, o.send
		o.mu.Unlock()

		pkt, err := enc.encode(frame)
		if err != nil {
			slog.Warn("discord: dropping frame", "err", err)
			continue
		}
		select {
		case send <- pkt:
		case <-o.closed:
			return
		}
	}
}

// setSpeaking toggles the speaking flag. Callers hold mu.
func (o *Output) setSpeaking(b bool) {
	o.speaking = b
	if err := o.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}

// Stop implements output.Output.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = nil
	o.current.finish()
	return nil
}

// SetVolume implements output.Output. It applies from the next Play.
func (o *Output) SetVolume(v float64) error {
	if err := output.CheckVolume(v); err != nil {
		return err
	}
	o.mu.Lock()
	o.volume = v
	o.mu.Unlock()
	return nil
}

// ListDevices returns the guild's voice channels.
func (o *Output) ListDevices(context.Context) ([]output.Device, error) {
	o.mu.Lock()
	session, guildID := o.session, o.guildID
	o.mu.Unlock()
	if session == nil {
		return nil, output.ErrNotInitialized
	}
	channels, err := session.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("discord: list channels: %w", err)
	}
	var out []output.Device
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildVoice {
			out = append(out, output.Device{ID: c.ID, Name: c.Name, SampleRate: opusSampleRate, Channels: opusChannels})
		}
	}
	return out, nil
}

// Close leaves the voice channel and closes the gateway session.
func (o *Output) Close() error {
	var errs []error
	o.closeOnce.Do(func() {
		close(o.closed)
		o.mu.Lock()
		defer o.mu.Unlock()
		o.queue = nil
		o.current.finish()
		if o.vc != nil {
			if o.speaking {
				o.setSpeaking(false)
			}
			errs = append(errs, o.vc.Disconnect())
		}
		if o.session != nil {
			errs = append(errs, o.session.Close())
		}
	})
	return errors.Join(errs...)
}

var _ output.Output = (*Output)(nil)
