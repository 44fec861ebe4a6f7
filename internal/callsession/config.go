package callsession

import (
	"time"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/shared"
)

type Config struct {
	GenerationTimeout time.Duration
	ConnectTimeout    time.Duration
	ChunkTimeout      time.Duration
	FallbackReply     string
	FrameDuration     time.Duration
	MaxBuffered       time.Duration
	EnergyThreshold   float64
	BargeIn           BargeInPolicy
	Voice             string
	Language          string
	SpeakingRate      float32
	Retry             shared.RetryPolicy
	ReplayWindow      time.Duration
	EndedRetention    time.Duration
	MailboxSize       int
}

func DefaultConfig() Config {
	return Config{
		GenerationTimeout: 15 * time.Second,
		ConnectTimeout:    10 * time.Second,
		ChunkTimeout:      10 * time.Second,
		FallbackReply:     dialogue.DefaultFallbackReply,
		FrameDuration:     40 * time.Millisecond,
		MaxBuffered:       audio.DefaultMaxBuffered,
		EnergyThreshold:   audio.DefaultEnergyThreshold,
		BargeIn:           DefaultBargeInPolicy(),
		Language:          "en",
		Retry:             shared.DefaultRetryPolicy(),
		ReplayWindow:      5 * time.Second,
		EndedRetention:    10 * time.Minute,
		MailboxSize:       256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = d.GenerationTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = d.ChunkTimeout
	}
	if c.FallbackReply == "" {
		c.FallbackReply = d.FallbackReply
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = d.FrameDuration
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = d.MaxBuffered
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	if c.BargeIn.MinSpeech <= 0 {
		c.BargeIn.MinSpeech = d.BargeIn.MinSpeech
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	if c.ReplayWindow <= 0 {
		c.ReplayWindow = d.ReplayWindow
	}
	if c.EndedRetention <= 0 {
		c.EndedRetention = d.EndedRetention
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = d.MailboxSize
	}
	return c
}
