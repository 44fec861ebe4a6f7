package callsession

import (
	"strings"
	"sync"
	"time"
)

type ActionType string

const (
	ActionStopPlayback ActionType = "stop_playback"
	ActionCancelTurn   ActionType = "cancel_turn"
	ActionFlushOutput  ActionType = "flush_output"
)

type Action struct {
	Type   ActionType
	Reason string
}

const (
	ReasonSustainedSpeech = "sustained_speech"
	ReasonPartialSpeech   = "partial_transcript"
)

// BargeInPolicy decides when caller speech interrupts the AI. MinSpeech is the
// amount of consecutive voiced audio required; with 100 ms chunks the default
// equals three chunks. MinPartialChars, when positive, also interrupts on a
// partial transcript of at least that many characters.
type BargeInPolicy struct {
	MinSpeech       time.Duration
	MinPartialChars int
}

func DefaultBargeInPolicy() BargeInPolicy {
	return BargeInPolicy{MinSpeech: 300 * time.Millisecond}
}

// BargeInController tracks caller voice activity against AI playback.
type BargeInController struct {
	mu        sync.Mutex
	policy    BargeInPolicy
	speaking  bool
	voicedRun time.Duration
}

func NewBargeInController(policy BargeInPolicy) *BargeInController {
	if policy.MinSpeech <= 0 {
		policy.MinSpeech = DefaultBargeInPolicy().MinSpeech
	}
	return &BargeInController{policy: policy}
}

// OnPlaybackStart begins a new run; speech from before playback does not count.
func (c *BargeInController) OnPlaybackStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = true
	c.voicedRun = 0
}

func (c *BargeInController) OnPlaybackEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = false
}

// OnVoice accounts one analysed chunk of caller audio. Only chunks heard
// during playback count toward the run.
func (c *BargeInController) OnVoice(voiced bool, d time.Duration) []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !voiced || !c.speaking {
		c.voicedRun = 0
		return nil
	}
	c.voicedRun += d
	if c.voicedRun >= c.policy.MinSpeech {
		return c.interrupt(ReasonSustainedSpeech)
	}
	return nil
}

func (c *BargeInController) OnPartial(text string) []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.speaking || c.policy.MinPartialChars <= 0 {
		return nil
	}
	if len([]rune(strings.TrimSpace(text))) >= c.policy.MinPartialChars {
		return c.interrupt(ReasonPartialSpeech)
	}
	return nil
}

func (c *BargeInController) interrupt(reason string) []Action {
	c.speaking = false
	c.voicedRun = 0
	return []Action{
		{Type: ActionStopPlayback, Reason: reason},
		{Type: ActionCancelTurn, Reason: reason},
		{Type: ActionFlushOutput, Reason: reason},
	}
}

func (c *BargeInController) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

func (c *BargeInController) VoicedRun() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voicedRun
}
