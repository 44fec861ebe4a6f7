package callsession

import (
	"time"

	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/events"
)

// Drop reasons reported to Observer.AudioDropped.
const (
	DropUnknownCall = "unknown_call"
	DropInactive    = "inactive"
	DropOutOfOrder  = "out_of_order"
	DropOverflow    = "overflow"
)

// Observer receives pipeline measurements. Implementations must not block.
type Observer interface {
	CallStarted()
	CallEnded(reason string, d time.Duration)
	AudioDropped(reason string)
	TurnFinished(status dialogue.TurnStatus, latency time.Duration)
	BargeIn()
	ASRReconnect(err error)
}

// Publisher accepts call events. *events.Bus satisfies it.
type Publisher interface {
	Publish(e events.Event)
}

type nopObserver struct{}

func (nopObserver) CallStarted()                                    {}
func (nopObserver) CallEnded(string, time.Duration)                 {}
func (nopObserver) AudioDropped(string)                             {}
func (nopObserver) TurnFinished(dialogue.TurnStatus, time.Duration) {}
func (nopObserver) BargeIn()                                        {}
func (nopObserver) ASRReconnect(error)                              {}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}
