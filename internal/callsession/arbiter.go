package callsession

import "sync"

// turnArbiter decides which generator result may drive playback. Only the
// most recently started turn can claim, and only once.
type turnArbiter struct {
	mu      sync.Mutex
	current string
	claimed bool
}

func (a *turnArbiter) Begin(turnID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = turnID
	a.claimed = false
}

func (a *turnArbiter) Claim(turnID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == "" || a.current != turnID || a.claimed {
		return false
	}
	a.claimed = true
	return true
}

func (a *turnArbiter) Release(turnID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == turnID {
		a.current = ""
		a.claimed = false
	}
}
