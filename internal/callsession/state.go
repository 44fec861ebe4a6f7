package callsession

type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateListening  State = "listening"
	StateSpeaking   State = "speaking"
	StateEnding     State = "ending"
	StateEnded      State = "ended"
)

// Live reports whether the call is past connecting and not yet ending.
func (s State) Live() bool {
	return s == StateActive || s == StateListening || s == StateSpeaking
}

// Accepting reports whether caller audio is still taken for this state.
func (s State) Accepting() bool {
	return s == StateConnecting || s.Live()
}

func (s State) Terminal() bool {
	return s == StateEnding || s == StateEnded
}
