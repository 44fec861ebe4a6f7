package callsession

import "testing"

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Thanks for calling. Your balance is twelve dollars. Anything else?")
	if len(got) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %q", len(got), got)
	}
	if got[0] != "Thanks for calling." || got[2] != "Anything else?" {
		t.Errorf("unexpected split %q", got)
	}

	if got := splitSentences("   "); got != nil {
		t.Errorf("blank text should yield nothing, got %q", got)
	}
	if got := splitSentences("no punctuation here"); len(got) != 1 || got[0] != "no punctuation here" {
		t.Errorf("unexpected %q", got)
	}
}

func TestEstimateSpeechSeconds(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"", 0},
		{"hello", 0.4},
		{"one two three four five", 2},
	}
	for _, tt := range tests {
		if got := estimateSpeechSeconds(tt.text); got != tt.want {
			t.Errorf("estimateSpeechSeconds(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestState(t *testing.T) {
	if !StateConnecting.Accepting() || StateConnecting.Live() {
		t.Error("connecting accepts audio but is not live")
	}
	for _, s := range []State{StateActive, StateListening, StateSpeaking} {
		if !s.Live() || !s.Accepting() || s.Terminal() {
			t.Errorf("%s should be live", s)
		}
	}
	for _, s := range []State{StateEnding, StateEnded} {
		if s.Accepting() || !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
