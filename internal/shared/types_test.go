package shared

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	id := NewID("turn_")
	if !strings.HasPrefix(id, "turn_") {
		t.Errorf("expected prefix 'turn_', got %s", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "turn_")); err != nil {
		t.Errorf("expected uuid after prefix, got %s", id)
	}
	if NewID("turn_") == id {
		t.Error("expected unique ids")
	}
}

func TestNewSessionID(t *testing.T) {
	if _, err := uuid.Parse(NewSessionID()); err != nil {
		t.Errorf("expected uuid, got error %v", err)
	}
}
