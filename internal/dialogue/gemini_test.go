package dialogue

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeModels struct {
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	reply    string
	err      error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestGeminiGenerator_Generate(t *testing.T) {
	fake := &fakeModels{reply: "Your appointment is on Tuesday."}
	g := &GeminiGenerator{models: fake, model: "gemini-test"}

	reply, err := g.Generate(context.Background(), Request{
		SystemPrompt: "You book appointments.",
		History:      []Message{{Role: RoleUser, Text: "hi"}, {Role: RoleAssistant, Text: "hello"}},
		UserText:     "when is my appointment",
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if reply != "Your appointment is on Tuesday." {
		t.Errorf("unexpected reply %q", reply)
	}
	if len(fake.contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(fake.contents))
	}
	if fake.contents[1].Role != string(genai.RoleModel) || fake.contents[2].Role != string(genai.RoleUser) {
		t.Errorf("unexpected roles %s, %s", fake.contents[1].Role, fake.contents[2].Role)
	}
	if fake.config == nil || fake.config.SystemInstruction == nil {
		t.Error("expected system instruction")
	}
}

func TestGeminiGenerator_Errors(t *testing.T) {
	g := &GeminiGenerator{models: &fakeModels{err: errors.New("quota")}, model: "m"}
	if _, err := g.Generate(context.Background(), Request{UserText: "x"}); err == nil {
		t.Fatal("expected upstream error")
	}

	empty := &GeminiGenerator{models: &fakeModels{reply: "  "}, model: "m"}
	if _, err := empty.Generate(context.Background(), Request{UserText: "x"}); err == nil {
		t.Fatal("expected error for empty reply")
	}
}
