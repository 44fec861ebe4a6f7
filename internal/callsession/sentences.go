package callsession

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// splitSentences segments a reply so synthesis of the first sentence can start
// before the rest is processed.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return []string{text}
	}

	sentences := doc.Sentences()
	result := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if t := strings.TrimSpace(s.Text); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return []string{text}
	}
	return result
}

// estimateSpeechSeconds approximates how long text takes to say at a conversational
// pace of about 150 words per minute.
func estimateSpeechSeconds(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return float64(words) / 2.5
}
