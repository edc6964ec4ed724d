package advisor

import (
	"context"
	"fmt"
	"strings"
)

// MockProcessor returns canned answers for local runs without a model.
type MockProcessor struct{}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{}
}

func (m *MockProcessor) AnswerText(ctx context.Context, q TextQuery) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, unavailable("mock", err)
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		text = "your question"
	}
	return Answer{
		Text:    fmt.Sprintf("Here is some general advice about %q: check soil moisture before irrigating and inspect leaves weekly for pests.", text),
		Backend: "mock",
	}, nil
}

func (m *MockProcessor) AnswerImage(ctx context.Context, q ImageQuery) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, unavailable("mock", err)
	}
	return Answer{
		Text:    "The plant in your photo appears healthy. Keep monitoring for spots or holes on the leaves.",
		Backend: "mock",
	}, nil
}
