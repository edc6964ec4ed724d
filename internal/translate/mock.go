package translate

import "context"

// Passthrough returns text unchanged. It backs the "none" provider so local
// runs work without translation credentials.
type Passthrough struct{}

func NewPassthrough() *Passthrough { return &Passthrough{} }

func (Passthrough) Name() string { return "none" }

func (Passthrough) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}
