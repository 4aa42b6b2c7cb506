package out

import "context"

// TextGenerator sends a single prompt to a language model and returns its text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}
