package core

import "context"

// generatorFunc adapts a function to llm.Generator for scripting tests.
type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
