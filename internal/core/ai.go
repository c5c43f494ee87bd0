package core

import (
	"context"
	"errors"
)

// EmbedTask tells the provider what the texts will be used for. Some
// models embed stored passages and search queries differently.
type EmbedTask int

const (
	EmbedDocument EmbedTask = iota
	EmbedQuery
)

// ErrNoAnswer is returned when a generator produced no usable text.
var ErrNoAnswer = errors.New("no answer generated")

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
