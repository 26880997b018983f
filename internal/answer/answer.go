// Package answer runs the full query-time flow: gate the query, retrieve
// context, and generate a grounded answer with source attribution.
package answer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/ragstral/ragstral/internal/ai"
	"github.com/ragstral/ragstral/internal/gate"
	"github.com/ragstral/ragstral/internal/retrieval"
	"github.com/ragstral/ragstral/internal/vecindex"
	"github.com/ragstral/ragstral/pkg/models"
)

// DefaultHistoryWindow caps how many recent turns are forwarded to the
// gate and the generator.
const DefaultHistoryWindow = 8

const (
	// KindClarify means Text is a question for the user; no retrieval ran.
	KindClarify = "clarify"
	// KindAnswer means Text is a grounded answer and Sources lists its evidence.
	KindAnswer = "answer"
)

const answerSystemPrompt = `You are a code search assistant. Answer the user's question using ONLY the repository context below. Cite the files you drew from. If the context does not contain the answer, say so rather than guessing.

Repository context:

%s`

// Response is the outcome of one Answer call.
type Response struct {
	Kind    string
	Text    string
	Sources []models.Source
}

// Orchestrator wires the gate, the retrieval assembler and the completion
// model into one query-time pipeline.
type Orchestrator struct {
	Gate          *gate.Gate
	Assembler     *retrieval.Assembler
	Completer     ai.Completer
	HistoryWindow int
}

func New(g *gate.Gate, assembler *retrieval.Assembler, completer ai.Completer) *Orchestrator {
	return &Orchestrator{
		Gate:          g,
		Assembler:     assembler,
		Completer:     completer,
		HistoryWindow: DefaultHistoryWindow,
	}
}

// Answer processes one user query. A clarify verdict short-circuits before
// any retrieval or generation happens.
func (o *Orchestrator) Answer(ctx context.Context, query string, history []models.Message, filter vecindex.Filter) (Response, error) {
	history = o.window(history)

	decision, err := o.Gate.Check(ctx, query, history)
	if err != nil {
		log.Warn().Err(err).Msg("gate check failed, asking for clarification")
	}
	if !decision.Proceed {
		return Response{Kind: KindClarify, Text: decision.Question}, nil
	}

	result, err := o.Assembler.Retrieve(ctx, query, filter)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve: %w", err)
	}

	msgs := append(append([]models.Message{}, history...), models.Message{
		Text:   query,
		Sender: models.SenderUser,
	})
	system := fmt.Sprintf(answerSystemPrompt, result.ContextText)

	text, err := o.Completer.Complete(ctx, system, msgs)
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]models.Source, 0, len(result.Documents))
	for _, d := range result.Documents {
		sources = append(sources, models.Source{
			File:          d.SourceFile,
			Score:         d.Score,
			ChunkID:       d.ChunkID,
			OriginalFile:  d.OriginalFileURL,
			HasRawContent: d.HasRawContent,
		})
	}

	return Response{Kind: KindAnswer, Text: text, Sources: sources}, nil
}

// window keeps the most recent turns, oldest first.
func (o *Orchestrator) window(history []models.Message) []models.Message {
	n := o.HistoryWindow
	if n <= 0 {
		n = DefaultHistoryWindow
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
