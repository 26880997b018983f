// Package gate decides whether a query carries enough context to retrieve
// against, or whether the user should be asked a clarifying question first.
package gate

import (
	"context"
	"strings"

	"github.com/ragstral/ragstral/internal/ai"
	"github.com/ragstral/ragstral/pkg/models"
)

const (
	allClearSentinel = "ALL CLEAR"
	clarifyPrefix    = "CLARIFY:"

	fallbackQuestion = "Could you add more detail to your question, such as the file, function, or behavior you are asking about?"

	systemPrompt = `You are a gatekeeper for a code search assistant. Given the conversation so far and the latest user query, decide whether the query is specific enough to search a code repository.

Respond with EXACTLY one of:
- "` + allClearSentinel + `" if the query is clear enough to search for.
- "` + clarifyPrefix + ` <one short clarifying question>" if it is too vague.

Do not answer the query. Do not output anything else.`
)

// Decision is the gate's verdict. When Proceed is false, Question holds
// the clarifying question to send back to the user.
type Decision struct {
	Proceed  bool
	Question string
}

// Gate wraps a completion model in a constrained clear-or-clarify prompt.
type Gate struct {
	completer ai.Completer
}

func New(completer ai.Completer) *Gate {
	return &Gate{completer: completer}
}

// Check classifies the query. Any output that is neither sentinel, and any
// transport failure, resolves to a clarify decision: the gate never lets a
// query through on a malformed or missing verdict. The returned error is
// non-nil only for transport failures, so the caller can log them.
func (g *Gate) Check(ctx context.Context, query string, history []models.Message) (Decision, error) {
	msgs := append(append([]models.Message{}, history...), models.Message{
		Text:   query,
		Sender: models.SenderUser,
	})

	raw, err := g.completer.Complete(ctx, systemPrompt, msgs)
	if err != nil {
		return Decision{Question: fallbackQuestion}, err
	}
	return parse(raw), nil
}

func parse(raw string) Decision {
	verdict := strings.TrimSpace(raw)
	upper := strings.ToUpper(verdict)

	if strings.HasPrefix(upper, allClearSentinel) {
		return Decision{Proceed: true}
	}
	if strings.HasPrefix(upper, clarifyPrefix) {
		question := strings.TrimSpace(verdict[len(clarifyPrefix):])
		if question == "" {
			question = fallbackQuestion
		}
		return Decision{Question: question}
	}
	return Decision{Question: fallbackQuestion}
}
