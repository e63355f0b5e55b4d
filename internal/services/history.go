package services

import (
	"unicode/utf8"

	"github.com/tbourn/retail-assistant/internal/domain"
)

// HistoryPolicy bounds the prior turns sent to the model. Zero disables a bound.
type HistoryPolicy struct {
	MaxTurns int
	MaxRunes int
}

// TruncateHistory keeps the most recent turns that fit the policy, dropping
// oldest first. A tool result is never kept without the assistant turn that
// requested it. The input slice is not modified.
func TruncateHistory(turns []domain.ConversationTurn, p HistoryPolicy) []domain.ConversationTurn {
	start := 0
	if p.MaxTurns > 0 && len(turns) > p.MaxTurns {
		start = len(turns) - p.MaxTurns
	}
	if p.MaxRunes > 0 {
		total := 0
		for i := start; i < len(turns); i++ {
			total += utf8.RuneCountInString(turns[i].Content)
		}
		for start < len(turns) && total > p.MaxRunes {
			total -= utf8.RuneCountInString(turns[start].Content)
			start++
		}
	}
	for start < len(turns) && turns[start].Role == domain.RoleTool {
		start++
	}
	out := make([]domain.ConversationTurn, len(turns)-start)
	copy(out, turns[start:])
	return out
}
