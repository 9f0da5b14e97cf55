package session

import (
	"context"

	"github.com/pavelanni/examflow/internal/i18n"
	"github.com/pavelanni/examflow/internal/model"
)

// HintProvider produces the hint shown after a wrong attempt. The level is
// the attempt number that failed (1 or 2); hint content generation beyond
// that is a pluggable concern.
type HintProvider interface {
	Hint(ctx context.Context, item model.Item, level int) string
}

// LevelHints is the default provider: fixed, localized hint text that
// escalates with the attempt number.
type LevelHints struct{}

// Hint returns the localized hint for the given escalation level.
func (LevelHints) Hint(ctx context.Context, item model.Item, level int) string {
	switch level {
	case 1:
		return i18n.T(ctx, "HintReread")
	default:
		return i18n.Td(ctx, "HintTopic", map[string]any{"Topic": item.Topic})
	}
}
