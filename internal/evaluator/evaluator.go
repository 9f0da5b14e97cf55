// Package evaluator scores one submitted answer against one item. All
// strategies are total over well-formed text: malformed input falls through
// to the next strategy instead of failing.
package evaluator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/examflow/internal/model"
)

// Result is the outcome of evaluating one submission.
type Result struct {
	Score     float64 // in [0, maxPoints]
	IsCorrect bool
	Strategy  string // which strategy produced the score
	Rationale string // judge rationale, when available
}

// Judge is an external semantic answer evaluator. Evaluate returns a score
// in [0,1]. Implementations may block on the network; callers always pass a
// context with a deadline and must treat any error as non-fatal.
type Judge interface {
	Evaluate(ctx context.Context, item model.Item, reference, studentAnswer, instructions string) (score float64, rationale string, err error)
}

// Evaluator dispatches submissions across the grading strategies. The zero
// judge (nil) disables external evaluation entirely.
type Evaluator struct {
	judge        Judge
	judgeTimeout time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithJudge attaches an external judge with the given call timeout.
// A non-positive timeout keeps the 30s default.
func WithJudge(j Judge, timeout time.Duration) Option {
	return func(e *Evaluator) {
		e.judge = j
		if timeout > 0 {
			e.judgeTimeout = timeout
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{judgeTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// judgeCorrectThreshold is the minimum judge score (in [0,1]) counted as a
// correct answer.
const judgeCorrectThreshold = 0.7

// Evaluate scores answer against item, returning a score in [0, maxPoints].
func (e *Evaluator) Evaluate(ctx context.Context, item model.Item, answer string, maxPoints float64) Result {
	if strings.TrimSpace(answer) == "" {
		return Result{Score: 0, IsCorrect: false, Strategy: "empty"}
	}

	submitted := normalize(answer)
	correct := normalize(item.CorrectAnswer)

	if submitted == correct {
		return Result{Score: maxPoints, IsCorrect: true, Strategy: "exact"}
	}

	if want, ok := extractNumber(item.CorrectAnswer); ok {
		if got, ok := extractNumber(answer); ok {
			if numbersMatch(got, want) {
				return Result{Score: maxPoints, IsCorrect: true, Strategy: "numeric"}
			}
			return Result{Score: 0, IsCorrect: false, Strategy: "numeric"}
		}
		// Submission has no extractable number; fall through to text matching.
	}

	if e.judge != nil && item.Type == model.TypeOpenEnded && item.GradingNotes != "" {
		if res, ok := e.judgeEvaluate(ctx, item, answer, maxPoints); ok {
			return res
		}
	}

	return e.textEvaluate(item, answer, maxPoints)
}

// judgeEvaluate delegates to the external judge. A timeout or malformed
// response degrades to the heuristic strategies and is never surfaced to the
// caller.
func (e *Evaluator) judgeEvaluate(ctx context.Context, item model.Item, answer string, maxPoints float64) (Result, bool) {
	reference := item.CorrectAnswer
	if item.SampleAnswer != "" {
		reference = item.SampleAnswer
	}

	jctx, cancel := context.WithTimeout(ctx, e.judgeTimeout)
	defer cancel()

	score, rationale, err := e.judge.Evaluate(jctx, item, reference, answer, item.GradingNotes)
	if err != nil {
		slog.Warn("external judge failed, degrading to heuristic evaluation",
			"item_id", item.ID, "error", err)
		return Result{}, false
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Result{
		Score:     score * maxPoints,
		IsCorrect: score >= judgeCorrectThreshold,
		Strategy:  "judge",
		Rationale: rationale,
	}, true
}

// textEvaluate applies the keyword and similarity fallback strategy.
func (e *Evaluator) textEvaluate(item model.Item, answer string, maxPoints float64) Result {
	answerWords := wordSet(answer)

	if len(item.Keywords) > 0 {
		if containsAllKeywords(answerWords, item.Keywords) {
			return Result{Score: maxPoints, IsCorrect: true, Strategy: "keywords"}
		}
	} else {
		correctWords := contentWords(item.CorrectAnswer)
		if len(correctWords) > 0 && overlapFraction(correctWords, answerWords) >= 0.7 {
			return Result{Score: maxPoints, IsCorrect: true, Strategy: "overlap"}
		}
	}

	ratio := similarityRatio(normalizeLoose(answer), normalizeLoose(item.CorrectAnswer))
	switch {
	case ratio > 0.85:
		return Result{Score: maxPoints, IsCorrect: true, Strategy: "similarity"}
	case ratio > 0.6:
		return Result{Score: 0.5 * maxPoints, IsCorrect: false, Strategy: "similarity"}
	default:
		return Result{Score: 0, IsCorrect: false, Strategy: "similarity"}
	}
}

func containsAllKeywords(words map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if !words[strings.ToLower(strings.TrimSpace(kw))] {
			return false
		}
	}
	return true
}

// overlapFraction returns the fraction of required words present in the
// answer word set.
func overlapFraction(required []string, words map[string]bool) float64 {
	if len(required) == 0 {
		return 0
	}
	found := 0
	for _, w := range required {
		if words[w] {
			found++
		}
	}
	return float64(found) / float64(len(required))
}
