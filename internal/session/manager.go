// Package session orchestrates the exam session lifecycle: start, the
// per-question attempt loop, and finish.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examflow/internal/evaluator"
	"github.com/pavelanni/examflow/internal/i18n"
	"github.com/pavelanni/examflow/internal/model"
	"github.com/pavelanni/examflow/internal/scoring"
	"github.com/pavelanni/examflow/internal/selector"
	"github.com/pavelanni/examflow/internal/store"
)

// Client-error taxonomy. Handlers map these to 4xx responses; no state is
// mutated when one is returned.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrItemNotInSession = errors.New("item is not part of this session")
	ErrItemAdvanced     = errors.New("item already advanced")
	ErrNoItems          = errors.New("no items available for this exam")
)

// Manager drives exam sessions. One call performs exactly one state
// transition; no background work is involved.
type Manager struct {
	store *store.Store
	eval  *evaluator.Evaluator
	sel   selector.Selector
	hints HintProvider
	cfg   model.ExamConfig
}

// NewManager creates a session manager.
func NewManager(s *store.Store, eval *evaluator.Evaluator, sel selector.Selector, hints HintProvider, cfg model.ExamConfig) *Manager {
	if hints == nil {
		hints = LevelHints{}
	}
	return &Manager{store: s, eval: eval, sel: sel, hints: hints, cfg: cfg}
}

// StartResult is the response to starting a session.
type StartResult struct {
	Session model.Session `json:"session"`
	Items   []model.Item  `json:"items"`
}

// Start creates a session with its item list selected per the configured
// mode and persists both in one transaction.
func (m *Manager) Start(ctx context.Context, examID, studentID string) (*StartResult, error) {
	items, err := m.sel.SelectInitial(examID, m.cfg.NumQuestions)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	total := len(items)
	if m.cfg.Adaptive {
		// Stepwise mode serves one item at a time; the configured count is
		// the session's target length.
		total = m.cfg.NumQuestions
	}

	sess := model.Session{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.StatusActive,
		StartedAt: time.Now(),
		Total:     total,
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := m.store.CreateSession(sess, ids); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.Info("session started",
		"session_id", sess.ID, "exam_id", examID, "student_id", studentID,
		"questions", len(items), "adaptive", m.cfg.Adaptive)

	return &StartResult{Session: sess, Items: items}, nil
}

// SubmitResult is the response to one answer submission.
type SubmitResult struct {
	IsCorrect         bool        `json:"is_correct"`
	Score             float64     `json:"score"`
	MaxScore          float64     `json:"max_score"`
	AttemptsUsed      int         `json:"attempts_used"`
	AttemptsRemaining int         `json:"attempts_remaining"`
	ShouldAdvance     bool        `json:"should_advance"`
	HintLevel         int         `json:"hint_level,omitempty"`
	Hint              string      `json:"hint,omitempty"`
	RevealedAnswer    string      `json:"revealed_answer,omitempty"`
	Message           string      `json:"message,omitempty"`
	NextItem          *model.Item `json:"next_item,omitempty"`
	HasMoreQuestions  bool        `json:"has_more_questions"`
}

// Submit records one answer attempt for an item. A correct answer or a third
// miss advances the question; otherwise a hint at the attempt's level is
// returned. The third miss also reveals the correct answer.
func (m *Manager) Submit(ctx context.Context, sessionID string, itemID int64, answer string) (*SubmitResult, error) {
	sess, err := m.store.GetSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Status != model.StatusActive {
		return nil, ErrSessionCompleted
	}

	sessionItems, err := m.store.GetSessionItems(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session items: %w", err)
	}
	var current *model.SessionItem
	for i := range sessionItems {
		if sessionItems[i].ItemID == itemID {
			current = &sessionItems[i]
			break
		}
	}
	if current == nil {
		return nil, ErrItemNotInSession
	}
	if current.Advanced {
		return nil, ErrItemAdvanced
	}

	item, err := m.store.GetItem(itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	used, err := m.store.CountAttempts(sessionID, itemID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if used >= model.MaxAttempts {
		return nil, ErrItemAdvanced
	}
	attemptNo := used + 1

	maxPoints := sess.MaxPointsPerItem()
	res := m.eval.Evaluate(ctx, item, answer, maxPoints)
	shouldAdvance := res.IsCorrect || attemptNo >= model.MaxAttempts

	hintLevel := 0
	if !shouldAdvance {
		hintLevel = attemptNo
	}

	rec := model.AttemptRecord{
		SessionID:     sessionID,
		ItemID:        itemID,
		AttemptNumber: attemptNo,
		AnswerText:    answer,
		Score:         res.Score,
		IsCorrect:     res.IsCorrect,
		HintLevel:     hintLevel,
		SubmittedAt:   time.Now(),
	}
	inserted, err := m.recordAttempt(rec)
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	if !inserted {
		// A concurrent submission won the race for this attempt number.
		// Replay the stored result so the client sees one consistent
		// answer. The item list is re-read: the winner may have advanced
		// the item and, in stepwise mode, appended the next one.
		stored, err := m.store.GetAttempt(sessionID, itemID, attemptNo)
		if err != nil {
			return nil, fmt.Errorf("load recorded attempt: %w", err)
		}
		sessionItems, err = m.store.GetSessionItems(sessionID)
		if err != nil {
			return nil, fmt.Errorf("get session items: %w", err)
		}
		slog.Info("duplicate submission replayed",
			"session_id", sessionID, "item_id", itemID, "attempt", attemptNo)
		return m.buildResult(ctx, sess, item, stored, sessionItems, false)
	}

	advanced := false
	if shouldAdvance {
		transitioned, err := m.store.AdvanceSessionItem(sessionID, itemID)
		if err != nil {
			return nil, fmt.Errorf("advance item: %w", err)
		}
		if transitioned {
			// Earlier attempts cannot have been correct (a correct attempt
			// advances immediately), so the latest result decides the
			// counter. Only the request that performed the transition bumps
			// it; a lost race must not double-count.
			if err := m.store.BumpDifficultyProgress(sessionID, item.Level, res.IsCorrect); err != nil {
				return nil, fmt.Errorf("update difficulty progress: %w", err)
			}
			current.Advanced = true
		} else {
			// Another request advanced this item first; refresh the list so
			// the next-item lookup sees its effects.
			sessionItems, err = m.store.GetSessionItems(sessionID)
			if err != nil {
				return nil, fmt.Errorf("get session items: %w", err)
			}
		}
		advanced = transitioned
	}

	return m.buildResult(ctx, sess, item, rec, sessionItems, advanced)
}

// recordAttempt writes the attempt row, retrying once on failure.
func (m *Manager) recordAttempt(rec model.AttemptRecord) (bool, error) {
	inserted, err := m.store.RecordAttempt(rec)
	if err == nil {
		return inserted, nil
	}
	slog.Warn("attempt write failed, retrying",
		"session_id", rec.SessionID, "item_id", rec.ItemID, "error", err)
	return m.store.RecordAttempt(rec)
}

// buildResult assembles the submission response, including the next item
// when the question advanced. advanced reports whether this request
// performed the advance; a replayed duplicate passes false so it never
// appends a second next item.
func (m *Manager) buildResult(ctx context.Context, sess model.Session, item model.Item, rec model.AttemptRecord, sessionItems []model.SessionItem, advanced bool) (*SubmitResult, error) {
	result := &SubmitResult{
		IsCorrect:         rec.IsCorrect,
		Score:             rec.Score,
		MaxScore:          sess.MaxPointsPerItem(),
		AttemptsUsed:      rec.AttemptNumber,
		AttemptsRemaining: model.MaxAttempts - rec.AttemptNumber,
		ShouldAdvance:     rec.IsCorrect || rec.AttemptNumber >= model.MaxAttempts,
	}

	if rec.AttemptNumber >= model.MaxAttempts && !rec.IsCorrect {
		result.RevealedAnswer = item.CorrectAnswer
		result.Message = i18n.Td(ctx, "AnswerRevealed", map[string]any{"Answer": item.CorrectAnswer})
	}
	if !result.ShouldAdvance {
		result.HintLevel = rec.AttemptNumber
		result.Hint = m.hints.Hint(ctx, item, rec.AttemptNumber)
		result.HasMoreQuestions = true
		return result, nil
	}

	next, err := m.nextItem(sess, item, rec.IsCorrect, sessionItems, advanced)
	if err != nil {
		return nil, err
	}
	result.NextItem = next
	result.HasMoreQuestions = next != nil
	return result, nil
}

// nextItem determines the item served after an advance: the next unadvanced
// item already in session order, covering fixed mode and any item a racing
// request appended. Otherwise, in stepwise mode, the selector picks one and
// it is appended to the session's list; only the request that performed the
// advance may append, so a question never yields two next items.
func (m *Manager) nextItem(sess model.Session, item model.Item, correct bool, sessionItems []model.SessionItem, advanced bool) (*model.Item, error) {
	for _, si := range sessionItems {
		if si.Advanced || si.ItemID == item.ID {
			continue
		}
		next, err := m.store.GetItem(si.ItemID)
		if err != nil {
			return nil, fmt.Errorf("get next item: %w", err)
		}
		return &next, nil
	}
	if !m.cfg.Adaptive || !advanced {
		return nil, nil
	}

	if len(sessionItems) >= sess.Total {
		return nil, nil
	}
	served := make(map[int64]bool, len(sessionItems))
	for _, si := range sessionItems {
		served[si.ItemID] = true
	}
	next, err := m.sel.SelectNext(sess.ExamID, item.Level, correct, served)
	if err != nil {
		return nil, fmt.Errorf("select next item: %w", err)
	}
	if next == nil {
		return nil, nil
	}
	if err := m.store.AppendSessionItem(sess.ID, next.ID); err != nil {
		return nil, fmt.Errorf("append session item: %w", err)
	}
	return next, nil
}

// Finish computes and stores the grade report, then completes the session.
// Finishing early is allowed; the report covers whatever attempts exist.
// Report persistence is retried once and is best-effort: a write failure is
// logged but the student still receives their grade.
func (m *Manager) Finish(ctx context.Context, sessionID string) (*model.GradeReport, error) {
	sess, err := m.store.GetSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Status == model.StatusCompleted {
		// Finish is idempotent: return the stored report.
		report, err := m.store.GetReport(sessionID)
		if err != nil {
			return nil, fmt.Errorf("get report: %w", err)
		}
		if report != nil {
			return report, nil
		}
		return nil, ErrSessionCompleted
	}

	attempts, err := m.store.ListSessionAttempts(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	sessionItems, err := m.store.GetSessionItems(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session items: %w", err)
	}
	items := make(map[int64]model.Item, len(sessionItems))
	for _, si := range sessionItems {
		it, err := m.store.GetItem(si.ItemID)
		if err != nil {
			return nil, fmt.Errorf("get item %d: %w", si.ItemID, err)
		}
		items[it.ID] = it
	}
	progress, err := m.store.GetDifficultyProgress(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get difficulty progress: %w", err)
	}

	report := scoring.BuildReport(sess, items, attempts, progress)

	if err := m.store.SaveReport(report); err != nil {
		slog.Warn("report save failed, retrying", "session_id", sessionID, "error", err)
		if err := m.store.SaveReport(report); err != nil {
			slog.Error("report save failed after retry", "session_id", sessionID, "error", err)
		}
	}

	if err := m.store.CompleteSession(sessionID); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	slog.Info("session finished",
		"session_id", sessionID, "answered", report.Answered,
		"percentage", report.Percentage, "mastery", report.MasteryLevel)

	return &report, nil
}

// Report returns the stored grade report for a completed session.
func (m *Manager) Report(sessionID string) (*model.GradeReport, error) {
	report, err := m.store.GetReport(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if report == nil {
		return nil, ErrSessionNotFound
	}
	return report, nil
}
