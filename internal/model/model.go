package model

import "time"

// ItemType represents the kind of assessment item.
type ItemType string

const (
	// TypeMultipleChoice is a multiple-choice item with four options.
	TypeMultipleChoice ItemType = "multiple_choice"
	// TypeNumeric is an item whose correct answer is a numeric value.
	TypeNumeric ItemType = "numeric"
	// TypeOpenEnded is a free-text item.
	TypeOpenEnded ItemType = "open_ended"
)

// Level represents item difficulty. Levels are ordinal; 5 is hardest.
type Level int

const (
	MinLevel Level = 3
	MaxLevel Level = 5
)

// Valid reports whether the level is in the supported range.
func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// Clamp restricts the level to the supported range.
func (l Level) Clamp() Level {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// Item represents one assessment item. Items are immutable once created.
type Item struct {
	ID            int64    `json:"id"`
	ExamID        string   `json:"exam_id"`
	Text          string   `json:"text"`
	Type          ItemType `json:"type"`
	Level         Level    `json:"level"`
	Topic         string   `json:"topic"`
	CorrectAnswer string   `json:"correct_answer"`
	SampleAnswer  string   `json:"sample_answer,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Options       []string `json:"options,omitempty"`
	GradingNotes  string   `json:"grading_notes,omitempty"`
}

// SessionStatus represents the status of an exam session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// Session represents a student's exam session. The selected item order is
// fixed at start and persisted with the session; no transient state is
// authoritative.
type Session struct {
	ID           string        `json:"id"`
	ExamID       string        `json:"exam_id"`
	StudentID    string        `json:"student_id"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CurrentIndex int           `json:"current_index"`
	Total        int           `json:"total_questions"`
}

// MaxPointsPerItem returns the point value of each item so that a fully
// correct session scores 100.
func (s Session) MaxPointsPerItem() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100.0 / float64(s.Total)
}

// SessionItem is one entry in a session's ordered item list.
type SessionItem struct {
	SessionID string `json:"session_id"`
	Position  int    `json:"position"`
	ItemID    int64  `json:"item_id"`
	Advanced  bool   `json:"advanced"`
}

// MaxAttempts is the attempt cap per (session, item).
const MaxAttempts = 3

// AttemptRecord is one scored submission for one item within one session.
// Records are keyed by (session_id, item_id, attempt_number) and never
// deleted; attempt_number is capped at MaxAttempts.
type AttemptRecord struct {
	SessionID     string    `json:"session_id"`
	ItemID        int64     `json:"item_id"`
	AttemptNumber int       `json:"attempt_number"`
	AnswerText    string    `json:"answer_text"`
	Score         float64   `json:"score"`
	IsCorrect     bool      `json:"is_correct"`
	HintLevel     int       `json:"hint_level_shown"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// DifficultyProgress tracks per-level counters for a session. Counters are
// updated when a question advances, not on every attempt.
type DifficultyProgress struct {
	SessionID string `json:"session_id"`
	Level     Level  `json:"level"`
	Attempted int    `json:"questions_attempted"`
	Correct   int    `json:"correct_answers"`
}

// LevelPerformance summarizes one difficulty level in a grade report.
type LevelPerformance struct {
	Attempted int     `json:"attempted"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// TopicScore summarizes one topic in a grade report. Topic scores are
// persisted independently of the main grade so per-topic queries do not
// require recomputation.
type TopicScore struct {
	Topic    string  `json:"topic"`
	Answered int     `json:"answered"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// GradeReport is the final grade for a session. Computed once at finish,
// immutable thereafter.
type GradeReport struct {
	SessionID       string                     `json:"session_id"`
	StudentID       string                     `json:"student_id"`
	ExamID          string                     `json:"exam_id"`
	RawScore        float64                    `json:"raw_score"`
	TotalQuestions  int                        `json:"total_questions"`
	Answered        int                        `json:"questions_answered"`
	Percentage      float64                    `json:"percentage"`
	WeightedScore   float64                    `json:"weighted_score"`
	ByLevel         map[Level]LevelPerformance `json:"difficulty_performance"`
	MasteryLevel    string                     `json:"mastery_level"`
	Strengths       []string                   `json:"strengths"`
	Weaknesses      []string                   `json:"weaknesses"`
	Topics          []TopicScore               `json:"topic_breakdown"`
	Recommendations []string                   `json:"recommendations"`
	CreatedAt       time.Time                  `json:"created_at"`
}

// ExamConfig holds runtime exam parameters set via CLI flags.
type ExamConfig struct {
	NumQuestions int               // questions per session
	LevelMix     map[Level]float64 // fraction of questions drawn per level
	Adaptive     bool              // stepwise selection instead of a fixed order
	Seed         uint64            // 0 means randomly seeded
}

// DefaultLevelMix is the stratified sampling mix used when none is configured.
func DefaultLevelMix() map[Level]float64 {
	return map[Level]float64{3: 0.3, 4: 0.3, 5: 0.4}
}

// ItemImport is used for loading items from JSON.
type ItemImport struct {
	Text          string   `json:"text"`
	Type          ItemType `json:"type"`
	Level         Level    `json:"level"`
	Topic         string   `json:"topic"`
	CorrectAnswer string   `json:"correct_answer"`
	SampleAnswer  string   `json:"sample_answer"`
	Keywords      []string `json:"keywords"`
	Options       []string `json:"options"`
	GradingNotes  string   `json:"grading_notes"`
}
