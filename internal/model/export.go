package model

import "time"

// ResultsExport is the top-level JSON structure for grade report export.
type ResultsExport struct {
	ExamID     string        `json:"exam_id"`
	Subject    string        `json:"subject"`
	Date       string        `json:"date"`
	NumReports int           `json:"num_reports"`
	Reports    []GradeReport `json:"reports"`
}

// SessionSummary is a compact session listing entry for review tooling.
type SessionSummary struct {
	ID          string        `json:"id"`
	ExamID      string        `json:"exam_id"`
	StudentID   string        `json:"student_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Answered    int           `json:"questions_answered"`
	Total       int           `json:"total_questions"`
}
