package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/examflow/internal/model"
)

// SaveReport persists a finalized grade report and its topic scores.
// The report for a session is written once; saving again replaces it, which
// only happens when a retried finish recomputes the same data.
func (s *Store) SaveReport(report model.GradeReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO grade_reports (session_id, raw_score, percentage, weighted_score, mastery, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   raw_score = excluded.raw_score,
		   percentage = excluded.percentage,
		   weighted_score = excluded.weighted_score,
		   mastery = excluded.mastery,
		   payload = excluded.payload`,
		report.SessionID, report.RawScore, report.Percentage, report.WeightedScore,
		report.MasteryLevel, string(payload), report.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, ts := range report.Topics {
		_, err = tx.Exec(
			`INSERT INTO topic_scores (session_id, topic, answered, correct, accuracy)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, topic) DO UPDATE SET
			   answered = excluded.answered,
			   correct = excluded.correct,
			   accuracy = excluded.accuracy`,
			report.SessionID, ts.Topic, ts.Answered, ts.Correct, ts.Accuracy,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetReport returns the grade report for a session, or nil if none exists.
func (s *Store) GetReport(sessionID string) (*model.GradeReport, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM grade_reports WHERE session_id = ?`, sessionID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report model.GradeReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode report for session %s: %w", sessionID, err)
	}
	return &report, nil
}

// GetTopicScores returns persisted topic scores for a session without
// touching the report payload.
func (s *Store) GetTopicScores(sessionID string) ([]model.TopicScore, error) {
	rows, err := s.db.Query(
		`SELECT topic, answered, correct, accuracy FROM topic_scores
		 WHERE session_id = ? ORDER BY topic`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var scores []model.TopicScore
	for rows.Next() {
		var ts model.TopicScore
		if err := rows.Scan(&ts.Topic, &ts.Answered, &ts.Correct, &ts.Accuracy); err != nil {
			return nil, err
		}
		scores = append(scores, ts)
	}
	return scores, rows.Err()
}

// ExportAllReports returns every stored grade report, oldest first.
func (s *Store) ExportAllReports() ([]model.GradeReport, error) {
	rows, err := s.db.Query(`SELECT payload FROM grade_reports ORDER BY created_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	var reports []model.GradeReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var report model.GradeReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
