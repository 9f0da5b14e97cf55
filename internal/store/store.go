package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/examflow/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id TEXT NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		level INTEGER NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		correct_answer TEXT NOT NULL,
		sample_answer TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		options TEXT NOT NULL DEFAULT '[]',
		grading_notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		current_index INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_items (
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		advanced INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, position),
		UNIQUE (session_id, item_id),
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (item_id) REFERENCES items(id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		session_id TEXT NOT NULL,
		item_id INTEGER NOT NULL,
		attempt_number INTEGER NOT NULL,
		answer_text TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		is_correct INTEGER NOT NULL DEFAULT 0,
		hint_level INTEGER NOT NULL DEFAULT 0,
		submitted_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, item_id, attempt_number),
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (item_id) REFERENCES items(id)
	);

	CREATE TABLE IF NOT EXISTS difficulty_progress (
		session_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		attempted INTEGER NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, level),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS grade_reports (
		session_id TEXT PRIMARY KEY,
		raw_score REAL NOT NULL,
		percentage REAL NOT NULL,
		weighted_score REAL NOT NULL,
		mastery TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS topic_scores (
		session_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		answered INTEGER NOT NULL,
		correct INTEGER NOT NULL,
		accuracy REAL NOT NULL,
		PRIMARY KEY (session_id, topic),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const itemColumns = `id, exam_id, text, type, level, topic, correct_answer, sample_answer, keywords, options, grading_notes`

func scanItem(row interface{ Scan(...any) error }) (model.Item, error) {
	var it model.Item
	var keywords, options string
	err := row.Scan(&it.ID, &it.ExamID, &it.Text, &it.Type, &it.Level, &it.Topic,
		&it.CorrectAnswer, &it.SampleAnswer, &keywords, &options, &it.GradingNotes)
	if err != nil {
		return it, err
	}
	if err := json.Unmarshal([]byte(keywords), &it.Keywords); err != nil {
		return it, fmt.Errorf("decode keywords for item %d: %w", it.ID, err)
	}
	if err := json.Unmarshal([]byte(options), &it.Options); err != nil {
		return it, fmt.Errorf("decode options for item %d: %w", it.ID, err)
	}
	return it, nil
}

// InsertItem stores an assessment item.
func (s *Store) InsertItem(it model.Item) (int64, error) {
	keywords, err := json.Marshal(it.Keywords)
	if err != nil {
		return 0, err
	}
	options, err := json.Marshal(it.Options)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO items (exam_id, text, type, level, topic, correct_answer, sample_answer, keywords, options, grading_notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ExamID, it.Text, it.Type, it.Level, it.Topic, it.CorrectAnswer, it.SampleAnswer,
		string(keywords), string(options), it.GradingNotes,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetItem returns an item by ID.
func (s *Store) GetItem(id int64) (model.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// ListItemsByExamAndLevel returns all items for an exam at the given level.
func (s *Store) ListItemsByExamAndLevel(examID string, level model.Level) ([]model.Item, error) {
	rows, err := s.db.Query(
		`SELECT `+itemColumns+` FROM items WHERE exam_id = ? AND level = ? ORDER BY id`,
		examID, level,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListItems returns all items for an exam.
func (s *Store) ListItems(examID string) ([]model.Item, error) {
	rows, err := s.db.Query(`SELECT `+itemColumns+` FROM items WHERE exam_id = ? ORDER BY id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ItemCount returns the number of items in the database.
func (s *Store) ItemCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// CreateSession creates a session together with its ordered item list in one
// transaction.
func (s *Store) CreateSession(sess model.Session, itemIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, exam_id, student_id, status, started_at, current_index, total)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		sess.ID, sess.ExamID, sess.StudentID, sess.Status, sess.StartedAt, sess.Total,
	)
	if err != nil {
		return err
	}

	for i, itemID := range itemIDs {
		_, err := tx.Exec(
			`INSERT INTO session_items (session_id, position, item_id, advanced) VALUES (?, ?, ?, 0)`,
			sess.ID, i, itemID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, exam_id, student_id, status, started_at, completed_at, current_index, total
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ExamID, &sess.StudentID, &sess.Status, &sess.StartedAt,
		&sess.CompletedAt, &sess.CurrentIndex, &sess.Total)
	return sess, err
}

// GetSessionItems returns the session's item list in order.
func (s *Store) GetSessionItems(sessionID string) ([]model.SessionItem, error) {
	rows, err := s.db.Query(
		`SELECT session_id, position, item_id, advanced FROM session_items
		 WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.SessionItem
	for rows.Next() {
		var si model.SessionItem
		if err := rows.Scan(&si.SessionID, &si.Position, &si.ItemID, &si.Advanced); err != nil {
			return nil, err
		}
		items = append(items, si)
	}
	return items, rows.Err()
}

// AppendSessionItem adds an item at the end of a session's list. Used in
// stepwise mode where the list grows one item at a time. An item already in
// the list is left untouched, so two racing requests cannot double-append.
func (s *Store) AppendSessionItem(sessionID string, itemID int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO session_items (session_id, position, item_id, advanced)
		 SELECT ?, COALESCE(MAX(position)+1, 0), ?, 0 FROM session_items WHERE session_id = ?`,
		sessionID, itemID, sessionID,
	)
	return err
}

// AdvanceSessionItem marks an item advanced and moves the session cursor.
// Returns whether this call performed the transition; an item that was
// already advanced leaves the cursor alone and reports false.
func (s *Store) AdvanceSessionItem(sessionID string, itemID int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE session_items SET advanced = 1 WHERE session_id = ? AND item_id = ? AND advanced = 0`,
		sessionID, itemID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Already advanced; nothing to move.
		return false, tx.Commit()
	}

	_, err = tx.Exec(`UPDATE sessions SET current_index = current_index + 1 WHERE id = ?`, sessionID)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// CompleteSession marks a session completed and stamps the completion time.
func (s *Store) CompleteSession(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, completed_at = ? WHERE id = ?`,
		model.StatusCompleted, now, id,
	)
	return err
}

// RecordAttempt inserts an attempt record. The insert is keyed by
// (session_id, item_id, attempt_number); a duplicate submission is ignored
// and reported via the returned bool so the caller can replay the stored
// result instead of double-counting.
func (s *Store) RecordAttempt(rec model.AttemptRecord) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO attempts
		 (session_id, item_id, attempt_number, answer_text, score, is_correct, hint_level, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ItemID, rec.AttemptNumber, rec.AnswerText,
		rec.Score, rec.IsCorrect, rec.HintLevel, rec.SubmittedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetAttempt returns one attempt record.
func (s *Store) GetAttempt(sessionID string, itemID int64, attemptNumber int) (model.AttemptRecord, error) {
	var rec model.AttemptRecord
	err := s.db.QueryRow(
		`SELECT session_id, item_id, attempt_number, answer_text, score, is_correct, hint_level, submitted_at
		 FROM attempts WHERE session_id = ? AND item_id = ? AND attempt_number = ?`,
		sessionID, itemID, attemptNumber,
	).Scan(&rec.SessionID, &rec.ItemID, &rec.AttemptNumber, &rec.AnswerText,
		&rec.Score, &rec.IsCorrect, &rec.HintLevel, &rec.SubmittedAt)
	return rec, err
}

// CountAttempts returns how many attempts exist for (session, item).
func (s *Store) CountAttempts(sessionID string, itemID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM attempts WHERE session_id = ? AND item_id = ?`,
		sessionID, itemID,
	).Scan(&count)
	return count, err
}

// ListAttempts returns all attempts for (session, item) in attempt order.
func (s *Store) ListAttempts(sessionID string, itemID int64) ([]model.AttemptRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, item_id, attempt_number, answer_text, score, is_correct, hint_level, submitted_at
		 FROM attempts WHERE session_id = ? AND item_id = ? ORDER BY attempt_number`,
		sessionID, itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// ListSessionAttempts returns every attempt in a session.
func (s *Store) ListSessionAttempts(sessionID string) ([]model.AttemptRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, item_id, attempt_number, answer_text, score, is_correct, hint_level, submitted_at
		 FROM attempts WHERE session_id = ? ORDER BY item_id, attempt_number`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func collectAttempts(rows *sql.Rows) ([]model.AttemptRecord, error) {
	var attempts []model.AttemptRecord
	for rows.Next() {
		var rec model.AttemptRecord
		if err := rows.Scan(&rec.SessionID, &rec.ItemID, &rec.AttemptNumber, &rec.AnswerText,
			&rec.Score, &rec.IsCorrect, &rec.HintLevel, &rec.SubmittedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, rec)
	}
	return attempts, rows.Err()
}

// BumpDifficultyProgress increments per-level counters for a session.
func (s *Store) BumpDifficultyProgress(sessionID string, level model.Level, correct bool) error {
	correctInc := 0
	if correct {
		correctInc = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO difficulty_progress (session_id, level, attempted, correct)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(session_id, level) DO UPDATE SET attempted = attempted + 1, correct = correct + ?`,
		sessionID, level, correctInc, correctInc,
	)
	return err
}

// GetDifficultyProgress returns all per-level counters for a session.
func (s *Store) GetDifficultyProgress(sessionID string) ([]model.DifficultyProgress, error) {
	rows, err := s.db.Query(
		`SELECT session_id, level, attempted, correct FROM difficulty_progress
		 WHERE session_id = ? ORDER BY level`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var progress []model.DifficultyProgress
	for rows.Next() {
		var dp model.DifficultyProgress
		if err := rows.Scan(&dp.SessionID, &dp.Level, &dp.Attempted, &dp.Correct); err != nil {
			return nil, err
		}
		progress = append(progress, dp)
	}
	return progress, rows.Err()
}

// ListSessionSummaries returns all sessions newest first, with the count of
// advanced questions.
func (s *Store) ListSessionSummaries() ([]model.SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.exam_id, s.student_id, s.status, s.started_at, s.completed_at, s.current_index, s.total
		 FROM sessions s ORDER BY s.started_at DESC, s.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []model.SessionSummary
	for rows.Next() {
		var sm model.SessionSummary
		if err := rows.Scan(&sm.ID, &sm.ExamID, &sm.StudentID, &sm.Status, &sm.StartedAt,
			&sm.CompletedAt, &sm.Answered, &sm.Total); err != nil {
			return nil, err
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}
