package store

import (
	"testing"
	"time"

	"github.com/pavelanni/examflow/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestItem(t *testing.T, s *Store, examID string, level model.Level) int64 {
	t.Helper()
	id, err := s.InsertItem(model.Item{
		ExamID:        examID,
		Text:          "What data structure uses LIFO ordering?",
		Type:          model.TypeOpenEnded,
		Level:         level,
		Topic:         "data structures",
		CorrectAnswer: "stack",
		Keywords:      []string{"stack", "lifo"},
	})
	if err != nil {
		t.Fatalf("failed to insert item: %v", err)
	}
	return id
}

func createTestSession(t *testing.T, s *Store, id string, itemIDs []int64) model.Session {
	t.Helper()
	sess := model.Session{
		ID:        id,
		ExamID:    "cs101",
		StudentID: "alice",
		Status:    model.StatusActive,
		StartedAt: time.Now(),
		Total:     len(itemIDs),
	}
	if err := s.CreateSession(sess, itemIDs); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return sess
}

func TestItemRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertItem(model.Item{
		ExamID:        "cs101",
		Text:          "Select the sorted container",
		Type:          model.TypeMultipleChoice,
		Level:         4,
		Topic:         "collections",
		CorrectAnswer: "b",
		Options:       []string{"list", "heap", "set"},
	})
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	got, err := s.GetItem(id)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Text != "Select the sorted container" || got.Level != 4 {
		t.Errorf("unexpected item: %+v", got)
	}
	if len(got.Options) != 3 || got.Options[1] != "heap" {
		t.Errorf("options not preserved: %v", got.Options)
	}

	count, err := s.ItemCount()
	if err != nil {
		t.Fatalf("ItemCount: %v", err)
	}
	if count != 1 {
		t.Errorf("item count = %d, want 1", count)
	}
}

func TestListItemsByExamAndLevel(t *testing.T) {
	s := newTestStore(t)

	insertTestItem(t, s, "cs101", 3)
	insertTestItem(t, s, "cs101", 3)
	insertTestItem(t, s, "cs101", 5)
	insertTestItem(t, s, "bio200", 3)

	items, err := s.ListItemsByExamAndLevel("cs101", 3)
	if err != nil {
		t.Fatalf("ListItemsByExamAndLevel: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 level-3 items for cs101, got %d", len(items))
	}

	all, err := s.ListItems("cs101")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 items for cs101, got %d", len(all))
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	first := insertTestItem(t, s, "cs101", 3)
	second := insertTestItem(t, s, "cs101", 4)
	createTestSession(t, s, "sess-1", []int64{first, second})

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != model.StatusActive || got.Total != 2 || got.CurrentIndex != 0 {
		t.Errorf("unexpected session: %+v", got)
	}

	items, err := s.GetSessionItems("sess-1")
	if err != nil {
		t.Fatalf("GetSessionItems: %v", err)
	}
	if len(items) != 2 || items[0].ItemID != first || items[1].ItemID != second {
		t.Errorf("session items out of order: %+v", items)
	}

	transitioned, err := s.AdvanceSessionItem("sess-1", first)
	if err != nil {
		t.Fatalf("AdvanceSessionItem: %v", err)
	}
	if !transitioned {
		t.Error("first advance should report a transition")
	}
	got, _ = s.GetSession("sess-1")
	if got.CurrentIndex != 1 {
		t.Errorf("current index = %d after advance, want 1", got.CurrentIndex)
	}

	// Advancing the same item again must not double-count.
	transitioned, err = s.AdvanceSessionItem("sess-1", first)
	if err != nil {
		t.Fatalf("repeat AdvanceSessionItem: %v", err)
	}
	if transitioned {
		t.Error("repeat advance should not report a transition")
	}
	got, _ = s.GetSession("sess-1")
	if got.CurrentIndex != 1 {
		t.Errorf("current index = %d after repeat advance, want 1", got.CurrentIndex)
	}

	if err := s.CompleteSession("sess-1"); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	got, _ = s.GetSession("sess-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q after completion, want %q", got.Status, model.StatusCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestAppendSessionItem(t *testing.T) {
	s := newTestStore(t)
	first := insertTestItem(t, s, "cs101", 3)
	createTestSession(t, s, "sess-1", []int64{first})

	next := insertTestItem(t, s, "cs101", 4)
	if err := s.AppendSessionItem("sess-1", next); err != nil {
		t.Fatalf("AppendSessionItem: %v", err)
	}

	items, err := s.GetSessionItems("sess-1")
	if err != nil {
		t.Fatalf("GetSessionItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 session items, got %d", len(items))
	}
	if items[1].ItemID != next || items[1].Position != 1 {
		t.Errorf("appended item = %+v, want item %d at position 1", items[1], next)
	}

	// An item already in the list is not appended again.
	if err := s.AppendSessionItem("sess-1", next); err != nil {
		t.Fatalf("repeat AppendSessionItem: %v", err)
	}
	items, err = s.GetSessionItems("sess-1")
	if err != nil {
		t.Fatalf("GetSessionItems: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("repeat append grew the list to %d items, want 2", len(items))
	}
}

func TestRecordAttemptIdempotent(t *testing.T) {
	s := newTestStore(t)
	itemID := insertTestItem(t, s, "cs101", 3)
	createTestSession(t, s, "sess-1", []int64{itemID})

	rec := model.AttemptRecord{
		SessionID:     "sess-1",
		ItemID:        itemID,
		AttemptNumber: 1,
		AnswerText:    "queue",
		Score:         0,
		IsCorrect:     false,
		SubmittedAt:   time.Now(),
	}
	inserted, err := s.RecordAttempt(rec)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if !inserted {
		t.Error("first record should insert")
	}

	// Same attempt number again: the stored row wins.
	rec.AnswerText = "stack"
	rec.Score = 10
	rec.IsCorrect = true
	inserted, err = s.RecordAttempt(rec)
	if err != nil {
		t.Fatalf("duplicate RecordAttempt: %v", err)
	}
	if inserted {
		t.Error("duplicate record should be ignored")
	}

	got, err := s.GetAttempt("sess-1", itemID, 1)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.AnswerText != "queue" || got.IsCorrect {
		t.Errorf("stored attempt overwritten: %+v", got)
	}

	count, err := s.CountAttempts("sess-1", itemID)
	if err != nil {
		t.Fatalf("CountAttempts: %v", err)
	}
	if count != 1 {
		t.Errorf("attempt count = %d, want 1", count)
	}
}

func TestListAttemptsOrdered(t *testing.T) {
	s := newTestStore(t)
	itemID := insertTestItem(t, s, "cs101", 3)
	createTestSession(t, s, "sess-1", []int64{itemID})

	for n := 1; n <= 3; n++ {
		_, err := s.RecordAttempt(model.AttemptRecord{
			SessionID: "sess-1", ItemID: itemID, AttemptNumber: n,
			AnswerText: "try", HintLevel: n - 1, SubmittedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("RecordAttempt %d: %v", n, err)
		}
	}

	attempts, err := s.ListAttempts("sess-1", itemID)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a.AttemptNumber != i+1 {
			t.Errorf("attempt %d has number %d", i, a.AttemptNumber)
		}
	}
}

func TestDifficultyProgress(t *testing.T) {
	s := newTestStore(t)
	itemID := insertTestItem(t, s, "cs101", 4)
	createTestSession(t, s, "sess-1", []int64{itemID})

	if err := s.BumpDifficultyProgress("sess-1", 4, true); err != nil {
		t.Fatalf("BumpDifficultyProgress: %v", err)
	}
	if err := s.BumpDifficultyProgress("sess-1", 4, false); err != nil {
		t.Fatalf("BumpDifficultyProgress: %v", err)
	}
	if err := s.BumpDifficultyProgress("sess-1", 5, true); err != nil {
		t.Fatalf("BumpDifficultyProgress: %v", err)
	}

	progress, err := s.GetDifficultyProgress("sess-1")
	if err != nil {
		t.Fatalf("GetDifficultyProgress: %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(progress))
	}
	byLevel := make(map[model.Level]model.DifficultyProgress)
	for _, p := range progress {
		byLevel[p.Level] = p
	}
	if p := byLevel[4]; p.Attempted != 2 || p.Correct != 1 {
		t.Errorf("level 4 progress = %+v, want attempted 2 correct 1", p)
	}
	if p := byLevel[5]; p.Attempted != 1 || p.Correct != 1 {
		t.Errorf("level 5 progress = %+v, want attempted 1 correct 1", p)
	}
}

func TestReportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	itemID := insertTestItem(t, s, "cs101", 3)
	createTestSession(t, s, "sess-1", []int64{itemID})

	report := model.GradeReport{
		SessionID:      "sess-1",
		StudentID:      "alice",
		ExamID:         "cs101",
		RawScore:       80,
		TotalQuestions: 10,
		Answered:       10,
		Percentage:     80,
		WeightedScore:  78.5,
		MasteryLevel:   "good",
		Strengths:      []string{"strong performance on level 3 questions"},
		Weaknesses:     []string{"no major weaknesses detected"},
		Topics: []model.TopicScore{
			{Topic: "data structures", Answered: 10, Correct: 8, Accuracy: 80},
		},
		CreatedAt: time.Now(),
	}
	if err := s.SaveReport(report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := s.GetReport("sess-1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got == nil {
		t.Fatal("report not found after save")
	}
	if got.Percentage != 80 || got.MasteryLevel != "good" {
		t.Errorf("unexpected report: %+v", got)
	}

	topics, err := s.GetTopicScores("sess-1")
	if err != nil {
		t.Fatalf("GetTopicScores: %v", err)
	}
	if len(topics) != 1 || topics[0].Topic != "data structures" || topics[0].Correct != 8 {
		t.Errorf("unexpected topic scores: %+v", topics)
	}

	// Saving again must upsert, not duplicate.
	report.Percentage = 90
	report.MasteryLevel = "excellent"
	if err := s.SaveReport(report); err != nil {
		t.Fatalf("second SaveReport: %v", err)
	}
	got, _ = s.GetReport("sess-1")
	if got.Percentage != 90 {
		t.Errorf("report not updated: percentage = %v", got.Percentage)
	}

	all, err := s.ExportAllReports()
	if err != nil {
		t.Fatalf("ExportAllReports: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 exported report, got %d", len(all))
	}
}

func TestGetReportMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetReport("nope")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing report, got %+v", got)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetMetadata("subject", "computer science"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	got, err := s.GetMetadata("subject")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got != "computer science" {
		t.Errorf("metadata = %q", got)
	}

	if err := s.SetMetadata("subject", "biology"); err != nil {
		t.Fatalf("SetMetadata update: %v", err)
	}
	got, _ = s.GetMetadata("subject")
	if got != "biology" {
		t.Errorf("metadata after update = %q", got)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetImportedFileHash("items.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty hash for unknown file, got %q", got)
	}

	if err := s.SetImportedFileHash("items.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	got, _ = s.GetImportedFileHash("items.json")
	if got != "abc123" {
		t.Errorf("hash = %q, want abc123", got)
	}
}

func TestListSessionSummaries(t *testing.T) {
	s := newTestStore(t)
	first := insertTestItem(t, s, "cs101", 3)
	second := insertTestItem(t, s, "cs101", 4)
	createTestSession(t, s, "sess-1", []int64{first, second})

	if _, err := s.AdvanceSessionItem("sess-1", first); err != nil {
		t.Fatalf("AdvanceSessionItem: %v", err)
	}

	summaries, err := s.ListSessionSummaries()
	if err != nil {
		t.Fatalf("ListSessionSummaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	sum := summaries[0]
	if sum.ID != "sess-1" || sum.Answered != 1 || sum.Total != 2 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}
