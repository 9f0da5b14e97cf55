package scoring

import (
	"math"
	"testing"

	"github.com/pavelanni/examflow/internal/model"
)

func testItems(n int) map[int64]model.Item {
	items := make(map[int64]model.Item, n)
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		level := model.Level(3 + i%3)
		items[id] = model.Item{ID: id, Level: level, Topic: "algebra"}
	}
	return items
}

func TestBuildReportPercentage(t *testing.T) {
	sess := model.Session{ID: "s1", StudentID: "alice", ExamID: "math", Total: 10}
	items := testItems(10)
	maxPoints := sess.MaxPointsPerItem()
	if math.Abs(maxPoints-10) > 1e-9 {
		t.Fatalf("max points per item = %v, want 10", maxPoints)
	}

	// Eight full-credit answers and two zeroes: 80%.
	var attempts []model.AttemptRecord
	var progress []model.DifficultyProgress
	correctByLevel := map[model.Level]int{}
	attemptedByLevel := map[model.Level]int{}
	for i := 0; i < 10; i++ {
		id := int64(i + 1)
		score := maxPoints
		correct := true
		if i >= 8 {
			score = 0
			correct = false
		}
		attempts = append(attempts, model.AttemptRecord{
			SessionID: "s1", ItemID: id, AttemptNumber: 1,
			Score: score, IsCorrect: correct,
		})
		level := items[id].Level
		attemptedByLevel[level]++
		if correct {
			correctByLevel[level]++
		}
	}
	for level := model.MinLevel; level <= model.MaxLevel; level++ {
		progress = append(progress, model.DifficultyProgress{
			SessionID: "s1", Level: level,
			Attempted: attemptedByLevel[level], Correct: correctByLevel[level],
		})
	}

	report := BuildReport(sess, items, attempts, progress)

	if math.Abs(report.RawScore-80) > 1e-9 {
		t.Errorf("raw score = %v, want 80", report.RawScore)
	}
	if report.Answered != 10 {
		t.Errorf("answered = %d, want 10", report.Answered)
	}
	if math.Abs(report.Percentage-80) > 1e-9 {
		t.Errorf("percentage = %v, want 80", report.Percentage)
	}
	if report.MasteryLevel != "good" {
		t.Errorf("mastery = %q, want good", report.MasteryLevel)
	}
	if len(report.Topics) != 1 || report.Topics[0].Topic != "algebra" {
		t.Fatalf("topics = %v, want a single algebra entry", report.Topics)
	}
	if report.Topics[0].Correct != 8 || report.Topics[0].Answered != 10 {
		t.Errorf("topic tally = %d/%d, want 8/10", report.Topics[0].Correct, report.Topics[0].Answered)
	}
}

func TestBuildReportBestAttemptWins(t *testing.T) {
	sess := model.Session{ID: "s1", Total: 2}
	items := map[int64]model.Item{
		1: {ID: 1, Level: 4, Topic: "geometry"},
	}
	attempts := []model.AttemptRecord{
		{SessionID: "s1", ItemID: 1, AttemptNumber: 1, Score: 0},
		{SessionID: "s1", ItemID: 1, AttemptNumber: 2, Score: 25, IsCorrect: false},
		{SessionID: "s1", ItemID: 1, AttemptNumber: 3, Score: 50, IsCorrect: true},
	}

	report := BuildReport(sess, items, attempts, nil)

	if math.Abs(report.RawScore-50) > 1e-9 {
		t.Errorf("raw score = %v, want 50 (best attempt)", report.RawScore)
	}
	if report.Answered != 1 {
		t.Errorf("answered = %d, want 1", report.Answered)
	}
	if math.Abs(report.Percentage-100) > 1e-9 {
		t.Errorf("percentage = %v, want 100", report.Percentage)
	}
}

func TestBuildReportEmptySession(t *testing.T) {
	sess := model.Session{ID: "s1", Total: 5}

	report := BuildReport(sess, nil, nil, nil)

	if report.Answered != 0 || report.Percentage != 0 || report.RawScore != 0 {
		t.Errorf("empty session report not zeroed: %+v", report)
	}
	if report.MasteryLevel != "needs improvement" {
		t.Errorf("mastery = %q, want needs improvement", report.MasteryLevel)
	}
	if len(report.Strengths) != 1 || len(report.Weaknesses) != 1 {
		t.Errorf("expected neutral strength and weakness defaults, got %v / %v",
			report.Strengths, report.Weaknesses)
	}
}

func TestMasteryLevels(t *testing.T) {
	tests := []struct {
		percentage float64
		want       string
	}{
		{95, "excellent"},
		{90, "excellent"},
		{80, "good"},
		{75, "good"},
		{65, "satisfactory"},
		{60, "satisfactory"},
		{40, "needs improvement"},
		{0, "needs improvement"},
	}
	for _, tt := range tests {
		if got := masteryLevel(tt.percentage); got != tt.want {
			t.Errorf("masteryLevel(%v) = %q, want %q", tt.percentage, got, tt.want)
		}
	}
}

func TestWeightedScoreFavorsHardLevels(t *testing.T) {
	maxPoints := 10.0
	items := map[int64]model.Item{
		1: {ID: 1, Level: 3},
		2: {ID: 2, Level: 5},
	}

	// Perfect on the hard item, zero on the easy one.
	hardRight := []model.AttemptRecord{
		{ItemID: 1, AttemptNumber: 1, Score: 0},
		{ItemID: 2, AttemptNumber: 1, Score: maxPoints},
	}
	// Perfect on the easy item, zero on the hard one.
	easyRight := []model.AttemptRecord{
		{ItemID: 1, AttemptNumber: 1, Score: maxPoints},
		{ItemID: 2, AttemptNumber: 1, Score: 0},
	}

	hard := weightedScore(hardRight, items, maxPoints)
	easy := weightedScore(easyRight, items, maxPoints)

	// Level 5 carries weight 2.0 against 1.0 for level 3.
	if math.Abs(hard-100*2.0/3.0) > 1e-9 {
		t.Errorf("hard-right weighted score = %v, want %v", hard, 100*2.0/3.0)
	}
	if math.Abs(easy-100*1.0/3.0) > 1e-9 {
		t.Errorf("easy-right weighted score = %v, want %v", easy, 100*1.0/3.0)
	}
	if hard <= easy {
		t.Errorf("hard-level success should outweigh easy-level success: %v <= %v", hard, easy)
	}
}

func TestStrengthsAndWeaknesses(t *testing.T) {
	byLevel := map[model.Level]model.LevelPerformance{
		3: {Attempted: 5, Correct: 5, Accuracy: 100},
		4: {Attempted: 4, Correct: 2, Accuracy: 50},
		5: {Attempted: 3, Correct: 2, Accuracy: 66.7},
	}

	strengths, weaknesses := strengthsAndWeaknesses(byLevel)

	if len(strengths) != 1 || strengths[0] != "strong performance on level 3 questions" {
		t.Errorf("strengths = %v", strengths)
	}
	if len(weaknesses) != 1 || weaknesses[0] != "low accuracy on level 4 questions" {
		t.Errorf("weaknesses = %v", weaknesses)
	}
}

func TestRecommendationsIncludeWeakLevels(t *testing.T) {
	byLevel := map[model.Level]model.LevelPerformance{
		4: {Attempted: 4, Correct: 1, Accuracy: 25},
	}

	recs := recommendations("satisfactory", byLevel)

	if len(recs) != 2 {
		t.Fatalf("recommendations = %v, want 2 entries", recs)
	}
	if recs[1] != "practice more level 4 questions" {
		t.Errorf("recs[1] = %q", recs[1])
	}
}
