package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "SessionNotFound")
	if got != "Session not found." {
		t.Errorf("T(SessionNotFound) = %q, want 'Session not found.'", got)
	}

	got = T(ctx, "HintReread")
	if got != "Not quite. Reread the question carefully and try again." {
		t.Errorf("T(HintReread) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "SessionNotFound")
	if got != "Сессия не найдена." {
		t.Errorf("T(SessionNotFound) = %q, want 'Сессия не найдена.'", got)
	}

	got = T(ctx, "NoItems")
	if got != "Для этого экзамена нет доступных вопросов." {
		t.Errorf("T(NoItems) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "HintTopic", map[string]any{"Topic": "sorting"})
	if got != "Still not right. Think about what you know about sorting." {
		t.Errorf("Td(HintTopic) = %q", got)
	}

	got = Td(ctx, "AnswerRevealed", map[string]any{"Answer": "42"})
	if got != "The correct answer was: 42" {
		t.Errorf("Td(AnswerRevealed) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestFallbackToDefault(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// Context without a localizer falls back to the default language.
	got := T(context.Background(), "SessionNotFound")
	if got != "Session not found." {
		t.Errorf("T without localizer = %q", got)
	}
}
