package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/examflow/internal/model"
)

// handleUploadItems imports assessment items from an uploaded JSON file.
// Re-uploading an unchanged file is detected by content hash and skipped.
func (h *Handler) handleUploadItems(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"file too large"})
		return
	}

	examID := r.FormValue("exam_id")
	if examID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{"exam_id is required"})
		return
	}

	file, header, err := r.FormFile("items_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"no file uploaded"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{"failed to read file"})
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, map[string]any{"imported": 0, "skipped": true})
		return
	}

	var imports []model.ItemImport
	if err := json.Unmarshal(data, &imports); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid JSON: " + err.Error()})
		return
	}

	count := 0
	for _, qi := range imports {
		if !qi.Level.Valid() {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{fmt.Sprintf("invalid level %d for item %q", qi.Level, qi.Text)})
			return
		}
		_, err := h.store.InsertItem(model.Item{
			ExamID:        examID,
			Text:          qi.Text,
			Type:          qi.Type,
			Level:         qi.Level,
			Topic:         qi.Topic,
			CorrectAnswer: qi.CorrectAnswer,
			SampleAnswer:  qi.SampleAnswer,
			Keywords:      qi.Keywords,
			Options:       qi.Options,
			GradingNotes:  qi.GradingNotes,
		})
		if err != nil {
			slog.Error("failed to insert item", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{"failed to insert item"})
			return
		}
		count++
	}

	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("uploaded items via admin", "filename", header.Filename, "exam_id", examID, "count", count)
	writeJSON(w, http.StatusOK, map[string]any{"imported": count, "skipped": false})
}
