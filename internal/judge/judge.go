// Package judge implements the external semantic answer judge against any
// OpenAI-compatible chat completion endpoint.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examflow/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// verdict is the JSON shape the judge model must respond with.
type verdict struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new judge client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint responds at all, so a misconfigured judge is
// caught at startup rather than on the first degraded submission.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("judge endpoint check: %w", err)
	}
	return nil
}

// Evaluate asks the judge model to score a student answer against the
// reference answer. The returned score is in [0,1].
func (c *Client) Evaluate(ctx context.Context, item model.Item, reference, studentAnswer, instructions string) (float64, string, error) {
	systemPrompt := buildJudgePrompt(item, reference, instructions)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sanitizeAnswer(studentAnswer)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return 0, "", fmt.Errorf("judge API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, "", fmt.Errorf("judge returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("judge response", "item_id", item.ID, "raw", raw)

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return 0, "", fmt.Errorf("parse judge response: %w (raw: %s)", err, raw)
	}
	if v.Score < 0 || v.Score > 1 {
		return 0, "", fmt.Errorf("judge score %.3f out of range (raw: %s)", v.Score, raw)
	}

	return v.Score, v.Rationale, nil
}

func buildJudgePrompt(item model.Item, reference, instructions string) string {
	var sb strings.Builder
	sb.WriteString("You are grading one answer to an exam question.\n\n")
	sb.WriteString("QUESTION: " + item.Text + "\n\n")
	if reference != "" {
		sb.WriteString("REFERENCE ANSWER (not shown to student):\n" + reference + "\n\n")
	}
	if instructions != "" {
		sb.WriteString("GRADING INSTRUCTIONS:\n" + instructions + "\n\n")
	}
	sb.WriteString("The next message is the student's answer. Score it for correctness ")
	sb.WriteString("and completeness against the reference answer.\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"score": <number from 0.0 to 1.0>, "rationale": "<one or two sentences>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// maxAnswerRunes caps the student text sent to the judge.
const maxAnswerRunes = 10000

func sanitizeAnswer(answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "[No answer provided]"
	}
	runes := []rune(answer)
	if len(runes) > maxAnswerRunes {
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
