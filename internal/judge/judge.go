// Package judge scores recorded conversation transcripts against the product
// research rubric, using a completion model as the grader.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"prodscout/internal/chat"
	"prodscout/internal/lenientjson"
	"prodscout/internal/llm"
)

// Completer produces one whole completion for an ordered history.
type Completer interface {
	Complete(ctx context.Context, history []chat.Message, params llm.GenParams) (string, error)
}

// Transcript is a recorded conversation to score. The last assistant message
// is the output under evaluation.
type Transcript struct {
	Messages []chat.Message `json:"messages"`
}

// Score is one rubric metric result, normalized to [0, 1].
type Score struct {
	Key    string  `json:"key"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Judge grades transcripts.
type Judge struct {
	completer Completer
	params    llm.GenParams
	logger    *zap.Logger
}

// New creates a Judge. Grading runs at low temperature regardless of the
// chat-side generation settings.
func New(completer Completer, logger *zap.Logger) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{
		completer: completer,
		params:    llm.GenParams{Temperature: 0.2},
		logger:    logger,
	}
}

const graderSystemPrompt = "You are an AI assistant tasked with evaluating the compliance of model outputs to given prompts and conversation context."

const rubric = `Evaluate the model's output on the following two key metrics:
- information_extraction: the model is able to pull out the products with product info (ratings, link, pros / cons, etc)
- source_quality: how legitimate and reliable the source of the information is

Score each metric from 1 to 4.

information_extraction scale:
1: terrible - completely irrelevant to the question asked, or very partial
2: mostly not helpful - misses some key aspects of the question
3: mostly helpful - provides good information, but could still be improved
4: excellent - relevant, direct, detailed, and addresses all aspects of the question

source_quality scale:
1: not reliable at all - the answer cannot be generated from this information
2: mostly not reliable - misses key aspects and lacks the data to generate answers
3: mostly reliable - helpful for generating answers, but could be improved
4: highly reliable - relevant, direct, detailed, contains everything needed for a good answer

Respond in the following exact JSON format with double quotes:
[
  {"key": "information_extraction", "score": <int>, "explanation": "<string>"},
  {"key": "source_quality", "score": <int>, "explanation": "<string>"}
]`

// Evaluate grades one transcript and returns one Score per rubric metric.
func (j *Judge) Evaluate(ctx context.Context, tr Transcript) ([]Score, error) {
	if len(tr.Messages) == 0 {
		return nil, fmt.Errorf("empty transcript")
	}

	var systemPrompt, latestUser, output string
	var turns []chat.Message
	for _, m := range tr.Messages {
		switch m.Role {
		case chat.RoleSystem:
			if systemPrompt == "" {
				systemPrompt = m.Content
			}
		case chat.RoleUser:
			latestUser = m.Content
			turns = append(turns, m)
		case chat.RoleAssistant:
			output = m.Content
			turns = append(turns, m)
		}
	}
	if output == "" {
		return nil, fmt.Errorf("transcript has no assistant output to score")
	}

	historyJSON, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "System Prompt: %s\n\n", systemPrompt)
	fmt.Fprintf(&sb, "Message History:\n%s\n\n", historyJSON)
	fmt.Fprintf(&sb, "Latest User Message: %s\n\n", latestUser)
	fmt.Fprintf(&sb, "Model Output: %s\n\n", output)
	sb.WriteString(rubric)

	raw, err := j.completer.Complete(ctx, []chat.Message{
		{Role: chat.RoleSystem, Content: graderSystemPrompt},
		{Role: chat.RoleUser, Content: sb.String()},
	}, j.params)
	if err != nil {
		return nil, err
	}

	return parseScores(raw)
}

// EvaluateFile loads a transcript from a JSON file and grades it.
func (j *Judge) EvaluateFile(ctx context.Context, path string) ([]Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	var tr Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		// Some exports are a bare message array.
		if arrErr := json.Unmarshal(data, &tr.Messages); arrErr != nil {
			return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
		}
	}
	return j.Evaluate(ctx, tr)
}

// parseScores reads the grader's response through the lenient parser and
// normalizes the 1-4 scores to [0, 1].
func parseScores(raw string) ([]Score, error) {
	result, err := lenientjson.Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("grader response unparseable: %w", err)
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("grader response is not an array")
	}

	var scores []Score
	for _, item := range result.Array() {
		key := item.Get("key").String()
		if key == "" {
			continue
		}
		scores = append(scores, Score{
			Key:    key,
			Score:  item.Get("score").Float() / 4,
			Reason: item.Get("explanation").String(),
		})
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("grader response contained no scores")
	}
	return scores, nil
}
