// Package ai wraps the hosted text/vision completion API. Prompts are
// deliberately minimal pass-through; callers own the inputs.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	api   *openai.Client
	model string
}

// New returns nil when no API key is configured; callers treat a nil client
// as the feature being off.
func New(apiKey, model string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{api: openai.NewClient(apiKey), model: model}
}

// GenerateComment produces a short report-card comment for a student from the
// three scores.
func (c *Client) GenerateComment(ctx context.Context, studentName, className string, reading, writing, math float64) (string, error) {
	class := className
	if class == "" {
		class = "their class"
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write short, encouraging report-card comments for teachers.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(
					"Write a two-sentence report comment for %s in %s. Scores: reading %.0f, writing %.0f, math %.0f.",
					studentName, class, reading, writing, math,
				),
			},
		},
	})
	if err != nil {
		return "", err
	}
	return firstChoice(resp)
}

// DescribeMedia produces a one-paragraph description of a session photo.
func (c *Client) DescribeMedia(ctx context.Context, mediaURL string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Describe this class session photo in one short paragraph for a class journal.",
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: mediaURL},
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
