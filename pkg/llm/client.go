// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"amazing-kissan-go/internal/config"
	"amazing-kissan-go/pkg/log"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for a chat-completion responder.
type Client interface {
	// Complete 依次尝试配置中的候选模型，返回第一个成功的回答以及产生它的模型 ID。
	// 所有模型都失败时返回错误，由调用方决定兜底行为。
	Complete(ctx context.Context, messages []Message) (answer string, modelID string, err error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client from the configuration.
func NewClient(cfg config.LLMConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 30 * time.Second
	}
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete calls the chat completions API, falling back through the model list.
func (c *openAIClient) Complete(ctx context.Context, messages []Message) (string, string, error) {
	if len(c.cfg.Models) == 0 {
		return "", "", errors.New("no candidate models configured")
	}

	var lastErr error
	for _, model := range c.cfg.Models {
		answer, err := c.completeWithModel(ctx, model, messages)
		if err != nil {
			log.Warnf("模型 '%s' 调用失败，尝试下一个: %v", model, err)
			lastErr = err
			continue
		}
		return answer, model, nil
	}
	return "", "", fmt.Errorf("all candidate models failed: %w", lastErr)
}

func (c *openAIClient) completeWithModel(ctx context.Context, model string, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
