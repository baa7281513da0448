// Package gemini is a minimal client for the Gemini generateContent
// API, covering exactly what the assistant needs: tool-calling chat
// completions and audio transcription.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/logging"
)

const baseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client talks to the Gemini API.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a Gemini client for the given model.
func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateContent sends the conversation history plus tool
// declarations and returns the model's reply.
func (c *Client) GenerateContent(ctx context.Context, system string, history []Content, tools []FunctionDeclaration) (*Response, error) {
	req := generateRequest{Contents: history}
	if system != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	if len(tools) > 0 {
		req.Tools = []toolSet{{FunctionDeclarations: tools}}
	}

	var resp generateResponse
	if err := c.post(ctx, fmt.Sprintf("/models/%s:generateContent", c.model), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	return &Response{Candidates: resp.Candidates}, nil
}

// Transcribe sends audio bytes and asks the model for a verbatim
// transcription.
func (c *Client) Transcribe(ctx context.Context, mimeType string, audio []byte) (string, error) {
	req := generateRequest{
		Contents: []Content{{
			Role: "user",
			Parts: []Part{
				{Text: "Transcribe this audio verbatim. Return only the transcribed text."},
				{InlineData: &InlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
	}

	var resp generateResponse
	if err := c.post(ctx, fmt.Sprintf("/models/%s:generateContent", c.model), req, &resp); err != nil {
		return "", err
	}
	r := Response{Candidates: resp.Candidates}
	text := r.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty transcription")
	}
	return text, nil
}

// post makes an authenticated request to the Gemini API.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	logging.Debug("gemini", "POST %s (%d bytes)", path, len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp generateResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			return fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
