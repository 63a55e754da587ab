package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// TextCompleter produces a text completion for a prompt. All AI consumers in
// the automation pipeline depend on this interface so tests can substitute a
// canned completer.
type TextCompleter interface {
	Complete(prompt string, maxTokens int, timeout time.Duration) (string, error)
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GeminiClient calls the Gemini generateContent REST API. It satisfies
// TextCompleter.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	retries int
}

// NewGeminiClient builds a client for the given model ("gemini-1.5-flash"
// when model is empty).
func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1/models",
		client:  &http.Client{},
		retries: 2,
	}
}

// Complete sends the prompt and returns the first candidate's text. Transient
// failures (network, 429, 5xx) are retried with a short backoff.
func (g *GeminiClient) Complete(prompt string, maxTokens int, timeout time.Duration) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	requestBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{MaxOutputTokens: maxTokens, Temperature: 0.2},
	}
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
			log.Printf("Gemini retry %d/%d after error: %v", attempt, g.retries, lastErr)
		}

		text, retryable, err := g.doRequest(url, jsonBody, timeout)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", lastErr
}

func (g *GeminiClient) doRequest(url string, body []byte, timeout time.Duration) (string, bool, error) {
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.client
	if timeout > 0 {
		client = &http.Client{Timeout: timeout, Transport: g.client.Transport}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var gemResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gemResp); err != nil {
		return "", false, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("no candidates returned")
	}
	return gemResp.Candidates[0].Content.Parts[0].Text, false, nil
}
