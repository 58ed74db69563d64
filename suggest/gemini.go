package suggest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	DefaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiMaxRetries     = 3
	geminiInitDelay      = 500 * time.Millisecond
)

// Prompt builds the instruction sent to the model.
func Prompt(titles []string) string {
	if len(titles) == 0 {
		return "Suggest 3 general productive tasks to start my day."
	}
	return fmt.Sprintf("Based on these current tasks: \"%s\", suggest 3 new productive and relevant tasks for today.", strings.Join(titles, ", "))
}

// Gemini calls the generateContent endpoint and expects a JSON array of
// strings back.
type Gemini struct {
	apiKey    string
	model     string
	baseURL   string
	client    *http.Client
	initDelay time.Duration
}

func NewGemini(apiKey, model, baseURL string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 60 * time.Second},
		initDelay: geminiInitDelay,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiSchema struct {
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Items       *geminiSchema `json:"items,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string       `json:"responseMimeType"`
		ResponseSchema   geminiSchema `json:"responseSchema"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Suggest(ctx context.Context, titles []string) ([]string, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	var req geminiRequest
	req.Contents = []geminiContent{{Parts: []geminiPart{{Text: Prompt(titles)}}}}
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.ResponseSchema = geminiSchema{
		Type:  "ARRAY",
		Items: &geminiSchema{Type: "STRING", Description: "A short, actionable task description."},
	}
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)

	var lastErr error
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * g.initDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("x-goog-api-key", g.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		// Only attempts that never reached the model are retried, so a
		// request costs at most one inference call.
		resp, err := g.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			if notDelivered(err) {
				continue
			}
			return nil, lastErr
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(respBody))
			if resp.StatusCode == http.StatusTooManyRequests {
				continue
			}
			return nil, lastErr
		}

		var apiResp geminiResponse
		if err := sonic.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
			return []string{}, nil
		}
		return parseTitles(apiResp.Candidates[0].Content.Parts[0].Text)
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", geminiMaxRetries, lastErr)
}

// notDelivered reports whether a transport error happened before the request
// left the process, i.e. while dialing.
func notDelivered(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// parseTitles decodes the model output, tolerating markdown code fences.
func parseTitles(text string) ([]string, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return []string{}, nil
	}
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		}
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var titles []string
	if err := sonic.UnmarshalString(cleaned, &titles); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w (raw: %s)", err, text)
	}
	return titles, nil
}
