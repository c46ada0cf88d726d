// Package provider implements investigate.Provider against the
// Anthropic Messages API: the concrete seam behind the Investigation
// Orchestrator's LLM call.
//
// The corpus carries no official Anthropic Go client (mcp-go is a
// protocol library, not an LLM client), so this package talks to the
// API directly over net/http — the same choice internal/telemetry
// already makes for its HTTP server, and the only option with no
// ecosystem library standing in front of it.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fractalops/uatu/internal/model"
)

const apiURL = "https://api.anthropic.com/v1/messages"
const apiVersion = "2023-06-01"

// systemPrompt frames every investigation, grounded on
// original_source/uatu/watcher/investigator.py's Investigator system
// prompt.
const systemPrompt = `You are Uatu, The Watcher - investigating a system anomaly.

Your task:
1. Understand what anomaly was detected
2. Determine the likely root cause from the system state provided
3. Provide actionable recommendations

Be concise but thorough. Focus on:
- Why this happened
- What's the impact
- How to fix it
- How to prevent it

Format your response in markdown with clear sections.`

// AnthropicProvider implements investigate.Provider via a single,
// non-streaming Messages API call per investigation. Unlike the
// original's multi-turn agent loop (which lets the model call
// read-only system-inspection tools mid-investigation), this provider
// sends one enriched prompt built from the event and a point-in-time
// Snapshot — the tool-use loop's context is folded directly into the
// prompt rather than replayed live.
type AnthropicProvider struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// New constructs an AnthropicProvider. apiKey is typically sourced
// from the ANTHROPIC_API_KEY environment variable by the caller.
func New(apiKey, modelName string, maxTokens int, temperature float64) *AnthropicProvider {
	return &AnthropicProvider{
		httpClient:  &http.Client{Timeout: 110 * time.Second},
		baseURL:     apiURL,
		apiKey:      apiKey,
		model:       modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// apiURLOverride points the provider at a different endpoint, for
// tests substituting an httptest.Server.
func (p *AnthropicProvider) apiURLOverride(url string) {
	p.baseURL = url
}

type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	System      string           `json:"system"`
	Messages    []messagePayload `json:"messages"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Investigate sends the event and snapshot to the configured model and
// returns its markdown analysis. Satisfies investigate.Provider.
func (p *AnthropicProvider) Investigate(ctx context.Context, event model.AnomalyEvent, snap model.Snapshot) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("provider: no API key configured")
	}

	reqBody := messagesRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		System:      systemPrompt,
		Messages: []messagePayload{
			{Role: "user", Content: buildPrompt(event, snap)},
		},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("provider: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("provider: read response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("provider: parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider: api error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider: unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("provider: empty response content")
	}

	return parsed.Content[0].Text, nil
}

// buildPrompt renders the investigation prompt, grounded on
// investigator.py's investigation_prompt f-string (event summary plus
// current system state).
func buildPrompt(event model.AnomalyEvent, snap model.Snapshot) string {
	details, _ := json.MarshalIndent(event.Details, "", "  ")
	return fmt.Sprintf(`I detected this system anomaly:

**Event**: %s
**Type**: %s
**Severity**: %s
**Time**: %s

**Details**:
%s

**System State**:
- CPU: %.1f%%
- Memory: %.1f%% (%.0fMB / %.0fMB)
- Load: %.2f
- Processes: %d

Please investigate this anomaly and provide your analysis.`,
		event.Message,
		event.Type.String(),
		event.Severity.String(),
		event.Timestamp.Format("2006-01-02 15:04:05"),
		string(details),
		snap.CPUPercent,
		snap.MemoryPercent, snap.MemoryUsedMB, snap.MemoryTotalMB,
		snap.Load1Min,
		snap.ProcessCount,
	)
}
