package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/hlshorts/internal/domain/clipmeta"
	"github.com/forPelevin/hlshorts/internal/logging"
	"github.com/forPelevin/hlshorts/internal/types"
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     *slog.Logger
}

const (
	defaultModel   = "z-ai/glm-4.5-air:free"
	defaultTimeout = 90 * time.Second
	// promptTextRunes bounds the transcript text sent per segment.
	promptTextRunes = 1200
)

func New(apiKey, model, baseURL string, timeout time.Duration, log *slog.Logger) *Adapter {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log = logging.OrNop(log)
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		timeout: timeout,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     log.With("component", "openrouter"),
	}
}

type segmentPrompt struct {
	Idx      int     `json:"idx"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

type annotation struct {
	Idx     int      `json:"idx"`
	Title   string   `json:"title"`
	Caption string   `json:"caption"`
	Tags    []string `json:"tags"`
}

// Annotate returns one metadata entry per segment. Transport and status
// failures are returned as errors; an unusable model answer degrades to
// metadata derived from the segment text.
func (a *Adapter) Annotate(ctx context.Context, segs []types.Segment) ([]types.ClipMeta, error) {
	if len(segs) == 0 {
		return nil, nil
	}

	arr := make([]segmentPrompt, 0, len(segs))
	for i, s := range segs {
		arr = append(arr, segmentPrompt{Idx: i, StartSec: s.Start, EndSec: s.End, Text: truncate(s.Text, promptTextRunes)})
	}
	pb, err := json.Marshal(map[string]any{"segments": arr})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	content, err := a.complete(ctx, buildPrompt(pb))
	if err != nil {
		return nil, err
	}

	got, err := parseAnnotations(content)
	if err != nil {
		a.log.Warn("unusable model answer, using text metadata", "error", err)
	}
	return mergeAnnotations(segs, got), nil
}

func (a *Adapter) complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "hlshorts_annotate",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"clips": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"idx":     map[string]any{"type": "integer"},
									"title":   map[string]any{"type": "string"},
									"caption": map[string]any{"type": "string"},
									"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								},
								"required": []string{"idx", "title", "caption", "tags"},
							},
						},
					},
					"required": []string{"clips"},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", a.timeout, a.model)
		}
		return "", fmt.Errorf("openrouter request: %s", redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("openrouter decode: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", nil
	}
	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", nil
	}
	return content, nil
}

func buildPrompt(segsJSON []byte) string {
	return "Write publishing metadata for each short video clip below. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema, with one entry per idx. " +
		"Title: at most 8 words, hooky, in the language of the text. " +
		"Caption: one or two sentences for the post. " +
		"Tags: 3 to 5 lowercase topic words without '#'." +
		"\n\nSegments JSON:\n" + string(segsJSON)
}

func parseAnnotations(content string) ([]annotation, error) {
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}
	var out struct {
		Clips []annotation `json:"clips"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("openrouter: decode annotations: %w", err)
	}
	return out.Clips, nil
}

// mergeAnnotations aligns model answers to segments by idx. Missing, out of
// range or duplicate entries are filled from the segment text.
func mergeAnnotations(segs []types.Segment, got []annotation) []types.ClipMeta {
	out := make([]types.ClipMeta, len(segs))
	seen := make([]bool, len(segs))
	for _, an := range got {
		if an.Idx < 0 || an.Idx >= len(segs) || seen[an.Idx] {
			continue
		}
		seen[an.Idx] = true
		out[an.Idx] = types.ClipMeta{Title: an.Title, Caption: an.Caption, Tags: cleanTags(an.Tags)}
	}
	for i := range out {
		out[i] = clipmeta.Complete(out[i], segs[i])
	}
	return out
}

func cleanTags(tags []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
