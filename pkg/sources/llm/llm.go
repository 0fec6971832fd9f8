// Package llm treats an OpenAI-compatible chat model as just another source:
// useful when no site answers, but the least trustworthy contributor, so its
// confidence sits below every scraped source.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hwlore/hwlore/pkg/device"
	"github.com/hwlore/hwlore/pkg/sources"
)

const (
	sourceName = "llm"

	defaultModel    = "gpt-4.1-mini"
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"

	// Model recall is unverifiable; keep it below every scraped source.
	confidence = 0.6
)

const systemPrompt = `You are a hardware specification database. Given a device type, manufacturer and model, respond with a single JSON object:
{"specs": {"<label>": "<value>", ...}, "description": "<one paragraph>", "release_date": "<YYYY or YYYY-MM>"}
Only include specifications you are certain of. Respond with JSON only.`

// Config controls the LLM source. An empty APIKey disables it.
type Config struct {
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

type Source struct {
	apiKey   string
	model    string
	endpoint string
	client   httpClient
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func New(cfg Config) (*Source, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm source requires an API key (set llm.api_key in config or OPENAI_API_KEY)")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	return &Source{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   client,
	}, nil
}

func (s *Source) Name() string  { return sourceName }
func (s *Source) Priority() int { return 90 }

func (s *Source) Supports(t device.Type, id device.Identifier) bool {
	return strings.TrimSpace(id.Model) != ""
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

func (s *Source) Fetch(ctx context.Context, t device.Type, id device.Identifier) (*device.PartialInfo, error) {
	userPayload, err := json.Marshal(map[string]string{
		"type":         string(t),
		"manufacturer": id.Manufacturer,
		"model":        id.Model,
	})
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "fetch", err)
	}

	reqBody := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userPayload)},
		},
		Temperature:    0.1,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "fetch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "fetch", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "fetch", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "fetch", err)
	}
	if resp.StatusCode >= 300 {
		return nil, sources.NewSourceError(sourceName, "fetch", fmt.Errorf("llm endpoint returned status %d", resp.StatusCode))
	}

	content := gjson.GetBytes(respBytes, "choices.0.message.content").Str
	if content == "" {
		return nil, sources.NewSourceError(sourceName, "parse", errors.New("empty completion"))
	}
	if !gjson.Valid(content) {
		return nil, sources.NewSourceError(sourceName, "parse", errors.New("completion is not valid JSON"))
	}

	info := &device.PartialInfo{
		Specs:       make(map[string]string),
		Confidence:  confidence,
		SourceName:  sourceName,
		Description: strings.TrimSpace(gjson.Get(content, "description").Str),
		ReleaseDate: strings.TrimSpace(gjson.Get(content, "release_date").Str),
	}
	gjson.Get(content, "specs").ForEach(func(k, v gjson.Result) bool {
		if k.Str != "" && v.Str != "" {
			info.Specs[k.Str] = v.Str
		}
		return true
	})

	return info, nil
}
