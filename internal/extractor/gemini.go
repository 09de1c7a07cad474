package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Part is one element of a generate request: either a stored file reference
// or a text instruction.
type Part struct {
	FileURI  string
	MIMEType string
	Text     string
}

// Model turns a prompt plus file references into free-form text.
type Model interface {
	Generate(ctx context.Context, model string, parts []Part) (string, error)
}

type GeminiOptions struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewGeminiClient(opts GeminiOptions, log *logger.Logger) *GeminiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, opts.Burst),
		log:     log.Component("gemini-client"),
	}
}

type fileData struct {
	MIMEType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type geminiPart struct {
	FileData *fileData `json:"fileData,omitempty"`
	Text     string    `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) Generate(ctx context.Context, model string, parts []Part) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req := generateRequest{Contents: []geminiContent{{Role: "user"}}}
	for _, p := range parts {
		if p.FileURI != "" {
			req.Contents[0].Parts = append(req.Contents[0].Parts, geminiPart{FileData: &fileData{MIMEType: p.MIMEType, FileURI: p.FileURI}})
			continue
		}
		req.Contents[0].Parts = append(req.Contents[0].Parts, geminiPart{Text: p.Text})
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", eris.Wrap(err, "gemini: marshal request")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", eris.Wrap(err, "gemini: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.WithError(err).Warn("gemini request failed")
		return "", fault.New(fault.Transient, "gemini.generate", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.New(fault.Transient, "gemini.generate", eris.Wrap(err, "gemini: read body"))
	}
	c.log.WithField("http_status", resp.StatusCode).Debug("gemini raw response received")

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, body)
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fault.New(fault.InvalidResponse, "gemini.generate", eris.Wrap(err, "gemini: decode response"))
	}
	if len(out.Candidates) == 0 {
		return "", fault.New(fault.InvalidResponse, "gemini.generate", eris.New("gemini: no candidates in response"))
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func classifyStatus(code int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	msg := ae.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	err := eris.Errorf("gemini: status %d %s: %s", code, ae.Error.Status, msg)

	switch {
	case code == http.StatusTooManyRequests || ae.Error.Status == "RESOURCE_EXHAUSTED":
		return fault.New(fault.RateLimited, "gemini.generate", err)
	case code >= 500:
		return fault.New(fault.Transient, "gemini.generate", err)
	default:
		return fault.New(fault.Unknown, "gemini.generate", err)
	}
}
