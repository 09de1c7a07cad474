// Package extractor submits stored recordings to the analysis model and
// decodes its answer into a types.AnalysisResult.
package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/retry"
	"call-insights-go/internal/types"
)

const DefaultModel = "gemini-2.5-flash"

// Gateway is the Analysis Gateway. Only rate-limit errors are retried.
type Gateway struct {
	model   Model
	modelID string
	exec    retry.Executor
	log     *logger.Logger
}

func NewGateway(model Model, modelID string, exec retry.Executor, log *logger.Logger) *Gateway {
	if modelID == "" {
		modelID = DefaultModel
	}
	return &Gateway{
		model:   model,
		modelID: modelID,
		exec:    exec.WithPolicy(retry.OnKinds(fault.RateLimited)),
		log:     log.Component("extractor"),
	}
}

// MIMEType picks the audio hint from the reference suffix.
func MIMEType(ref string) string {
	if strings.HasSuffix(strings.ToLower(ref), ".mp3") {
		return "audio/mpeg"
	}
	return "audio/wav"
}

// Analyze sends ref with the fixed prompt and decodes the first JSON object
// found in the reply.
func (g *Gateway) Analyze(ctx context.Context, ref string) (types.AnalysisResult, error) {
	parts := []Part{
		{FileURI: ref, MIMEType: MIMEType(ref)},
		{Text: Prompt},
	}

	text, err := retry.DoValue(ctx, g.exec, "extractor.analyze", func(ctx context.Context) (string, error) {
		return g.model.Generate(ctx, g.modelID, parts)
	})
	if err != nil {
		return types.AnalysisResult{}, eris.Wrapf(err, "extractor: analyze %s", ref)
	}

	log := g.log.WithField("ref", ref)

	raw, ok := ExtractJSON(strings.TrimSpace(text))
	if !ok {
		log.WithField("output", truncate(text, 200)).Warn("model output not in JSON format")
		return types.AnalysisResult{}, fault.ErrInvalidResponseFormat
	}

	var res types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		log.WithFields(logrus.Fields{"error": err.Error()}).Error("failed to parse model JSON")
		return types.AnalysisResult{}, fault.ErrMalformedJSON
	}

	log.Info("extracted call data")
	return res, nil
}

// ExtractJSON returns the span from the first '{' to the last '}'. It is a
// pattern match, not a parser: surrounding prose and code fences are ignored.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
