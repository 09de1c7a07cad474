// Package processor runs one audio file through upload, analysis and
// enrichment, always cleaning up the uploaded object afterwards.
package processor

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/types"
)

// Mode says who owns the warehouse write for a processed file.
type Mode int

const (
	// ModeSingle updates metrics per file and leaves the insert to an
	// explicit confirmation.
	ModeSingle Mode = iota
	// ModeBatch leaves metrics and the bulk insert to the orchestrator.
	ModeBatch
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "single"
}

// Store is the object store side of the pipeline.
type Store interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Delete(ctx context.Context, ref string)
}

// Analyzer is the analysis side of the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, ref string) (types.AnalysisResult, error)
}

type Processor struct {
	store         Store
	analyzer      Analyzer
	metrics       *metrics.Recorder
	maxConcurrent int64
	log           *logger.Logger
}

func New(store Store, analyzer Analyzer, rec *metrics.Recorder, maxConcurrent int, log *logger.Logger) *Processor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Processor{
		store:         store,
		analyzer:      analyzer,
		metrics:       rec,
		maxConcurrent: int64(maxConcurrent),
		log:           log.Component("processor"),
	}
}

// MaxConcurrent is the limiter size used for fresh limiters.
func (p *Processor) MaxConcurrent() int64 {
	return p.maxConcurrent
}

// ProcessOne runs a single file under its own limiter in ModeSingle.
func (p *Processor) ProcessOne(ctx context.Context, path string) types.Outcome {
	return p.Process(ctx, path, semaphore.NewWeighted(p.maxConcurrent), ModeSingle)
}

// Process runs the pipeline for path while holding one limiter slot. The slot
// is released before the uploaded object is deleted.
func (p *Processor) Process(ctx context.Context, path string, limiter *semaphore.Weighted, mode Mode) types.Outcome {
	file := filepath.Base(path)
	log := p.log.WithFields(logrus.Fields{"file": file, "mode": mode.String()})

	if err := limiter.Acquire(ctx, 1); err != nil {
		return p.fail(log, file, eris.Wrap(err, "processor: acquire slot"), 0, mode)
	}

	var ref string
	defer func() {
		if ref != "" {
			p.store.Delete(context.WithoutCancel(ctx), ref)
		}
	}()
	defer limiter.Release(1)

	start := time.Now()
	log.Info("starting processing")

	var err error
	ref, err = p.store.Upload(ctx, path)
	if err != nil {
		return p.fail(log, file, err, elapsed(start), mode)
	}

	res, err := p.analyzer.Analyze(ctx, ref)
	if err != nil {
		return p.fail(log, file, err, elapsed(start), mode)
	}
	if res.HasError() {
		return p.fail(log, file, eris.Errorf("processor: model returned invalid data for %s", file), elapsed(start), mode)
	}

	rec := Enrich(res)
	rec.ProcessingTimeSec = elapsed(start)
	log.WithFields(logrus.Fields{
		"customer_id": rec.CustomerID,
		"time_sec":    rec.ProcessingTimeSec,
	}).Info("extracted call data")

	if mode == ModeSingle {
		p.metrics.RecordSingle(true, rec.ProcessingTimeSec)
		log.Info("skipping warehouse insert until confirmed")
	}
	return types.Success(file, rec)
}

func (p *Processor) fail(log *logrus.Entry, file string, err error, sec float64, mode Mode) types.Outcome {
	log.WithFields(logrus.Fields{"error": err.Error(), "time_sec": sec}).Error("processing failed")
	if mode == ModeSingle {
		p.metrics.RecordSingle(false, sec)
	}
	return types.Failure(file, err, sec)
}

// Enrich turns a model result into a complete record with a fresh customer id.
func Enrich(res types.AnalysisResult) types.CallRecord {
	return types.CallRecord{
		CustomerID:        GenerateCustomerID(),
		PhoneNumber:       NormalizePhone(res.PhoneNumber.Ptr()),
		Transcript:        res.Transcript.Value(),
		ComplaintType:     types.ParseComplaintType(res.ComplaintType.Value()),
		CustomerSentiment: types.ParseSentiment(res.CustomerSentiment.Value()),
		Resolved:          res.Resolved.Bool(),
	}
}

// NotFound is the model's placeholder for a missing phone number.
const NotFound = "Not Found"

// NormalizePhone maps absent, empty and "Not Found" to nil. Anything else is
// returned unchanged.
func NormalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	v := strings.TrimSpace(*phone)
	if v == "" || strings.EqualFold(v, NotFound) {
		return nil
	}
	out := *phone
	return &out
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCustomerID returns CUST- followed by five random uppercase
// alphanumerics. Uniqueness is not guaranteed.
func GenerateCustomerID() string {
	b := make([]byte, 5)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return "CUST-" + string(b)
}

func elapsed(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
