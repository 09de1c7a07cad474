// Package pipeline fans a batch of audio files out to the file pipeline under
// one shared concurrency limit and writes the successes in a single insert.
package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"call-insights-go/internal/actionable"
	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/types"
)

// FileProcessor is the per-file pipeline.
type FileProcessor interface {
	Process(ctx context.Context, path string, limiter *semaphore.Weighted, mode processor.Mode) types.Outcome
	MaxConcurrent() int64
}

// BatchInserter performs the single bulk write at the end of a batch.
type BatchInserter interface {
	InsertBatch(ctx context.Context, rows []types.WarehouseRow) (int, error)
}

type Orchestrator struct {
	proc    FileProcessor
	wh      BatchInserter
	metrics *metrics.Recorder
	log     *logger.Logger
}

func New(proc FileProcessor, wh BatchInserter, rec *metrics.Recorder, log *logger.Logger) *Orchestrator {
	return &Orchestrator{proc: proc, wh: wh, metrics: rec, log: log.Component("batch")}
}

// RunBatch processes every path and waits for all of them; one file failing
// never stops the others. The returned error is non-nil only when the bulk
// insert failed, in which case the result is complete but not committed.
func (o *Orchestrator) RunBatch(ctx context.Context, paths []string) (types.BatchResult, error) {
	if len(paths) == 0 {
		o.log.Warn("no files to process")
		return types.BatchResult{Committed: true, Results: []types.Outcome{}}, nil
	}

	batchID := uuid.NewString()
	log := o.log.WithFields(logrus.Fields{"batch_id": batchID, "files": len(paths)})
	log.WithField("max_concurrent", o.proc.MaxConcurrent()).Info("starting batch")

	start := time.Now()
	limiter := semaphore.NewWeighted(o.proc.MaxConcurrent())
	outcomes := make([]types.Outcome, len(paths))

	// Process never fails; each outcome carries its own error.
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Go(func() {
			outcomes[i] = o.proc.Process(ctx, p, limiter, processor.ModeBatch)
		})
	}
	wg.Wait()

	res := types.BatchResult{
		BatchID:    batchID,
		TotalFiles: len(paths),
		Results:    outcomes,
	}
	records := res.Successes()
	res.Failed = len(paths) - len(records)

	rows := make([]types.WarehouseRow, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}

	var insertErr error
	if len(rows) > 0 {
		n, err := o.wh.InsertBatch(ctx, rows)
		if err != nil {
			insertErr = err
			res.InsertError = err.Error()
			log.WithError(err).Error("bulk insert failed; batch processed but not committed")
		} else {
			res.Inserted = n
		}
	}
	res.Committed = insertErr == nil

	insight := aggregator.Summarize(records)
	card := actionable.Generate(insight)
	res.Insight = &insight
	res.Action = &card

	res.TotalTimeSec = math.Round(time.Since(start).Seconds()*100) / 100
	o.metrics.RecordBatch(res.TotalFiles, len(records), res.Failed, res.TotalTimeSec)

	log.WithFields(logrus.Fields{
		"inserted": res.Inserted,
		"failed":   res.Failed,
		"time_sec": res.TotalTimeSec,
	}).Info("batch complete")

	if insertErr != nil {
		return res, eris.Wrap(insertErr, "pipeline: bulk insert")
	}
	return res, nil
}

// IsAudioFile reports whether name has a .wav or .mp3 extension.
func IsAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}

// ListAudioFiles returns the audio files directly inside dir, sorted by name.
func ListAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsAudioFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
