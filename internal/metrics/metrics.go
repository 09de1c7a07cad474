// Package metrics keeps the process-wide processing counters. They live in
// memory only and are lost on restart.
package metrics

import (
	"math"
	"sync"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalFiles        int     `json:"total_files_processed"`
	SuccessCount      int     `json:"success_count"`
	FailedCount       int     `json:"failed_count"`
	AvgTimePerFileSec float64 `json:"avg_time_per_file_sec"`
	LastBatchTimeSec  float64 `json:"last_batch_time_sec"`
	TotalRuntimeSec   float64 `json:"total_runtime_sec"`
	UptimeHours       float64 `json:"uptime_hours"`
}

// Recorder is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex
	s  Snapshot
}

func New() *Recorder {
	return &Recorder{}
}

// RecordSingle accounts for one file processed outside a batch. The running
// average covers every counted file, failed ones included.
func (r *Recorder) RecordSingle(success bool, sec float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.s.TotalFiles++
	if success {
		r.s.SuccessCount++
	} else {
		r.s.FailedCount++
	}
	r.s.AvgTimePerFileSec = round2((r.s.AvgTimePerFileSec*float64(r.s.TotalFiles-1) + sec) / float64(r.s.TotalFiles))
	r.s.TotalRuntimeSec += sec
}

// RecordBatch accounts for a whole batch at once. The batch's wall time is
// folded into the average as a single contribution.
func (r *Recorder) RecordBatch(files, succeeded, failed int, sec float64) {
	if files <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.s.TotalFiles += files
	r.s.SuccessCount += succeeded
	r.s.FailedCount += failed
	r.s.LastBatchTimeSec = round2(sec)
	r.s.AvgTimePerFileSec = round2((r.s.AvgTimePerFileSec*float64(r.s.TotalFiles-files) + sec) / float64(r.s.TotalFiles))
	r.s.TotalRuntimeSec += sec
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.s
	s.TotalRuntimeSec = round2(s.TotalRuntimeSec)
	s.UptimeHours = round2(r.s.TotalRuntimeSec / 3600)
	return s
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = Snapshot{}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
