package types

type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailed  OutcomeStatus = "failed"
)

// Outcome is the terminal result of one file's pipeline run. Exactly one is
// produced per input file. On success Record is set; on failure Error is.
type Outcome struct {
	Status     OutcomeStatus `json:"status"`
	File       string        `json:"file"`
	Record     *CallRecord   `json:"record,omitempty"`
	Error      string        `json:"error,omitempty"`
	ElapsedSec float64       `json:"time_sec"`
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess && o.Record != nil
}

func Success(file string, rec CallRecord) Outcome {
	return Outcome{Status: StatusSuccess, File: file, Record: &rec, ElapsedSec: rec.ProcessingTimeSec}
}

func Failure(file string, err error, elapsedSec float64) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Status: StatusFailed, File: file, Error: msg, ElapsedSec: elapsedSec}
}

// BatchResult aggregates the outcomes of one batch run.
type BatchResult struct {
	BatchID      string      `json:"batch_id,omitempty"`
	TotalFiles   int         `json:"total_files"`
	Inserted     int         `json:"inserted"`
	Failed       int         `json:"failed"`
	TotalTimeSec float64     `json:"total_time_sec"`
	Committed    bool        `json:"committed"`
	InsertError  string      `json:"insert_error,omitempty"`
	Insight      *Insight    `json:"insight,omitempty"`
	Action       *ActionCard `json:"action_card,omitempty"`
	Results      []Outcome   `json:"results"`
}

// Successes returns the successful outcomes' records in outcome order.
func (b BatchResult) Successes() []CallRecord {
	var out []CallRecord
	for _, o := range b.Results {
		if o.Succeeded() {
			out = append(out, *o.Record)
		}
	}
	return out
}

// Insight summarises the successful records of a batch.
type Insight struct {
	Records          int                       `json:"records"`
	ComplaintCounts  map[ComplaintType]int     `json:"complaint_counts"`
	SentimentCounts  map[Sentiment]int         `json:"sentiment_counts"`
	ResolvedRate     float64                   `json:"resolved_rate"`
	UnresolvedByType map[ComplaintType]float64 `json:"unresolved_rate_by_complaint"`
	PhoneCaptureRate float64                   `json:"phone_capture_rate"`
}

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}
