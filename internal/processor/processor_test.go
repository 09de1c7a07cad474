package processor

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/types"
)

type fakeStore struct {
	mu        sync.Mutex
	uploadErr error
	deleted   []string
	onDelete  func()
}

func (f *fakeStore) Upload(_ context.Context, path string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "gs://bucket/calls/" + path, nil
}

func (f *fakeStore) Delete(_ context.Context, ref string) {
	if f.onDelete != nil {
		f.onDelete()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
}

type fakeAnalyzer struct {
	res types.AnalysisResult
	err error
}

func (f *fakeAnalyzer) Analyze(context.Context, string) (types.AnalysisResult, error) {
	return f.res, f.err
}

func strPtr(s string) *string { return &s }

func goodResult() types.AnalysisResult {
	return types.AnalysisResult{
		Transcript:        types.TextOf("Customer: my recharge failed"),
		PhoneNumber:       types.TextOf("9876543210"),
		ComplaintType:     types.TextOf("Recharge Issue"),
		CustomerSentiment: types.TextOf("Negative"),
		Resolved:          types.TruthyOf(true),
	}
}

var idPattern = regexp.MustCompile(`^CUST-[A-Z0-9]{5}$`)

func TestProcessOne_Success(t *testing.T) {
	store := &fakeStore{}
	rec := metrics.New()
	p := New(store, &fakeAnalyzer{res: goodResult()}, rec, 9, logger.Discard())

	out := p.ProcessOne(context.Background(), "/tmp/audio/a.wav")

	require.True(t, out.Succeeded(), out.Error)
	assert.Equal(t, "a.wav", out.File)
	assert.Regexp(t, idPattern, out.Record.CustomerID)
	assert.Equal(t, "9876543210", *out.Record.PhoneNumber)
	assert.Equal(t, types.ComplaintRecharge, out.Record.ComplaintType)
	assert.Equal(t, types.SentimentNegative, out.Record.CustomerSentiment)
	assert.True(t, out.Record.Resolved)
	assert.Equal(t, []string{"gs://bucket/calls//tmp/audio/a.wav"}, store.deleted)

	s := rec.Snapshot()
	assert.Equal(t, 1, s.TotalFiles)
	assert.Equal(t, 1, s.SuccessCount)
}

func TestProcess_AnalysisFailureStillCleansUp(t *testing.T) {
	store := &fakeStore{}
	rec := metrics.New()
	p := New(store, &fakeAnalyzer{err: fault.ErrInvalidResponseFormat}, rec, 9, logger.Discard())

	out := p.ProcessOne(context.Background(), "b.wav")

	assert.False(t, out.Succeeded())
	assert.Equal(t, types.StatusFailed, out.Status)
	assert.NotEmpty(t, out.Error)
	assert.Nil(t, out.Record)
	assert.Len(t, store.deleted, 1)
	assert.Equal(t, 1, rec.Snapshot().FailedCount)
}

func TestProcess_ModelErrorIndicatorFails(t *testing.T) {
	store := &fakeStore{}
	res := goodResult()
	res.Error = []byte(`"Invalid Gemini response"`)
	p := New(store, &fakeAnalyzer{res: res}, metrics.New(), 9, logger.Discard())

	out := p.ProcessOne(context.Background(), "c.wav")

	assert.False(t, out.Succeeded())
	assert.Contains(t, out.Error, "invalid data for c.wav")
	assert.Len(t, store.deleted, 1)
}

func TestProcess_UploadFailureSkipsCleanup(t *testing.T) {
	store := &fakeStore{uploadErr: errors.New("upload exhausted")}
	p := New(store, &fakeAnalyzer{res: goodResult()}, metrics.New(), 9, logger.Discard())

	out := p.ProcessOne(context.Background(), "d.wav")

	assert.False(t, out.Succeeded())
	assert.Equal(t, "upload exhausted", out.Error)
	assert.Empty(t, store.deleted)
}

func TestProcess_BatchModeLeavesMetricsAlone(t *testing.T) {
	rec := metrics.New()
	p := New(&fakeStore{}, &fakeAnalyzer{res: goodResult()}, rec, 9, logger.Discard())
	limiter := semaphore.NewWeighted(2)

	ok := p.Process(context.Background(), "e.wav", limiter, ModeBatch)
	bad := New(&fakeStore{uploadErr: errors.New("x")}, &fakeAnalyzer{}, rec, 9, logger.Discard()).
		Process(context.Background(), "f.wav", limiter, ModeBatch)

	assert.True(t, ok.Succeeded())
	assert.False(t, bad.Succeeded())
	assert.Equal(t, metrics.Snapshot{}, rec.Snapshot())
}

func TestProcess_ReleasesSlotBeforeCleanup(t *testing.T) {
	limiter := semaphore.NewWeighted(1)
	var slotFreeDuringCleanup bool
	store := &fakeStore{}
	store.onDelete = func() {
		slotFreeDuringCleanup = limiter.TryAcquire(1)
		if slotFreeDuringCleanup {
			limiter.Release(1)
		}
	}
	p := New(store, &fakeAnalyzer{res: goodResult()}, metrics.New(), 1, logger.Discard())

	out := p.Process(context.Background(), "g.wav", limiter, ModeBatch)

	require.True(t, out.Succeeded())
	assert.True(t, slotFreeDuringCleanup)
	assert.True(t, limiter.TryAcquire(1), "slot must be released after the run")
}

func TestProcess_CancelledBeforeSlot(t *testing.T) {
	limiter := semaphore.NewWeighted(1)
	require.True(t, limiter.TryAcquire(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeStore{}
	out := New(store, &fakeAnalyzer{}, metrics.New(), 1, logger.Discard()).
		Process(ctx, "h.wav", limiter, ModeBatch)

	assert.False(t, out.Succeeded())
	assert.Empty(t, store.deleted)
}

func TestEnrich_Defaults(t *testing.T) {
	rec := Enrich(types.AnalysisResult{})

	assert.Regexp(t, idPattern, rec.CustomerID)
	assert.Nil(t, rec.PhoneNumber)
	assert.Equal(t, "", rec.Transcript)
	assert.Equal(t, types.ComplaintOthers, rec.ComplaintType)
	assert.Equal(t, types.SentimentNeutral, rec.CustomerSentiment)
	assert.False(t, rec.Resolved)
}

func TestNormalizePhone(t *testing.T) {
	assert.Nil(t, NormalizePhone(nil))
	assert.Nil(t, NormalizePhone(strPtr("")))
	assert.Nil(t, NormalizePhone(strPtr("Not Found")))
	assert.Nil(t, NormalizePhone(strPtr("not found ")))

	for _, keep := range []string{"9876543210", "+91 98765 43210", "unknown"} {
		got := NormalizePhone(strPtr(keep))
		require.NotNil(t, got)
		assert.Equal(t, keep, *got)
	}
}

func TestGenerateCustomerID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id := GenerateCustomerID()
		assert.Regexp(t, idPattern, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 150)
}
