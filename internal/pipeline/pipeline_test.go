package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/extractor"
	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/objectstore"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/retry"
	"call-insights-go/internal/types"
)

type noWaitTimer struct{ c chan time.Time }

func (t *noWaitTimer) Start(time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}
func (t *noWaitTimer) Stop()               {}
func (t *noWaitTimer) C() <-chan time.Time { return t.c }

func testExec() retry.Executor {
	e := retry.New(2, time.Second, logger.Discard())
	e.NewTimer = func() backoff.Timer { return &noWaitTimer{} }
	return e
}

// memStore fails every Put whose key contains failOn.
type memStore struct {
	mu      sync.Mutex
	failOn  string
	puts    map[string]int
	deletes map[string]int
}

func newMemStore(failOn string) *memStore {
	return &memStore{failOn: failOn, puts: map[string]int{}, deletes: map[string]int{}}
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[key]++
	if s.failOn != "" && strings.Contains(key, s.failOn) {
		return "", fault.New(fault.Transient, "objectstore.put", errors.New("503 backend error"))
	}
	return "gs://bucket/" + key, nil
}

func (s *memStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes[ref]++
	return nil
}

// fileModel answers per reference suffix and tracks concurrent calls.
type fileModel struct {
	answers  map[string]string
	delay    time.Duration
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
}

func (m *fileModel) Generate(_ context.Context, _ string, parts []extractor.Part) (string, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	ref := parts[0].FileURI
	for suffix, answer := range m.answers {
		if strings.HasSuffix(ref, suffix) {
			return answer, nil
		}
	}
	return `{"transcript":"ok","complaint_type":"Others","customer_sentiment":"Neutral","resolved":false}`, nil
}

type fakeInserter struct {
	mu    sync.Mutex
	err   error
	calls [][]types.WarehouseRow
}

func (f *fakeInserter) InsertBatch(_ context.Context, rows []types.WarehouseRow) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rows)
	if f.err != nil {
		return 0, f.err
	}
	return len(rows), nil
}

type harness struct {
	store    *memStore
	model    *fileModel
	inserter *fakeInserter
	metrics  *metrics.Recorder
	orch     *Orchestrator
}

func newHarness(store *memStore, model *fileModel, inserter *fakeInserter, maxConcurrent int) *harness {
	log := logger.Discard()
	rec := metrics.New()
	proc := processor.New(
		objectstore.NewGateway(store, "calls", testExec(), log),
		extractor.NewGateway(model, "", testExec(), log),
		rec, maxConcurrent, log,
	)
	return &harness{
		store:    store,
		model:    model,
		inserter: inserter,
		metrics:  rec,
		orch:     New(proc, inserter, rec, log),
	}
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(paths[i], []byte("RIFF"), 0o644))
	}
	return paths
}

func TestRunBatch_Empty(t *testing.T) {
	h := newHarness(newMemStore(""), &fileModel{}, &fakeInserter{}, 9)

	res, err := h.orch.RunBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, res.TotalFiles)
	assert.Zero(t, res.Inserted)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Results)
	assert.Empty(t, h.store.puts)
	assert.Zero(t, h.model.calls.Load())
	assert.Empty(t, h.inserter.calls)
	assert.Equal(t, metrics.Snapshot{}, h.metrics.Snapshot())
}

func TestRunBatch_PartialFailures(t *testing.T) {
	paths := writeFiles(t, "a.wav", "b.wav", "c.wav")
	model := &fileModel{answers: map[string]string{
		"a.wav": `{"transcript":"Customer: payment stuck","phone_number":"Not Found","complaint_type":"Payment Issue","customer_sentiment":"Negative","resolved":"false"}`,
		"b.wav": "Sorry, I cannot process this audio.",
	}}
	h := newHarness(newMemStore("c.wav"), model, &fakeInserter{}, 9)

	res, err := h.orch.RunBatch(context.Background(), paths)

	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFiles)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Inserted)
	assert.True(t, res.Committed)
	require.Len(t, res.Results, 3)

	successes := res.Successes()
	require.Len(t, successes, 1)
	assert.Equal(t, types.ComplaintPayment, successes[0].ComplaintType)
	assert.Nil(t, successes[0].PhoneNumber)

	require.Len(t, h.inserter.calls, 1)
	require.Len(t, h.inserter.calls[0], 1)
	assert.Equal(t, successes[0].CustomerID, h.inserter.calls[0][0].CustomerID)

	// c.wav exhausted its upload retries and was never analysed or deleted.
	assert.Equal(t, 3, h.store.puts["calls/c.wav"])
	assert.Equal(t, 1, h.store.deletes["gs://bucket/calls/a.wav"])
	assert.Equal(t, 1, h.store.deletes["gs://bucket/calls/b.wav"])
	assert.Zero(t, h.store.deletes["gs://bucket/calls/c.wav"])

	for _, o := range res.Results {
		if o.File == "b.wav" || o.File == "c.wav" {
			assert.Equal(t, types.StatusFailed, o.Status)
			assert.NotEmpty(t, o.Error)
		}
	}

	s := h.metrics.Snapshot()
	assert.Equal(t, 3, s.TotalFiles)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, 2, s.FailedCount)

	require.NotNil(t, res.Insight)
	assert.Equal(t, 1, res.Insight.Records)
	require.NotNil(t, res.Action)
}

func TestRunBatch_ConcurrencyBound(t *testing.T) {
	names := make([]string, 12)
	for i := range names {
		names[i] = string(rune('a'+i)) + ".wav"
	}
	paths := writeFiles(t, names...)
	model := &fileModel{delay: 20 * time.Millisecond}
	h := newHarness(newMemStore(""), model, &fakeInserter{}, 3)

	res, err := h.orch.RunBatch(context.Background(), paths)

	require.NoError(t, err)
	assert.Equal(t, 12, res.Inserted)
	assert.LessOrEqual(t, model.peak.Load(), int64(3))
	assert.Equal(t, int64(12), model.calls.Load())
}

func TestRunBatch_InsertFailureStillReturnsResult(t *testing.T) {
	paths := writeFiles(t, "a.wav", "b.wav")
	h := newHarness(newMemStore(""), &fileModel{}, &fakeInserter{err: errors.New("warehouse unavailable")}, 9)

	res, err := h.orch.RunBatch(context.Background(), paths)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse unavailable")
	assert.False(t, res.Committed)
	assert.Equal(t, "warehouse unavailable", res.InsertError)
	assert.Zero(t, res.Inserted)
	assert.Len(t, res.Successes(), 2)
	assert.Equal(t, 2, h.metrics.Snapshot().TotalFiles)
}

func TestRunBatch_AllFailedSkipsInsert(t *testing.T) {
	paths := writeFiles(t, "x.wav")
	model := &fileModel{answers: map[string]string{"x.wav": "no json"}}
	h := newHarness(newMemStore(""), model, &fakeInserter{}, 9)

	res, err := h.orch.RunBatch(context.Background(), paths)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, h.inserter.calls)
}

func TestListAudioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.MP3", "a.wav", "notes.txt", "c.Wav"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.wav"), 0o755))

	files, err := ListAudioFiles(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.wav"),
		filepath.Join(dir, "b.MP3"),
		filepath.Join(dir, "c.Wav"),
	}, files)

	_, err = ListAudioFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
