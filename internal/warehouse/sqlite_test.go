package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/types"
)

func newTestSQLite(t *testing.T) *SQLiteWarehouse {
	t.Helper()
	w, err := NewSQLite(filepath.Join(t.TempDir(), "warehouse.db"), "call_records")
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	require.NoError(t, w.EnsureSchema(context.Background()))
	return w
}

func TestSQLite_QueryInsertsEscapedValues(t *testing.T) {
	w := newTestSQLite(t)
	ctx := context.Background()
	phone := "9876543210"
	rows := []types.WarehouseRow{
		{CustomerID: "CUST-AAAAA", PhoneNumber: &phone, Transcript: "it's\nbroken", ComplaintType: types.ComplaintNetwork, CustomerSentiment: types.SentimentNegative},
		{CustomerID: "CUST-BBBBB", Transcript: "", ComplaintType: types.ComplaintOthers, CustomerSentiment: types.SentimentNeutral, Resolved: true},
	}

	require.NoError(t, w.Query(ctx, BuildInsertSQL(w.TableRef(), rows)))

	n, err := w.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var transcript string
	var phoneCol *string
	require.NoError(t, w.db.QueryRowContext(ctx, `SELECT transcript, phone_number FROM call_records WHERE customer_id = 'CUST-AAAAA'`).Scan(&transcript, &phoneCol))
	assert.Equal(t, "it's broken", transcript)
	require.NotNil(t, phoneCol)
	assert.Equal(t, phone, *phoneCol)

	require.NoError(t, w.db.QueryRowContext(ctx, `SELECT phone_number FROM call_records WHERE customer_id = 'CUST-BBBBB'`).Scan(&phoneCol))
	assert.Nil(t, phoneCol)
}

func TestSQLite_LoadAppend(t *testing.T) {
	w := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, w.LoadAppend(ctx, sampleRows(3)))
	require.NoError(t, w.LoadAppend(ctx, nil))

	n, err := w.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLite_MalformedStatement(t *testing.T) {
	w := newTestSQLite(t)

	err := w.Query(context.Background(), "INSERT INTO call_records (nope) VALUES (1)")

	assert.True(t, fault.Is(err, fault.MalformedStatement), "got %v", err)
}

func TestSQLite_GatewayFallsBackToLoad(t *testing.T) {
	w := newTestSQLite(t)
	ctx := context.Background()

	broken := &brokenQuery{SQLiteWarehouse: w}
	n, err := newTestGateway(broken).InsertBatch(ctx, sampleRows(2))

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, broken.calls)
	count, err := w.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// brokenQuery rewrites every statement into one SQLite rejects.
type brokenQuery struct {
	*SQLiteWarehouse
	calls int
}

func (b *brokenQuery) Query(ctx context.Context, _ string) error {
	b.calls++
	return b.SQLiteWarehouse.Query(ctx, "INSERT INTO missing_table VALUES (1)")
}
