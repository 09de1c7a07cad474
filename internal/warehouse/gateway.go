package warehouse

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/retry"
	"call-insights-go/internal/types"
)

// Gateway is the Warehouse Gateway.
type Gateway struct {
	wh   Warehouse
	exec retry.Executor
	log  *logger.Logger
}

func NewGateway(wh Warehouse, exec retry.Executor, log *logger.Logger) *Gateway {
	return &Gateway{wh: wh, exec: exec, log: log.Component("warehouse")}
}

// InsertOne appends a single row through the load path.
func (g *Gateway) InsertOne(ctx context.Context, row types.WarehouseRow) error {
	err := g.exec.WithPolicy(retry.Always).Do(ctx, "warehouse.insert_one", func(ctx context.Context) error {
		return g.wh.LoadAppend(ctx, []types.WarehouseRow{row})
	})
	if err != nil {
		return eris.Wrap(err, "warehouse: insert one")
	}
	g.log.WithField("customer_id", row.CustomerID).Info("inserted record")
	return nil
}

// InsertBatch writes rows with one INSERT statement and falls back to the
// load path once if that fails. It returns the number of rows submitted.
func (g *Gateway) InsertBatch(ctx context.Context, rows []types.WarehouseRow) (int, error) {
	if len(rows) == 0 {
		g.log.Warn("no records to insert")
		return 0, nil
	}
	log := g.log.WithField("records", len(rows))

	stmt := BuildInsertSQL(g.wh.TableRef(), rows)
	log.Info("executing bulk SQL insert")
	err := g.exec.WithPolicy(retry.Except(fault.MalformedStatement)).Do(ctx, "warehouse.insert_sql", func(ctx context.Context) error {
		return g.wh.Query(ctx, stmt)
	})
	if err == nil {
		log.Info("bulk SQL insert succeeded")
		return len(rows), nil
	}

	log.WithFields(logrus.Fields{"error": err.Error(), "kind": fault.KindOf(err).String()}).
		Error("bulk SQL insert failed, falling back to load job")

	err = g.exec.WithPolicy(retry.Always).Do(ctx, "warehouse.load_append", func(ctx context.Context) error {
		return g.wh.LoadAppend(ctx, rows)
	})
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: bulk insert")
	}
	log.Info("fallback load inserted records")
	return len(rows), nil
}
