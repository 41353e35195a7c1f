package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/KI7MT/ki7mt-swx-lab/internal/cme"
	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/table"
)

// Identifier columns tried, in order, for a catalog row's id.
var idColumns = []string{"ID", "activityID", "CME_ID"}

// CatalogDDL returns the CREATE TABLE statement for the derived CME catalog.
func CatalogDDL(tableFQN string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id                   String,
    start                DateTime64(3),
    arrival_l1           DateTime64(3),
    speed_init           Float64,
    speed_solarwind      Float64,
    transit_drag_hr      Float64,
    predicted_arrival    Nullable(DateTime64(3)),
    delay_hr             Float64,
    halo                 Bool,
    geo_effective        Bool,
    impact_type          String,
    next_start           Nullable(DateTime64(3)),
    interaction_hour_gap Float64,
    interacting          Bool
) ENGINE = ReplacingMergeTree
ORDER BY (start, id)`, tableFQN)
}

// CatalogRow is one derived CME in insert column order.
type CatalogRow struct {
	ID             string
	Start          time.Time
	Arrival        time.Time
	SpeedInit      float64
	SpeedSolarWind float64
	TransitHours   float64
	Predicted      *time.Time
	DelayHours     float64
	Halo           bool
	GeoEffective   bool
	ImpactType     string
	NextStart      *time.Time
	InteractionGap float64
	Interacting    bool
}

func (r CatalogRow) values() []any {
	return []any{
		r.ID, r.Start, r.Arrival,
		r.SpeedInit, r.SpeedSolarWind, r.TransitHours,
		r.Predicted, r.DelayHours,
		r.Halo, r.GeoEffective, r.ImpactType,
		r.NextStart, r.InteractionGap, r.Interacting,
	}
}

// CatalogRows extracts the insertable rows of a derived catalog. Rows
// without a start or arrival time cannot be keyed and are skipped; the
// count of skipped rows is returned.
func CatalogRows(c *cme.Catalog) ([]CatalogRow, int) {
	t := c.Table
	idCol := ""
	for _, col := range idColumns {
		if t.Has(col) {
			idCol = col
			break
		}
	}

	get := func(i int, col string) string {
		if col == "" || !t.Has(col) {
			return ""
		}
		return t.Get(i, col)
	}
	num := func(i int, col string) float64 { return table.ParseFloat(get(i, col)) }
	optTime := func(i int, col string) *time.Time {
		v := table.ParseTime(get(i, col))
		if v.IsZero() {
			return nil
		}
		return &v
	}

	var rows []CatalogRow
	skipped := 0
	for i := 0; i < c.Len(); i++ {
		if c.Start[i].IsZero() || c.Arrival[i].IsZero() {
			skipped++
			continue
		}
		rows = append(rows, CatalogRow{
			ID:             get(i, idCol),
			Start:          c.Start[i],
			Arrival:        c.Arrival[i],
			SpeedInit:      num(i, cme.ColSpeedInit),
			SpeedSolarWind: num(i, cme.ColSpeedSolarWind),
			TransitHours:   num(i, cme.ColTransit),
			Predicted:      optTime(i, cme.ColPredicted),
			DelayHours:     num(i, cme.ColDelay),
			Halo:           table.ParseBool(get(i, cme.ColHaloFlag)),
			GeoEffective:   table.ParseBool(get(i, cme.ColGeoEffFlag)),
			ImpactType:     get(i, cme.ColImpactType),
			NextStart:      optTime(i, cme.ColNextStart),
			InteractionGap: num(i, cme.ColInteractionGap),
			Interacting:    table.ParseBool(get(i, cme.ColInteractionFlag)),
		})
	}
	return rows, skipped
}

// OpenConn opens a clickhouse-go connection with the tool defaults.
func OpenConn(ctx context.Context, cfg *common.Config) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseAddr()},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return conn, nil
}

// InsertCatalog appends every catalog row to one batch and sends it.
func InsertCatalog(ctx context.Context, conn driver.Conn, tableFQN string, rows []CatalogRow, stats *common.Stats) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", tableFQN))
	if err != nil {
		return err
	}

	for _, r := range rows {
		if err := batch.Append(r.values()...); err != nil {
			batch.Abort()
			return fmt.Errorf("append %s: %w", r.ID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return err
	}
	if stats != nil {
		stats.AddRows(uint64(len(rows)))
	}
	return nil
}
