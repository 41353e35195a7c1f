// Package store loads the pipeline outputs into ClickHouse: merged SWIS
// samples through the native ch-go block protocol and the derived CME
// catalog through clickhouse-go batches.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/KI7MT/ki7mt-swx-lab/internal/common"
	"github.com/KI7MT/ki7mt-swx-lab/internal/swis"
)

// DefaultBatchSize is the number of rows sent per INSERT block.
const DefaultBatchSize = 100_000

// Querier runs a native query. *ch.Client satisfies it.
type Querier interface {
	Do(ctx context.Context, q ch.Query) error
}

// Dial opens a native ch-go connection with LZ4 block compression.
func Dial(ctx context.Context, cfg *common.Config) (*ch.Client, error) {
	return ch.Dial(ctx, ch.Options{
		Address:     cfg.ClickHouseAddr(),
		Database:    cfg.ClickHouseDatabase,
		User:        cfg.ClickHouseUser,
		Password:    cfg.ClickHousePassword,
		Compression: ch.CompressionLZ4,
	})
}

// SwisDDL returns the CREATE TABLE statement for merged SWIS samples.
func SwisDDL(tableFQN string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    time          DateTime64(6),
    density       Float64,
    speed         Float64,
    temperature   Float64,
    x_pos         Float64,
    y_pos         Float64,
    z_pos         Float64,
    flux          Array(Float64),
    flux_channels Array(String),
    source_file   String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(time)
ORDER BY time`, tableFQN)
}

// SwisBatch holds column data for a native insert of merged samples.
type SwisBatch struct {
	Time         *proto.ColDateTime64
	Density      *proto.ColFloat64
	Speed        *proto.ColFloat64
	Temp         *proto.ColFloat64
	XPos         *proto.ColFloat64
	YPos         *proto.ColFloat64
	ZPos         *proto.ColFloat64
	Flux         *proto.ColArr[float64]
	FluxChannels *proto.ColArr[string]
	SourceFile   *proto.ColStr
}

func NewSwisBatch() *SwisBatch {
	return &SwisBatch{
		Time:         new(proto.ColDateTime64).WithPrecision(proto.PrecisionMicro),
		Density:      new(proto.ColFloat64),
		Speed:        new(proto.ColFloat64),
		Temp:         new(proto.ColFloat64),
		XPos:         new(proto.ColFloat64),
		YPos:         new(proto.ColFloat64),
		ZPos:         new(proto.ColFloat64),
		Flux:         proto.NewArray[float64](new(proto.ColFloat64)),
		FluxChannels: proto.NewArray[string](new(proto.ColStr)),
		SourceFile:   new(proto.ColStr),
	}
}

func (b *SwisBatch) Reset() {
	b.Time.Reset()
	b.Density.Reset()
	b.Speed.Reset()
	b.Temp.Reset()
	b.XPos.Reset()
	b.YPos.Reset()
	b.ZPos.Reset()
	b.Flux.Reset()
	b.FluxChannels.Reset()
	b.SourceFile.Reset()
}

func (b *SwisBatch) Len() int {
	return b.Time.Rows()
}

func (b *SwisBatch) Input() proto.Input {
	return proto.Input{
		{Name: "time", Data: b.Time},
		{Name: "density", Data: b.Density},
		{Name: "speed", Data: b.Speed},
		{Name: "temperature", Data: b.Temp},
		{Name: "x_pos", Data: b.XPos},
		{Name: "y_pos", Data: b.YPos},
		{Name: "z_pos", Data: b.ZPos},
		{Name: "flux", Data: b.Flux},
		{Name: "flux_channels", Data: b.FluxChannels},
		{Name: "source_file", Data: b.SourceFile},
	}
}

// AddRecord appends one merged sample. channels names the entries of r.Flux.
func (b *SwisBatch) AddRecord(r swis.Record, channels []string, sourceFile string) {
	b.Time.Append(time.UnixMicro(r.Timestamp).UTC())
	b.Density.Append(r.Density)
	b.Speed.Append(r.Speed)
	b.Temp.Append(r.Temp)
	b.XPos.Append(r.XPos)
	b.YPos.Append(r.YPos)
	b.ZPos.Append(r.ZPos)
	b.Flux.Append(r.Flux)
	b.FluxChannels.Append(channels)
	b.SourceFile.Append(sourceFile)
}

func swisInsertQuery(tableFQN string) string {
	cols := make([]string, 0, 10)
	for _, c := range NewSwisBatch().Input() {
		cols = append(cols, c.Name)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES", tableFQN, strings.Join(cols, ", "))
}

// InsertSwis sends rows in blocks of batchSize. Rows are counted in stats
// (which may be nil) as each block is accepted.
func InsertSwis(ctx context.Context, conn Querier, tableFQN string, rows []swis.Record, channels []string, sourceFile string, batchSize int, stats *common.Stats) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	query := swisInsertQuery(tableFQN)
	batch := NewSwisBatch()

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		n := batch.Len()
		if err := conn.Do(ctx, ch.Query{Body: query, Input: batch.Input()}); err != nil {
			return fmt.Errorf("insert %d rows into %s: %w", n, tableFQN, err)
		}
		if stats != nil {
			stats.AddRows(uint64(n))
		}
		batch.Reset()
		return nil
	}

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch.AddRecord(r, channels, sourceFile)
		if batch.Len() >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Exec runs a statement without input, such as DDL or TRUNCATE.
func Exec(ctx context.Context, conn Querier, query string) error {
	return conn.Do(ctx, ch.Query{Body: query})
}
