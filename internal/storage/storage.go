// Package storage implements the batch writer's FlushFunc against
// PostgreSQL/TimescaleDB, bulk-inserting records with pgx.CopyFrom. The
// hypertable DDL is owned by the deployment's migration tooling and is
// not reproduced here.
package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linuxmatters/eegmonitor/internal/ingest"
)

// Persister bulk-inserts ingest.Record values into the eeg_samples
// hypertable.
type Persister struct {
	pool *pgxpool.Pool
}

// NewPersister wraps an already-configured pgx pool.
func NewPersister(pool *pgxpool.Pool) *Persister {
	return &Persister{pool: pool}
}

var columns = []string{
	"id", "session_id", "ts", "sample_rate",
	"tp9", "af7", "af8", "tp10",
	"theta_power", "alpha_power", "beta_power", "gamma_power",
	"theta_alpha_ratio", "beta_alpha_ratio",
	"eeg_fatigue_score", "signal_quality", "cognitive_state",
}

// Flush implements ingest.FlushFunc, bulk-inserting a batch of records via
// pgx.CopyFrom, one call per flush regardless of batch size.
func (p *Persister) Flush(ctx context.Context, items []any) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(items))
	for _, item := range items {
		rec, ok := item.(ingest.Record)
		if !ok {
			return fmt.Errorf("storage: unexpected item type %T in flush batch", item)
		}
		rows = append(rows, recordToRow(rec))
	}

	_, err := p.pool.CopyFrom(
		ctx,
		pgx.Identifier{"eeg_samples"},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: copy-from failed for %d rows: %w", len(rows), err)
	}
	return nil
}

// recordToRow builds one hypertable row, stamping a synthetic uuid
// primary key; (session_id, ts) is the partitioning pair, not the key.
func recordToRow(rec ingest.Record) []any {
	var (
		thetaPower, alphaPower, betaPower, gammaPower    float64
		thetaAlphaRatio, betaAlphaRatio, eegFatigueScore float64
		signalQuality                                    float64
		cognitiveState                                   string
	)
	if rec.Processed != nil {
		thetaPower = rec.Processed.ThetaPower
		alphaPower = rec.Processed.AlphaPower
		betaPower = rec.Processed.BetaPower
		gammaPower = rec.Processed.GammaPower
		thetaAlphaRatio = rec.Processed.ThetaAlphaRatio
		betaAlphaRatio = rec.Processed.BetaAlphaRatio
		eegFatigueScore = rec.Processed.EEGFatigueScore
		signalQuality = rec.Processed.SignalQuality
		cognitiveState = rec.Processed.CognitiveState
	}

	return []any{
		uuid.NewString(), rec.SessionID, rec.Timestamp, rec.SampleRate,
		rec.Channels.TP9, rec.Channels.AF7, rec.Channels.AF8, rec.Channels.TP10,
		thetaPower, alphaPower, betaPower, gammaPower,
		thetaAlphaRatio, betaAlphaRatio,
		eegFatigueScore, signalQuality, cognitiveState,
	}
}
