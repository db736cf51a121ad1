package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khaledhikmat/vs-infer/model"
)

const writeTimeout = 5 * time.Second

type postgresService struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the tables if needed.
func NewPostgres(ctx context.Context, dsn string) (IService, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &postgresService{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS processor_errors (
			id BIGSERIAL PRIMARY KEY,
			processor TEXT NOT NULL,
			message TEXT NOT NULL,
			inner_error TEXT,
			stack_trace TEXT,
			misc JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS runner_stats (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			runner_id TEXT NOT NULL,
			source TEXT NOT NULL,
			frames INT NOT NULL,
			inferences INT NOT NULL,
			skipped INT NOT NULL,
			errors INT NOT NULL,
			source_frames INT NOT NULL,
			source_errors INT NOT NULL,
			uptime BIGINT NOT NULL,
			fps INT NOT NULL,
			avg_proc_time DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS session_stats (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			switches INT NOT NULL,
			uptime BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func (svc *postgresService) NewError(err interface{}) error {
	rec := newErrorRecord(err)

	misc, mErr := json.Marshal(rec.Misc)
	if mErr != nil {
		return mErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, execErr := svc.pool.Exec(ctx, `
		INSERT INTO processor_errors (processor, message, inner_error, stack_trace, misc)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Processor, rec.Message, rec.Inner, rec.StackTrace, misc)
	return execErr
}

func (svc *postgresService) NewRunnerStats(stats model.RunnerStats) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := svc.pool.Exec(ctx, `
		INSERT INTO runner_stats (name, runner_id, source, frames, inferences, skipped, errors, source_frames, source_errors, uptime, fps, avg_proc_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, stats.Name, stats.Runner, stats.Source, stats.Frames, stats.Inferences, stats.Skipped,
		stats.Errors, stats.SourceFrames, stats.SourceErrors, stats.Uptime, stats.FPS, stats.AvgProcTime)
	return err
}

func (svc *postgresService) NewSessionStats(stats model.SessionStats) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := svc.pool.Exec(ctx, `
		INSERT INTO session_stats (session_id, mode, switches, uptime)
		VALUES ($1, $2, $3, $4)
	`, stats.ID, stats.Mode, stats.Switches, stats.Uptime)
	return err
}

func (svc *postgresService) Close() error {
	svc.pool.Close()
	return nil
}
