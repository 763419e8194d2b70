package database

import (
	"context"
	"fmt"
)

func (db *PostgresDB) InitSchema(ctx context.Context) error {
	// 1. Answer Jobs Table
	jobsQuery := `
		CREATE TABLE IF NOT EXISTS answer_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			query TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			config JSONB,
			answer TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, jobsQuery); err != nil {
		return fmt.Errorf("failed to create answer_jobs table: %w", err)
	}

	// 2. Answer Logs Table
	logsQuery := `
		CREATE TABLE IF NOT EXISTS answer_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES answer_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create answer_logs table: %w", err)
	}

	// Indexes for faster querying
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_answer_logs_job_id ON answer_logs(job_id)"); err != nil {
		return fmt.Errorf("failed to create index on answer_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_answer_jobs_created_at ON answer_jobs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on answer_jobs: %w", err)
	}

	return nil
}
