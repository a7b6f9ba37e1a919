package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/vidfed/vidfed/domain"
)

const (
	sqlInsertJob         = `INSERT INTO jobs(id, type, payload, attempts, next_retry_at, created_at) VALUES (?, ?, ?, 0, ?, ?)`
	sqlSelectPendingJobs = `SELECT id, type, payload, attempts, next_retry_at, created_at FROM jobs
		WHERE next_retry_at <= ? ORDER BY next_retry_at LIMIT ?`
	sqlUpdateJobAttempt = `UPDATE jobs SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteJob        = `DELETE FROM jobs WHERE id = ?`
)

func (db *DB) CreateJob(job *domain.Job) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertJob, job.Id.String(), job.Type, job.Payload, job.NextRetryAt, job.CreatedAt)
		return err
	})
}

func (db *DB) ReadPendingJobs(limit int) ([]domain.Job, error) {
	rows, err := db.db.Query(sqlSelectPendingJobs, time.Now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.Scan(&job.Id, &job.Type, &job.Payload, &job.Attempts, &job.NextRetryAt, &job.CreatedAt); err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (db *DB) UpdateJobAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateJobAttempt, attempts, nextRetryAt, id.String())
		return err
	})
}

func (db *DB) DeleteJob(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteJob, id.String())
		return err
	})
}
