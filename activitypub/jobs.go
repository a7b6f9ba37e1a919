package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
)

// JobQueue schedules async federation work. Scheduling is
// fire-and-forget: callers log failures but never propagate them.
type JobQueue interface {
	Schedule(jobType string, payload any) error
}

// ActorJobPayload drives fetch-outbox and fetch-playlists jobs.
type ActorJobPayload struct {
	ActorUrl string `json:"actorUrl"`
}

// InboxJobPayload is the package handed to inbox processing: the
// surviving activities plus the resolved signing actor and the actor
// whose inbox received the post ("" for the shared inbox).
type InboxJobPayload struct {
	Activities        []*domain.Activity `json:"activities"`
	SignatureActorUrl string             `json:"signatureActorUrl"`
	InboxActorUrl     string             `json:"inboxActorUrl,omitempty"`
}

// DBQueue is the sqlite-backed JobQueue consumed by the resolver and
// the inbox dispatcher and drained by Worker.
type DBQueue struct {
	db *db.DB
}

func NewDBQueue(database *db.DB) *DBQueue {
	return &DBQueue{db: database}
}

func (q *DBQueue) Schedule(jobType string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	now := time.Now()
	return q.db.CreateJob(&domain.Job{
		Id:          uuid.New(),
		Type:        jobType,
		Payload:     string(encoded),
		NextRetryAt: now,
		CreatedAt:   now,
	})
}

// JobHandler processes one job payload. A returned error requeues the
// job with backoff.
type JobHandler func(ctx context.Context, payload string) error

// Worker drains the job queue in the background, retrying failed jobs
// with exponential backoff and giving up after ten attempts.
type Worker struct {
	db       *db.DB
	handlers map[string]JobHandler
	interval time.Duration
}

func NewWorker(database *db.DB) *Worker {
	return &Worker{
		db:       database,
		handlers: make(map[string]JobHandler),
		interval: 10 * time.Second,
	}
}

// Register binds a handler to a job type. Not safe to call after Start.
func (w *Worker) Register(jobType string, handler JobHandler) {
	w.handlers[jobType] = handler
}

// Start begins draining the queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	log.Println("Starting federation job worker...")

	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.processJobs(ctx)
			}
		}
	}()
}

func (w *Worker) processJobs(ctx context.Context) {
	jobs, err := w.db.ReadPendingJobs(50)
	if err != nil {
		log.Printf("JobWorker: Failed to read queue: %v", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	log.Printf("JobWorker: Processing %d pending jobs", len(jobs))

	for _, job := range jobs {
		if err := w.runJob(ctx, &job); err != nil {
			job.Attempts++
			backoffMinutes := []int{1, 5, 15, 60, 240, 1440}[min(job.Attempts-1, 5)]
			nextRetry := time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

			if job.Attempts >= 10 {
				log.Printf("JobWorker: Giving up on %s job %s after %d attempts", job.Type, job.Id, job.Attempts)
				w.db.DeleteJob(job.Id)
			} else {
				log.Printf("JobWorker: %s job %s failed (attempt %d), retry in %dm: %v",
					job.Type, job.Id, job.Attempts, backoffMinutes, err)
				w.db.UpdateJobAttempt(job.Id, job.Attempts, nextRetry)
			}
		} else {
			w.db.DeleteJob(job.Id)
		}
	}
}

func (w *Worker) runJob(ctx context.Context, job *domain.Job) error {
	handler, ok := w.handlers[job.Type]
	if !ok {
		// Unknown type: drop rather than retry forever.
		log.Printf("JobWorker: No handler for job type %s, dropping", job.Type)
		return nil
	}
	return handler(ctx, job.Payload)
}
