package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobFetchOutbox    = "fetch-outbox"
	JobFetchPlaylists = "fetch-playlists"
	JobProcessInbox   = "process-inbox"
)

// Job is a queued unit of async federation work with retry bookkeeping.
type Job struct {
	Id          uuid.UUID
	Type        string
	Payload     string // JSON-encoded, shape depends on Type
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
}
