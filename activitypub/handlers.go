package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/vidfed/vidfed/domain"
)

// InboxProcessor consumes a batch of validated activities. The default
// processor only logs; callers plug in their own to act on them.
type InboxProcessor func(ctx context.Context, payload *InboxJobPayload) error

// RegisterJobHandlers binds the federation job handlers onto a worker.
// A nil processor falls back to logging inbox batches.
func (f *Federation) RegisterJobHandlers(worker *Worker, processor InboxProcessor) {
	worker.Register(domain.JobFetchOutbox, f.handleFetchOutbox)
	worker.Register(domain.JobFetchPlaylists, f.handleFetchPlaylists)
	worker.Register(domain.JobProcessInbox, func(ctx context.Context, payload string) error {
		return f.handleProcessInbox(ctx, payload, processor)
	})
}

// handleFetchOutbox crawls a newly discovered actor's outbox and feeds
// the surviving activities back through inbox processing.
func (f *Federation) handleFetchOutbox(ctx context.Context, payload string) error {
	var job ActorJobPayload
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return fmt.Errorf("bad fetch-outbox payload: %w", err)
	}

	actor, err := f.DB.ReadActorByUrl(job.ActorUrl)
	if err != nil {
		return err
	}
	if actor == nil || actor.OutboxUrl == "" {
		// Actor purged since the job was scheduled, nothing to crawl.
		return nil
	}

	activities, err := f.crawlCollection(ctx, actor.OutboxUrl)
	if err != nil {
		return err
	}

	valid := FilterValidActivities(activities)
	log.Printf("JobWorker: Outbox %s yielded %d activities, %d valid", actor.OutboxUrl, len(activities), len(valid))

	if len(valid) == 0 {
		return nil
	}
	return f.Queue.Schedule(domain.JobProcessInbox, &InboxJobPayload{
		Activities:        valid,
		SignatureActorUrl: actor.Url,
	})
}

// crawlCollection fetches a collection URI and flattens its items. A
// collection envelope without inline items is followed to its first
// page.
func (f *Federation) crawlCollection(ctx context.Context, uri string) ([]*domain.Activity, error) {
	body, err := f.Fetcher.FetchCollectionPage(ctx, uri)
	if err != nil {
		return nil, err
	}

	activities := FlattenActivities(body)
	if len(activities) > 0 {
		return activities, nil
	}

	var envelope struct {
		First string `json:"first"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.First == "" {
		return activities, nil
	}

	body, err = f.Fetcher.FetchCollectionPage(ctx, envelope.First)
	if err != nil {
		return nil, err
	}
	return FlattenActivities(body), nil
}

// handleFetchPlaylists probes a remote account's playlist collection.
// Playlists federate lazily: the size check records whether a later
// full crawl is worthwhile.
func (f *Federation) handleFetchPlaylists(ctx context.Context, payload string) error {
	var job ActorJobPayload
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return fmt.Errorf("bad fetch-playlists payload: %w", err)
	}

	actor, err := f.DB.ReadActorByUrl(job.ActorUrl)
	if err != nil {
		return err
	}
	if actor == nil {
		return nil
	}

	total := f.Fetcher.FetchCollectionTotal(ctx, actor.Url+"/playlists")
	if total > 0 {
		log.Printf("JobWorker: Actor %s exposes %d playlists", actor.Url, total)
	}
	return nil
}

func (f *Federation) handleProcessInbox(ctx context.Context, payload string, processor InboxProcessor) error {
	var job InboxJobPayload
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return fmt.Errorf("bad process-inbox payload: %w", err)
	}

	if processor == nil {
		log.Printf("Inbox: Processed %d activities from %s", len(job.Activities), job.SignatureActorUrl)
		return nil
	}
	return processor(ctx, &job)
}
