package activitypub

import (
	"context"
	"log"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
)

// RefreshResult reports the outcome of a refresh attempt. A nil Actor
// with Refreshed=false means the remote answered 404 and the local
// record was purged.
type RefreshResult struct {
	Actor     *domain.Actor
	Refreshed bool
}

// Refresher re-fetches stale remote actors. Concurrent refreshes of
// one actor URL collapse into a single network operation whose result
// every caller observes: with one writer per key at a time there is no
// lost-update window.
type Refresher struct {
	db        *db.DB
	fetcher   *Fetcher
	webfinger *WebfingerResolver
	updater   *Updater

	group singleflight.Group
}

// RefreshIfNeeded refreshes the actor when its cache TTL has expired.
// Refresh failures are absorbed: the caller always gets back a usable
// (possibly stale) actor, except after an authoritative 404.
func (r *Refresher) RefreshIfNeeded(ctx context.Context, actor *domain.Actor) RefreshResult {
	if !actor.IsOutdated() {
		return RefreshResult{Actor: actor, Refreshed: false}
	}

	v, _, _ := r.group.Do(actor.Url, func() (any, error) {
		return r.refresh(ctx, actor), nil
	})
	return v.(RefreshResult)
}

func (r *Refresher) refresh(ctx context.Context, actor *domain.Actor) RefreshResult {
	// Prefer a fresh webfinger answer over the possibly-stale stored
	// URL; fall back to the stored URL when the lookup fails.
	fetchUrl := actor.Url
	if resolved, err := r.webfinger.Resolve(ctx, actor.Handle()); err == nil {
		fetchUrl = resolved
	} else {
		log.Printf("Refresher: webfinger for %s failed, using stored url: %v", actor.Handle(), err)
	}

	doc, status, err := r.fetcher.FetchActorDocument(ctx, fetchUrl)

	if status == http.StatusNotFound {
		// Authoritative absence: purge rather than keep a tombstone.
		log.Printf("Refresher: %s returned 404, purging actor", fetchUrl)
		if err := r.db.PurgeActorByUrl(actor.Url); err != nil {
			log.Printf("Refresher: failed to purge %s: %v", actor.Url, err)
		}
		return RefreshResult{Actor: nil, Refreshed: false}
	}

	if err != nil || doc == nil {
		log.Printf("Refresher: could not refresh %s (status %d): %v", actor.Url, status, err)
		return RefreshResult{Actor: actor, Refreshed: false}
	}

	updated, err := r.updater.Update(ctx, doc, actor)
	if err != nil {
		log.Printf("Refresher: update of %s failed: %v", actor.Url, err)
		return RefreshResult{Actor: actor, Refreshed: false}
	}

	return RefreshResult{Actor: updated, Refreshed: true}
}
