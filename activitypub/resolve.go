package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
)

var (
	// ErrActorFetch wraps network or parse failures where no usable
	// actor exists at all.
	ErrActorFetch = errors.New("actor fetch failed")
	// ErrActorHostMismatch marks trust violations: attribution or
	// alias pointing at a different host than the document's own.
	ErrActorHostMismatch = errors.New("actor host mismatch")
	// ErrActorGone marks an actor purged after an authoritative 404.
	ErrActorGone = errors.New("actor deleted upstream")
)

// Alias redirection (document id differing from the fetched URL) is
// followed once; a second hop means the remote is looping us.
const maxAliasDepth = 1

// Resolver orchestrates get-or-create of actors: repository lookup,
// orphan self-healing, remote fetch and transactional creation,
// staleness delegation and background collection sync.
type Resolver struct {
	db        *db.DB
	fetcher   *Fetcher
	webfinger *WebfingerResolver
	refresher *Refresher
	queue     JobQueue
}

// ResolveActor resolves the actor at actorUrl, creating or refreshing
// the cached row as needed. recurseOwner allows descending one level
// into a Group's attributed-to Person; scheduleSync schedules an async
// crawl of newly created actors' collections.
func (r *Resolver) ResolveActor(ctx context.Context, actorUrl string, recurseOwner, scheduleSync bool) (*domain.Actor, error) {
	return r.resolve(ctx, actorUrl, recurseOwner, scheduleSync, 0)
}

// ResolveActorRef accepts the raw actor field of an activity, either a
// URL string or an embedded actor object.
func (r *Resolver) ResolveActorRef(ctx context.Context, ref json.RawMessage, recurseOwner, scheduleSync bool) (*domain.Actor, error) {
	actorUrl, ok := domain.ObjectRef(ref)
	if !ok {
		return nil, fmt.Errorf("%w: unresolvable actor reference", ErrActorFetch)
	}
	return r.resolve(ctx, actorUrl, recurseOwner, scheduleSync, 0)
}

func (r *Resolver) resolve(ctx context.Context, actorUrl string, recurseOwner, scheduleSync bool, aliasDepth int) (*domain.Actor, error) {
	if !IsAbsoluteUrl(actorUrl) {
		return nil, fmt.Errorf("%w: invalid actor url %q", ErrActorFetch, actorUrl)
	}

	actor, err := r.db.ReadActorByUrl(actorUrl)
	if err != nil {
		return nil, err
	}

	// Self-heal rows left behind by an interrupted creation: an actor
	// without an owning account or channel is destroyed and treated as
	// a miss.
	if actor != nil && actor.IsOrphaned() {
		log.Printf("Resolver: destroying orphaned actor %s", actor.Url)
		if err := r.db.DestroyActor(actor.Id); err != nil {
			return nil, err
		}
		actor = nil
	}

	created := false
	if actor == nil {
		doc, status, err := r.fetcher.FetchActorDocument(ctx, actorUrl)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrActorFetch, err)
		}
		if doc == nil {
			return nil, fmt.Errorf("%w: %s returned status %d or an invalid document", ErrActorFetch, actorUrl, status)
		}

		if doc.Id != actorUrl {
			// The URL was an alias. Re-resolve under the document's
			// own id so the row is keyed by the canonical URL and a
			// later fetch of the alias finds the same record. The
			// fetcher already guarantees both live on one host.
			if aliasDepth >= maxAliasDepth {
				return nil, fmt.Errorf("%w: alias chain at %s too deep", ErrActorFetch, actorUrl)
			}
			return r.resolve(ctx, doc.Id, true, scheduleSync, aliasDepth+1)
		}

		actor, created, err = r.createFromDocument(ctx, doc, recurseOwner, scheduleSync)
		if err != nil {
			return nil, err
		}
	}

	if actor.IsOutdated() {
		result := r.refresher.RefreshIfNeeded(ctx, actor)
		if result.Actor == nil {
			return nil, fmt.Errorf("%s: %w", actorUrl, ErrActorGone)
		}
		actor = result.Actor
	}

	if created && scheduleSync {
		r.scheduleCollectionSync(actor)
	}

	return actor, nil
}

// createFromDocument persists a fetched actor together with its owning
// account or channel. For Group actors the attributed-to Person is
// resolved first, with recursion disabled so the owner chain is at
// most one level deep.
func (r *Resolver) createFromDocument(ctx context.Context, doc *ActorDocument, recurseOwner, scheduleSync bool) (*domain.Actor, bool, error) {
	actor, err := actorFromDocument(doc)
	if err != nil {
		return nil, false, err
	}

	var account *domain.Account
	var channel *domain.Channel

	switch actor.Type {
	case domain.ActorGroup:
		if !recurseOwner {
			return nil, false, fmt.Errorf("%w: refusing to resolve channel %s as an owner", ErrActorFetch, doc.Id)
		}
		attrUrl, ok := doc.AttributedToPerson()
		if !ok {
			return nil, false, fmt.Errorf("%w: channel %s has no person attribution", ErrActorFetch, doc.Id)
		}
		// Forged-attribution defense: a channel may only be owned by
		// an account on its own host.
		if !CheckUrlsSameHost(attrUrl, doc.Id) {
			return nil, false, fmt.Errorf("channel %s attributed to %s: %w", doc.Id, attrUrl, ErrActorHostMismatch)
		}
		owner, err := r.resolve(ctx, attrUrl, false, scheduleSync, 0)
		if err != nil {
			return nil, false, err
		}
		if owner.AccountId == nil {
			return nil, false, fmt.Errorf("%w: channel %s attributed to non-account %s", ErrActorFetch, doc.Id, attrUrl)
		}
		channel = &domain.Channel{
			Id:             uuid.New(),
			Name:           displayName(doc),
			Description:    doc.Summary,
			Support:        doc.Support,
			ActorId:        actor.Id,
			OwnerAccountId: *owner.AccountId,
		}
	case domain.ActorPerson, domain.ActorApplication:
		account = &domain.Account{
			Id:          uuid.New(),
			Name:        displayName(doc),
			Description: doc.Summary,
			ActorId:     actor.Id,
		}
	default:
		return nil, false, fmt.Errorf("%w: unsupported actor type %q at %s", ErrActorFetch, doc.Type, doc.Id)
	}

	stored, created, err := r.db.FindOrCreateActor(actor, account, channel)
	if err != nil {
		return nil, false, err
	}

	if created {
		if images := imagesFromDocument(doc, stored.Id); len(images) > 0 {
			if err := r.db.ReplaceActorImages(stored.Id, images); err != nil {
				log.Printf("Resolver: failed to store images for %s: %v", stored.Url, err)
			}
		}
	}

	return stored, created, nil
}

// scheduleCollectionSync schedules the async crawl of a freshly
// created actor's collections. Fire-and-forget: scheduling failures
// are logged, never surfaced to the resolution caller.
func (r *Resolver) scheduleCollectionSync(actor *domain.Actor) {
	if err := r.queue.Schedule(domain.JobFetchOutbox, ActorJobPayload{ActorUrl: actor.Url}); err != nil {
		log.Printf("Resolver: failed to schedule outbox fetch for %s: %v", actor.Url, err)
	}
	if actor.Type == domain.ActorPerson {
		if err := r.queue.Schedule(domain.JobFetchPlaylists, ActorJobPayload{ActorUrl: actor.Url}); err != nil {
			log.Printf("Resolver: failed to schedule playlists fetch for %s: %v", actor.Url, err)
		}
	}
}

func actorFromDocument(doc *ActorDocument) (*domain.Actor, error) {
	host, err := extractHost(doc.Id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorFetch, err)
	}

	now := time.Now()
	actor := &domain.Actor{
		Id:                uuid.New(),
		Url:               doc.Id,
		PreferredUsername: doc.PreferredUsername,
		Type:              domain.ActorType(doc.Type),
		Host:              host,
		InboxUrl:          doc.Inbox,
		OutboxUrl:         doc.Outbox,
		FollowersUrl:      doc.Followers,
		FollowingUrl:      doc.Following,
		SharedInboxUrl:    doc.Endpoints.SharedInbox,
		PublicKeyPem:      doc.PublicKey.PublicKeyPem,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if doc.Published != "" {
		if t, err := time.Parse(time.RFC3339, doc.Published); err == nil {
			actor.RemoteCreatedAt = &t
		}
	}

	return actor, nil
}

func displayName(doc *ActorDocument) string {
	if doc.Name != "" {
		return doc.Name
	}
	return doc.PreferredUsername
}

func extractHost(actorUrl string) (string, error) {
	u, err := url.Parse(actorUrl)
	if err != nil {
		return "", err
	}
	return canonicalHost(u), nil
}

const (
	defaultAvatarWidth = 120
	defaultBannerWidth = 1920
)

// imagesFromDocument maps a document's icon/image fields to avatar and
// banner rows for the given actor.
func imagesFromDocument(doc *ActorDocument, actorId uuid.UUID) []domain.ActorImage {
	var images []domain.ActorImage
	for _, img := range ParseImages(doc.Icon) {
		width := img.Width
		if width == 0 {
			width = defaultAvatarWidth
		}
		images = append(images, domain.ActorImage{
			Id:      uuid.New(),
			ActorId: actorId,
			Type:    domain.ImageAvatar,
			Width:   width,
			FileUrl: img.Url,
		})
	}
	for _, img := range ParseImages(doc.Image) {
		width := img.Width
		if width == 0 {
			width = defaultBannerWidth
		}
		images = append(images, domain.ActorImage{
			Id:      uuid.New(),
			ActorId: actorId,
			Type:    domain.ImageBanner,
			Width:   width,
			FileUrl: img.Url,
		})
	}
	return images
}

// IsNotFoundStatus reports whether a status code is the authoritative
// absence signal that triggers a purge.
func IsNotFoundStatus(status int) bool {
	return status == http.StatusNotFound
}
