package activitypub

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
)

// Updater applies a freshly fetched remote document to a cached actor.
// It never mutates the caller's structs: a proposed copy is built and
// persisted, and on failure the proposal is simply discarded, leaving
// the caller holding the previous state.
type Updater struct {
	db       *db.DB
	fetcher  *Fetcher
	resolver *Resolver
}

// Update copies the remote document's identity fields over the actor
// and its owning account or channel, persisting images in one
// transaction and actor+owner in a second. The freshness clock resets
// even when no field changed. Returns the updated actor.
func (u *Updater) Update(ctx context.Context, doc *ActorDocument, actor *domain.Actor) (*domain.Actor, error) {
	proposed := *actor
	proposed.Type = domain.ActorType(doc.Type)
	proposed.PreferredUsername = doc.PreferredUsername
	proposed.Url = doc.Id
	proposed.PublicKeyPem = doc.PublicKey.PublicKeyPem
	proposed.InboxUrl = doc.Inbox
	proposed.OutboxUrl = doc.Outbox
	proposed.FollowersUrl = doc.Followers
	proposed.FollowingUrl = doc.Following
	proposed.SharedInboxUrl = doc.Endpoints.SharedInbox
	proposed.FollowersCount = u.fetcher.FetchCollectionTotal(ctx, doc.Followers)
	proposed.FollowingCount = u.fetcher.FetchCollectionTotal(ctx, doc.Following)
	proposed.UpdatedAt = time.Now()

	var account *domain.Account
	var channel *domain.Channel

	switch {
	case actor.ChannelId != nil:
		stored, err := u.db.ReadChannelById(*actor.ChannelId)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, fmt.Errorf("channel %s of actor %s is gone", actor.ChannelId, actor.Url)
		}
		updated := *stored
		updated.Name = displayName(doc)
		updated.Description = doc.Summary
		updated.Support = doc.Support
		u.reresolveChannelOwner(ctx, doc, &updated)
		channel = &updated
	case actor.AccountId != nil:
		stored, err := u.db.ReadAccountById(*actor.AccountId)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, fmt.Errorf("account %s of actor %s is gone", actor.AccountId, actor.Url)
		}
		updated := *stored
		updated.Name = displayName(doc)
		updated.Description = doc.Summary
		account = &updated
	}

	if images := imagesFromDocument(doc, actor.Id); len(images) > 0 {
		if err := u.db.ReplaceActorImages(actor.Id, images); err != nil {
			return nil, err
		}
	}

	if err := u.db.UpdateActorAndOwner(&proposed, account, channel); err != nil {
		return nil, err
	}

	return &proposed, nil
}

// reresolveChannelOwner re-reads a channel's attributed-to account:
// ownership can change hands upstream. Failures leave the previous
// owner in place, they never fail the whole update.
func (u *Updater) reresolveChannelOwner(ctx context.Context, doc *ActorDocument, channel *domain.Channel) {
	attrUrl, ok := doc.AttributedToPerson()
	if !ok {
		return
	}
	if !CheckUrlsSameHost(attrUrl, doc.Id) {
		log.Printf("Updater: ignoring cross-host attribution %s on channel %s", attrUrl, doc.Id)
		return
	}
	owner, err := u.resolver.ResolveActor(ctx, attrUrl, false, false)
	if err != nil {
		log.Printf("Updater: could not re-resolve owner %s of channel %s: %v", attrUrl, doc.Id, err)
		return
	}
	if owner.AccountId != nil {
		channel.OwnerAccountId = *owner.AccountId
	}
}
