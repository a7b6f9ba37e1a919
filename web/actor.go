package web

import (
	"encoding/json"
	"fmt"

	"github.com/vidfed/vidfed/activitypub"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
)

var actorContext = []any{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
}

// GetActorDocument renders a local actor as activity+json. wantChannel
// pins the route to the actor kind it serves, so /accounts/:name never
// leaks a channel document and vice versa. The account route also
// serves the instance's Application actor.
func GetActorDocument(database *db.DB, name string, wantChannel bool) (string, error) {
	actor, err := database.ReadLocalActorByName(name)
	if err != nil {
		return "", err
	}
	if actor == nil || wantChannel != (actor.Type == domain.ActorGroup) {
		return "", fmt.Errorf("no local actor %q", name)
	}

	doc := activitypub.ActorDocument{
		Context:           actorContext,
		Id:                actor.Url,
		Type:              string(actor.Type),
		PreferredUsername: actor.PreferredUsername,
		Url:               actor.Url,
		Inbox:             actor.InboxUrl,
		Outbox:            actor.OutboxUrl,
		Followers:         actor.FollowersUrl,
		Following:         actor.FollowingUrl,
	}
	doc.Endpoints.SharedInbox = actor.SharedInboxUrl
	doc.PublicKey.Id = fmt.Sprintf("%s#main-key", actor.Url)
	doc.PublicKey.Owner = actor.Url
	doc.PublicKey.PublicKeyPem = actor.PublicKeyPem

	switch {
	case actor.AccountId != nil:
		account, err := database.ReadAccountById(*actor.AccountId)
		if err != nil || account == nil {
			break
		}
		doc.Name = account.Name
		doc.Summary = account.Description
	case actor.ChannelId != nil:
		channel, err := database.ReadChannelById(*actor.ChannelId)
		if err != nil || channel == nil {
			break
		}
		doc.Name = channel.Name
		doc.Summary = channel.Description
		doc.Support = channel.Support
		if owner := channelOwnerUrl(database, channel); owner != "" {
			attributed, _ := json.Marshal(owner)
			doc.AttributedTo = attributed
		}
	}

	if doc.Name == "" {
		doc.Name = actor.PreferredUsername
	}

	body, err := json.Marshal(&doc)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func channelOwnerUrl(database *db.DB, channel *domain.Channel) string {
	account, err := database.ReadAccountById(channel.OwnerAccountId)
	if err != nil || account == nil {
		return ""
	}
	ownerActor, err := database.ReadActorById(account.ActorId)
	if err != nil || ownerActor == nil {
		return ""
	}
	return ownerActor.Url
}
