package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRefreshInterval is how long a cached remote actor stays fresh
// before a resolve triggers a background refetch.
const ActorRefreshInterval = 24 * time.Hour

type ActorType string

const (
	ActorPerson      ActorType = "Person"
	ActorGroup       ActorType = "Group"
	ActorApplication ActorType = "Application"
)

// Actor is the unit of federated identity: a local or remote account,
// channel, or instance system actor. The URL is the primary identity;
// the uuid is only the local row key.
type Actor struct {
	Id                uuid.UUID
	Url               string
	PreferredUsername string
	Type              ActorType
	Host              string // empty for local actors
	InboxUrl          string
	OutboxUrl         string
	FollowersUrl      string
	FollowingUrl      string
	SharedInboxUrl    string
	PublicKeyPem      string
	PrivateKeyPem     string // only set for local actors
	FollowersCount    int
	FollowingCount    int
	RemoteCreatedAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Owner row keys, filled in by the repository on load. Both nil
	// means the actor is an orphan left behind by an interrupted
	// creation and must be destroyed on sight.
	AccountId *uuid.UUID
	ChannelId *uuid.UUID
}

// IsLocal reports whether the actor belongs to this instance.
func (a *Actor) IsLocal() bool {
	return a.Host == ""
}

// IsOutdated reports whether the cached copy of a remote actor is
// stale. Local actors are authoritative and never outdated.
func (a *Actor) IsOutdated() bool {
	if a.IsLocal() {
		return false
	}
	return time.Since(a.UpdatedAt) > ActorRefreshInterval
}

// IsOrphaned reports whether the actor lacks both an owning account and
// an owning channel.
func (a *Actor) IsOrphaned() bool {
	return a.Type != ActorApplication && a.AccountId == nil && a.ChannelId == nil
}

// Handle returns the webfinger handle for the actor, e.g. "alice@example.com".
func (a *Actor) Handle() string {
	if a.IsLocal() {
		return a.PreferredUsername
	}
	return fmt.Sprintf("%s@%s", a.PreferredUsername, a.Host)
}

// Account is the local association of a Person actor.
type Account struct {
	Id          uuid.UUID
	Name        string
	Description string
	ActorId     uuid.UUID
	CreatedAt   time.Time
}

// Channel is the local association of a Group actor. Every channel is
// owned by exactly one account.
type Channel struct {
	Id             uuid.UUID
	Name           string
	Description    string
	Support        string
	ActorId        uuid.UUID
	OwnerAccountId uuid.UUID
	CreatedAt      time.Time
}

type ActorImageType string

const (
	ImageAvatar ActorImageType = "avatar"
	ImageBanner ActorImageType = "banner"
)

// ActorImage is an avatar or banner attached to an actor. At most one
// image per (actor, type, width) is ever persisted; replacing an image
// of the same width destroys the prior row.
type ActorImage struct {
	Id        uuid.UUID
	ActorId   uuid.UUID
	Type      ActorImageType
	Width     int
	FileUrl   string
	CreatedAt time.Time
}
