package activitypub

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
	"github.com/vidfed/vidfed/util"
)

// Federation bundles the resolution pipeline: fetcher, webfinger,
// resolver, refresher and updater share one database and one signing
// identity.
type Federation struct {
	DB        *db.DB
	Conf      *util.AppConfig
	Fetcher   *Fetcher
	Webfinger *WebfingerResolver
	Resolver  *Resolver
	Refresher *Refresher
	Updater   *Updater
	Queue     JobQueue
}

func NewFederation(database *db.DB, conf *util.AppConfig, signer *Signer, queue JobQueue) *Federation {
	fetcher := NewFetcher(conf, signer)
	webfinger := NewWebfingerResolver(database, nil, conf)

	resolver := &Resolver{
		db:        database,
		fetcher:   fetcher,
		webfinger: webfinger,
		queue:     queue,
	}
	updater := &Updater{
		db:       database,
		fetcher:  fetcher,
		resolver: resolver,
	}
	refresher := &Refresher{
		db:        database,
		fetcher:   fetcher,
		webfinger: webfinger,
		updater:   updater,
	}
	resolver.refresher = refresher

	return &Federation{
		DB:        database,
		Conf:      conf,
		Fetcher:   fetcher,
		Webfinger: webfinger,
		Resolver:  resolver,
		Refresher: refresher,
		Updater:   updater,
		Queue:     queue,
	}
}

// ServerActorUrl is the URL of this instance's Application actor.
func ServerActorUrl(conf *util.AppConfig) string {
	return fmt.Sprintf("%s/accounts/%s", conf.BaseUrl(), util.Name)
}

// EnsureServerActor creates the instance's own Application actor on
// first start. Its key signs outbound federation fetches.
func EnsureServerActor(database *db.DB, conf *util.AppConfig) (*domain.Actor, error) {
	actorUrl := ServerActorUrl(conf)

	actor, err := database.ReadActorByUrl(actorUrl)
	if err != nil {
		return nil, err
	}
	if actor != nil {
		return actor, nil
	}

	log.Printf("Creating server actor %s", actorUrl)
	keypair := util.GeneratePemKeypair()
	now := time.Now()
	actor = &domain.Actor{
		Id:                uuid.New(),
		Url:               actorUrl,
		PreferredUsername: util.Name,
		Type:              domain.ActorApplication,
		InboxUrl:          fmt.Sprintf("%s/inbox", actorUrl),
		OutboxUrl:         fmt.Sprintf("%s/outbox", actorUrl),
		SharedInboxUrl:    fmt.Sprintf("%s/inbox", conf.BaseUrl()),
		PublicKeyPem:      keypair.Public,
		PrivateKeyPem:     keypair.Private,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stored, _, err := database.FindOrCreateActor(actor, nil, nil)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ServerSigner builds the outbound-fetch signing identity from the
// server actor, or nil when signing is disabled in config.
func ServerSigner(actor *domain.Actor, conf *util.AppConfig) (*Signer, error) {
	if !conf.Conf.SignFetches {
		return nil, nil
	}
	key, err := ParsePrivateKey(actor.PrivateKeyPem)
	if err != nil {
		return nil, fmt.Errorf("server actor key: %w", err)
	}
	return &Signer{
		KeyId:      fmt.Sprintf("%s#main-key", actor.Url),
		PrivateKey: key,
	}, nil
}
