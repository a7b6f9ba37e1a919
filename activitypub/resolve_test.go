package activitypub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidfed/vidfed/domain"
)

// docTransport serves canned actor documents by URL, 404 otherwise.
func docTransport(docs map[string]string, fetches *atomic.Int64) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if fetches != nil {
			fetches.Add(1)
		}
		url := r.URL.String()
		if body, ok := docs[url]; ok {
			return jsonResponse(200, body), nil
		}
		return jsonResponse(404, `{}`), nil
	})
}

func TestResolveActorCreatesPersonWithAccount(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"
	var fetches atomic.Int64
	federation, queue := newTestFederation(t, docTransport(map[string]string{
		actorUrl: personDoc(actorUrl, "alice"),
	}, &fetches))

	actor, err := federation.Resolver.ResolveActor(context.Background(), actorUrl, true, true)
	require.NoError(t, err)
	assert.Equal(t, actorUrl, actor.Url)
	assert.Equal(t, domain.ActorPerson, actor.Type)
	assert.Equal(t, "remote.example", actor.Host)
	require.NotNil(t, actor.AccountId)
	assert.Nil(t, actor.ChannelId)

	account, err := federation.DB.ReadAccountById(*actor.AccountId)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "Display alice", account.Name)

	// A fresh person gets both collection crawls scheduled
	require.Len(t, queue.jobs, 2)
	assert.Equal(t, domain.JobFetchOutbox, queue.jobs[0].jobType)
	assert.Equal(t, domain.JobFetchPlaylists, queue.jobs[1].jobType)

	// Second resolve is answered from the cache
	before := fetches.Load()
	again, err := federation.Resolver.ResolveActor(context.Background(), actorUrl, true, true)
	require.NoError(t, err)
	assert.Equal(t, actor.Id, again.Id)
	assert.Equal(t, before, fetches.Load())
}

func TestResolveActorConcurrentCreationIsIdempotent(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		actorUrl: personDoc(actorUrl, "alice"),
	}, nil))

	const callers = 8
	actors := make([]*domain.Actor, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor, err := federation.Resolver.ResolveActor(context.Background(), actorUrl, true, false)
			assert.NoError(t, err)
			actors[i] = actor
		}(i)
	}
	wg.Wait()

	// Every caller observes the same single row
	for i := 1; i < callers; i++ {
		require.NotNil(t, actors[i])
		assert.Equal(t, actors[0].Id, actors[i].Id)
	}
}

func TestResolveActorFollowsAlias(t *testing.T) {
	aliasUrl := "https://remote.example/@alice"
	canonicalUrl := "https://remote.example/accounts/alice"
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		aliasUrl:     personDoc(canonicalUrl, "alice"),
		canonicalUrl: personDoc(canonicalUrl, "alice"),
	}, nil))

	actor, err := federation.Resolver.ResolveActor(context.Background(), aliasUrl, true, false)
	require.NoError(t, err)
	assert.Equal(t, canonicalUrl, actor.Url, "row must be keyed by the document's own id")

	// Resolving the canonical URL later finds the same record
	again, err := federation.Resolver.ResolveActor(context.Background(), canonicalUrl, true, false)
	require.NoError(t, err)
	assert.Equal(t, actor.Id, again.Id)
}

func TestResolveActorOrphanSelfHeal(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		actorUrl: personDoc(actorUrl, "alice"),
	}, nil))

	// Simulate a creation interrupted between transactions: an actor
	// row without its account.
	doc := &ActorDocument{}
	require.NoError(t, json.Unmarshal([]byte(personDoc(actorUrl, "alice")), doc))
	orphan, err := actorFromDocument(doc)
	require.NoError(t, err)
	stored, created, err := federation.DB.FindOrCreateActor(orphan, nil, nil)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, stored.IsOrphaned())

	actor, err := federation.Resolver.ResolveActor(context.Background(), actorUrl, true, false)
	require.NoError(t, err)
	require.NotNil(t, actor.AccountId, "self-healed actor must own an account")
	assert.NotEqual(t, stored.Id, actor.Id, "orphan row must be destroyed and recreated")
}

func TestResolveActorGroupWithOwner(t *testing.T) {
	channelUrl := "https://remote.example/video-channels/cooking"
	ownerUrl := "https://remote.example/accounts/alice"
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		channelUrl: groupDoc(channelUrl, "cooking", ownerUrl),
		ownerUrl:   personDoc(ownerUrl, "alice"),
	}, nil))

	actor, err := federation.Resolver.ResolveActor(context.Background(), channelUrl, true, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ActorGroup, actor.Type)
	require.NotNil(t, actor.ChannelId)

	channel, err := federation.DB.ReadChannelById(*actor.ChannelId)
	require.NoError(t, err)
	require.NotNil(t, channel)

	owner, err := federation.DB.ReadActorByUrl(ownerUrl)
	require.NoError(t, err)
	require.NotNil(t, owner, "owner must be resolved transitively")
	require.NotNil(t, owner.AccountId)
	assert.Equal(t, *owner.AccountId, channel.OwnerAccountId)
}

func TestResolveActorGroupRejectsCrossHostAttribution(t *testing.T) {
	channelUrl := "https://remote.example/video-channels/cooking"
	forgedOwner := "https://other.example/accounts/mallory"
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		channelUrl:  groupDoc(channelUrl, "cooking", forgedOwner),
		forgedOwner: personDoc(forgedOwner, "mallory"),
	}, nil))

	_, err := federation.Resolver.ResolveActor(context.Background(), channelUrl, true, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActorHostMismatch)

	// Neither side of the forged pair may be persisted as a channel
	actor, err := federation.DB.ReadActorByUrl(channelUrl)
	require.NoError(t, err)
	assert.Nil(t, actor)
}

func TestResolveActorGroupRequiresRecursion(t *testing.T) {
	channelUrl := "https://remote.example/video-channels/cooking"
	ownerUrl := "https://remote.example/accounts/alice"
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		channelUrl: groupDoc(channelUrl, "cooking", ownerUrl),
		ownerUrl:   personDoc(ownerUrl, "alice"),
	}, nil))

	// An owner chain may be at most one level deep: a Group reached
	// with recursion disabled is refused.
	_, err := federation.Resolver.ResolveActor(context.Background(), channelUrl, false, false)
	assert.Error(t, err)
}

func TestResolveActorFetchFailures(t *testing.T) {
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		// Document id on a host other than the fetched URL
		"https://remote.example/accounts/spoof": personDoc("https://other.example/accounts/spoof", "spoof"),
	}, nil))

	_, err := federation.Resolver.ResolveActor(context.Background(), "https://remote.example/accounts/gone", true, false)
	assert.ErrorIs(t, err, ErrActorFetch)

	_, err = federation.Resolver.ResolveActor(context.Background(), "https://remote.example/accounts/spoof", true, false)
	assert.ErrorIs(t, err, ErrActorFetch)

	_, err = federation.Resolver.ResolveActor(context.Background(), "not-a-url", true, false)
	assert.ErrorIs(t, err, ErrActorFetch)
}

func TestResolveActorRef(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"
	federation, _ := newTestFederation(t, docTransport(map[string]string{
		actorUrl: personDoc(actorUrl, "alice"),
	}, nil))

	actor, err := federation.Resolver.ResolveActorRef(context.Background(),
		[]byte(`{"id":"https://remote.example/accounts/alice","type":"Person"}`), true, false)
	require.NoError(t, err)
	assert.Equal(t, actorUrl, actor.Url)

	_, err = federation.Resolver.ResolveActorRef(context.Background(), []byte(`42`), true, false)
	assert.ErrorIs(t, err, ErrActorFetch)
}
