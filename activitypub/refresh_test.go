package activitypub

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidfed/vidfed/domain"
)

// seedStaleActor stores a remote person whose cache TTL has long
// expired.
func seedStaleActor(t *testing.T, federation *Federation, actorUrl, username string) *domain.Actor {
	t.Helper()
	stale := time.Now().Add(-48 * time.Hour)
	actor, created, err := federation.DB.FindOrCreateActor(&domain.Actor{
		Id:                uuid.New(),
		Url:               actorUrl,
		PreferredUsername: username,
		Type:              domain.ActorPerson,
		Host:              "remote.example",
		InboxUrl:          actorUrl + "/inbox",
		PublicKeyPem:      "PEM",
		CreatedAt:         stale,
		UpdatedAt:         stale,
	}, &domain.Account{Id: uuid.New(), Name: username}, nil)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, actor.IsOutdated())
	return actor
}

func webfingerAnswer(actorUrl string) string {
	return fmt.Sprintf(`{"links":[{"rel":"self","href":%q}]}`, actorUrl)
}

func TestRefreshIfNeededFreshActorFastPath(t *testing.T) {
	var fetches atomic.Int64
	federation, _ := newTestFederation(t, docTransport(nil, &fetches))

	fresh := &domain.Actor{
		Id:        uuid.New(),
		Url:       "https://remote.example/accounts/alice",
		Host:      "remote.example",
		UpdatedAt: time.Now(),
	}

	result := federation.Refresher.RefreshIfNeeded(context.Background(), fresh)
	assert.False(t, result.Refreshed)
	assert.Equal(t, fresh, result.Actor)
	assert.Zero(t, fetches.Load())
}

func TestRefreshIfNeededUpdatesActor(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Path == "/.well-known/webfinger":
			return jsonResponse(200, webfingerAnswer(actorUrl)), nil
		case strings.HasSuffix(r.URL.Path, "/followers"):
			return jsonResponse(200, `{"totalItems":42}`), nil
		case r.URL.String() == actorUrl:
			return jsonResponse(200, personDoc(actorUrl, "alice")), nil
		}
		return jsonResponse(404, `{}`), nil
	})
	federation, _ := newTestFederation(t, transport)

	stale := seedStaleActor(t, federation, actorUrl, "alice")

	result := federation.Refresher.RefreshIfNeeded(context.Background(), stale)
	require.NotNil(t, result.Actor)
	assert.True(t, result.Refreshed)
	assert.Equal(t, 42, result.Actor.FollowersCount)
	assert.False(t, result.Actor.IsOutdated(), "refresh must reset the freshness clock")

	account, err := federation.DB.ReadAccountById(*result.Actor.AccountId)
	require.NoError(t, err)
	assert.Equal(t, "Display alice", account.Name)
}

func TestRefreshIfNeededPurgesOn404(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"
	federation, _ := newTestFederation(t, docTransport(nil, nil))

	stale := seedStaleActor(t, federation, actorUrl, "alice")

	result := federation.Refresher.RefreshIfNeeded(context.Background(), stale)
	assert.Nil(t, result.Actor)
	assert.False(t, result.Refreshed)

	gone, err := federation.DB.ReadActorByUrl(actorUrl)
	require.NoError(t, err)
	assert.Nil(t, gone, "actor must be purged after an authoritative 404")
}

func TestRefreshIfNeededKeepsStaleActorOnFailure(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(500, `{}`), nil
	})
	federation, _ := newTestFederation(t, transport)

	stale := seedStaleActor(t, federation, actorUrl, "alice")

	result := federation.Refresher.RefreshIfNeeded(context.Background(), stale)
	require.NotNil(t, result.Actor)
	assert.False(t, result.Refreshed)
	assert.Equal(t, stale.Id, result.Actor.Id, "caller keeps the stale copy when refresh fails")

	kept, err := federation.DB.ReadActorByUrl(actorUrl)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestRefreshIfNeededDeduplicatesConcurrentCallers(t *testing.T) {
	actorUrl := "https://remote.example/accounts/alice"

	var actorFetches atomic.Int64
	firstFetch := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Path == "/.well-known/webfinger":
			return jsonResponse(200, webfingerAnswer(actorUrl)), nil
		case strings.HasSuffix(r.URL.Path, "/followers"):
			return jsonResponse(200, `{"totalItems":1}`), nil
		case r.URL.String() == actorUrl:
			actorFetches.Add(1)
			once.Do(func() { close(firstFetch) })
			<-release
			return jsonResponse(200, personDoc(actorUrl, "alice")), nil
		}
		return jsonResponse(404, `{}`), nil
	})
	federation, _ := newTestFederation(t, transport)

	stale := seedStaleActor(t, federation, actorUrl, "alice")

	const callers = 5
	results := make([]RefreshResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = federation.Refresher.RefreshIfNeeded(context.Background(), stale)
		}(i)
	}

	// Hold the single in-flight fetch open until every caller had a
	// chance to join it, then let it finish.
	<-firstFetch
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), actorFetches.Load(), "concurrent refreshes must collapse into one fetch")
	for i := 0; i < callers; i++ {
		require.NotNil(t, results[i].Actor)
		assert.True(t, results[i].Refreshed)
		assert.Equal(t, results[0].Actor.UpdatedAt, results[i].Actor.UpdatedAt)
	}
}
