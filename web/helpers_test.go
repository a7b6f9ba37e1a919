package web

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
	"github.com/vidfed/vidfed/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "local.example"
	conf.Conf.FetchTimeoutSec = 5
	return conf
}

// captureQueue records scheduled jobs instead of persisting them.
type captureQueue struct {
	jobs []capturedJob
}

type capturedJob struct {
	jobType string
	payload any
}

func (q *captureQueue) Schedule(jobType string, payload any) error {
	q.jobs = append(q.jobs, capturedJob{jobType: jobType, payload: payload})
	return nil
}

func newLocalActor(url, username string, actorType domain.ActorType) *domain.Actor {
	now := time.Now()
	return &domain.Actor{
		Id:                uuid.New(),
		Url:               url,
		PreferredUsername: username,
		Type:              actorType,
		InboxUrl:          url + "/inbox",
		OutboxUrl:         url + "/outbox",
		FollowersUrl:      url + "/followers",
		FollowingUrl:      url + "/following",
		SharedInboxUrl:    "https://local.example/inbox",
		PublicKeyPem:      "PEM",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func createLocalAccount(t *testing.T, database *db.DB, username string) *domain.Actor {
	t.Helper()
	actor, created, err := database.FindOrCreateActor(
		newLocalActor(fmt.Sprintf("https://local.example/accounts/%s", username), username, domain.ActorPerson),
		&domain.Account{Id: uuid.New(), Name: username, Description: username + " bio"},
		nil)
	require.NoError(t, err)
	require.True(t, created)
	return actor
}

func createLocalChannel(t *testing.T, database *db.DB, name string, owner *domain.Actor) *domain.Actor {
	t.Helper()
	username := name + "-channel"
	actor, created, err := database.FindOrCreateActor(
		newLocalActor(fmt.Sprintf("https://local.example/video-channels/%s", username), username, domain.ActorGroup),
		nil,
		&domain.Channel{Id: uuid.New(), Name: name, OwnerAccountId: *owner.AccountId})
	require.NoError(t, err)
	require.True(t, created)
	return actor
}

func createVideo(t *testing.T, database *db.DB, channelActor *domain.Actor, name string, privacy domain.VideoPrivacy, createdAt time.Time) domain.Video {
	t.Helper()
	video := domain.Video{
		Id:        uuid.New(),
		Name:      name,
		Url:       fmt.Sprintf("https://local.example/videos/%s", uuid.New()),
		Privacy:   privacy,
		ChannelId: *channelActor.ChannelId,
		CreatedAt: createdAt,
	}
	require.NoError(t, database.CreateVideo(&video))
	return video
}
