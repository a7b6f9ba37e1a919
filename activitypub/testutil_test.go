package activitypub

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/util"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/activity+json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
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

// newTestFederation wires a federation whose every outbound HTTP call
// runs through transport. No real network is ever touched.
func newTestFederation(t *testing.T, transport http.RoundTripper) (*Federation, *captureQueue) {
	t.Helper()
	queue := &captureQueue{}
	federation := NewFederation(newTestDB(t), testConf(), nil, queue)
	client := &http.Client{Transport: transport}
	federation.Fetcher.client = client
	federation.Webfinger.client = client
	return federation, queue
}

func personDoc(id, username string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "Person",
		"preferredUsername": %q,
		"name": "Display %s",
		"inbox": "%s/inbox",
		"outbox": "%s/outbox",
		"followers": "%s/followers",
		"publicKey": {"id": "%s#main-key", "owner": %q, "publicKeyPem": "PEM"}
	}`, id, username, username, id, id, id, id, id)
}

func groupDoc(id, username, ownerUrl string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "Group",
		"preferredUsername": %q,
		"attributedTo": [{"type": "Person", "id": %q}],
		"inbox": "%s/inbox",
		"outbox": "%s/outbox",
		"publicKey": {"publicKeyPem": "PEM"}
	}`, id, username, ownerUrl, id, id)
}
