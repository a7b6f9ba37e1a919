package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/util"
)

var ErrWebfingerSelfLink = errors.New("webfinger document has no usable self link")

// WebfingerLink is one entry of a webfinger link set.
type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

// WebfingerDocument is the response shape of a /.well-known/webfinger
// query. Links stays raw until resolution so a non-array link set can
// be rejected instead of silently decoded to nothing.
type WebfingerDocument struct {
	Subject string          `json:"subject"`
	Links   json.RawMessage `json:"links"`
}

// WebfingerResolver maps a "name@host" handle to a canonical actor
// URL. The HTTP client is injected so tests can use a fake transport.
type WebfingerResolver struct {
	db     *db.DB
	client *http.Client
	conf   *util.AppConfig
}

func NewWebfingerResolver(database *db.DB, client *http.Client, conf *util.AppConfig) *WebfingerResolver {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(conf.Conf.FetchTimeoutSec) * time.Second}
	}
	return &WebfingerResolver{db: database, client: client, conf: conf}
}

// Resolve turns "name@host" (or a bare local "name") into the actor
// URL. Local handles are answered from the repository and never hit
// the network. The returned URL is the trust anchor for the subsequent
// actor fetch, so remote answers are validated strictly.
func (r *WebfingerResolver) Resolve(ctx context.Context, handle string) (string, error) {
	name := handle
	host := ""
	if at := strings.Index(handle, "@"); at >= 0 {
		name = handle[:at]
		host = handle[at+1:]
	}
	if name == "" {
		return "", fmt.Errorf("invalid handle %q", handle)
	}

	if host == "" || host == r.conf.Conf.SslDomain {
		actor, err := r.db.ReadLocalActorByName(name)
		if err != nil {
			return "", err
		}
		if actor == nil {
			return "", fmt.Errorf("local actor %q not found", name)
		}
		return actor.Url, nil
	}

	return r.resolveRemote(ctx, name, host)
}

func (r *WebfingerResolver) resolveRemote(ctx context.Context, name, host string) (string, error) {
	query := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s",
		host, url.QueryEscape(fmt.Sprintf("%s@%s", name, host)))

	req, err := http.NewRequestWithContext(ctx, "GET", query, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webfinger %s@%s: %w", name, host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("webfinger %s@%s: status %d", name, host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("webfinger %s@%s: read body: %w", name, host, err)
	}

	var doc WebfingerDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("webfinger %s@%s: malformed JSON: %w", name, host, err)
	}

	var links []WebfingerLink
	if err := json.Unmarshal(doc.Links, &links); err != nil {
		return "", fmt.Errorf("webfinger %s@%s: links is not an array: %w", name, host, err)
	}

	for _, link := range links {
		if link.Rel != "self" {
			continue
		}
		if !IsAbsoluteUrl(link.Href) {
			return "", fmt.Errorf("webfinger %s@%s: self link %q: %w", name, host, link.Href, ErrWebfingerSelfLink)
		}
		return link.Href, nil
	}

	return "", fmt.Errorf("webfinger %s@%s: %w", name, host, ErrWebfingerSelfLink)
}
