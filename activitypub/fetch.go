package activitypub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/vidfed/vidfed/util"
)

// ActorDocument is the wire shape of an actor: consumed from remote
// servers and produced for our own actors.
type ActorDocument struct {
	Context           any             `json:"@context,omitempty"`
	Id                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name,omitempty"`
	Summary           string          `json:"summary,omitempty"`
	Url               string          `json:"url,omitempty"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox,omitempty"`
	Followers         string          `json:"followers,omitempty"`
	Following         string          `json:"following,omitempty"`
	Published         string          `json:"published,omitempty"`
	Support           string          `json:"support,omitempty"`
	AttributedTo      json.RawMessage `json:"attributedTo,omitempty"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox,omitempty"`
	} `json:"endpoints,omitempty"`
	PublicKey struct {
		Id           string `json:"id,omitempty"`
		Owner        string `json:"owner,omitempty"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
	Icon  json.RawMessage `json:"icon,omitempty"`
	Image json.RawMessage `json:"image,omitempty"`
}

// RemoteImage is one avatar/banner entry of an actor document. The
// icon field may be a single object or an array of widths.
type RemoteImage struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	Url       string `json:"url"`
	Width     int    `json:"width,omitempty"`
}

// ParseImages decodes an icon/image field that is either one object or
// an array of objects. Entries without a URL are dropped.
func ParseImages(raw json.RawMessage) []RemoteImage {
	if len(raw) == 0 {
		return nil
	}
	var many []RemoteImage
	if err := json.Unmarshal(raw, &many); err != nil {
		var one RemoteImage
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil
		}
		many = []RemoteImage{one}
	}
	images := many[:0]
	for _, img := range many {
		if img.Url != "" {
			images = append(images, img)
		}
	}
	return images
}

// AttributedToPerson returns the URL of the first Person attribution of
// a Group actor document.
func (d *ActorDocument) AttributedToPerson() (string, bool) {
	if len(d.AttributedTo) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(d.AttributedTo, &s); err == nil {
		return s, s != ""
	}
	var refs []struct {
		Type string `json:"type"`
		Id   string `json:"id"`
	}
	if err := json.Unmarshal(d.AttributedTo, &refs); err != nil {
		return "", false
	}
	for _, ref := range refs {
		if ref.Type == "Person" && ref.Id != "" {
			return ref.Id, true
		}
	}
	return "", false
}

// Signer holds the local server actor's signing identity for outbound
// federation fetches.
type Signer struct {
	KeyId      string
	PrivateKey *rsa.PrivateKey
}

// Fetcher performs signed HTTP GETs against remote federation
// endpoints with a bounded timeout.
type Fetcher struct {
	client *http.Client
	conf   *util.AppConfig
	signer *Signer // nil when outbound signing is disabled
}

func NewFetcher(conf *util.AppConfig, signer *Signer) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: time.Duration(conf.Conf.FetchTimeoutSec) * time.Second},
		conf:   conf,
		signer: signer,
	}
}

func (f *Fetcher) get(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	if f.signer != nil && f.conf.Conf.SignFetches {
		if err := SignRequest(req, f.signer.PrivateKey, f.signer.KeyId); err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}

	return f.client.Do(req)
}

// FetchActorDocument GETs an actor document. A transport failure is an
// error; a non-200 status or a structurally invalid document yields a
// nil document and no error (the status code tells 404 apart). A
// document whose id lives on a different host than the fetched URL is
// rejected the same way: a server may not vouch for identities it does
// not host.
func (f *Fetcher) FetchActorDocument(ctx context.Context, uri string) (*ActorDocument, int, error) {
	resp, err := f.get(ctx, uri)
	if err != nil {
		return nil, 0, fmt.Errorf("actor fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("actor fetch %s: read body: %w", uri, err)
	}

	var doc ActorDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		log.Printf("Fetcher: %s returned malformed JSON: %v", uri, err)
		return nil, resp.StatusCode, nil
	}

	if !sanitizeActorDocument(&doc) {
		log.Printf("Fetcher: %s returned structurally invalid actor document", uri)
		return nil, resp.StatusCode, nil
	}

	if !CheckUrlsSameHost(doc.Id, uri) {
		log.Printf("Fetcher: rejecting actor %s fetched from %s (host mismatch)", doc.Id, uri)
		return nil, resp.StatusCode, nil
	}

	return &doc, resp.StatusCode, nil
}

func sanitizeActorDocument(doc *ActorDocument) bool {
	if !IsAbsoluteUrl(doc.Id) {
		return false
	}
	switch doc.Type {
	case "Person", "Group", "Application":
	default:
		return false
	}
	return doc.PreferredUsername != "" &&
		doc.PublicKey.PublicKeyPem != "" &&
		IsAbsoluteUrl(doc.Inbox)
}

// FetchCollectionTotal fetches a collection URL and returns its
// totalItems, for follower/following counts. Failures count as zero,
// matching the non-fatal refresh policy.
func (f *Fetcher) FetchCollectionTotal(ctx context.Context, uri string) int {
	if uri == "" {
		return 0
	}

	resp, err := f.get(ctx, uri)
	if err != nil {
		log.Printf("Fetcher: collection fetch %s failed: %v", uri, err)
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0
	}

	var collection struct {
		TotalItems int `json:"totalItems"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&collection); err != nil {
		log.Printf("Fetcher: collection %s returned malformed JSON: %v", uri, err)
		return 0
	}
	if collection.TotalItems < 0 {
		return 0
	}
	return collection.TotalItems
}

// FetchCollectionPage fetches a collection URL and returns its raw
// body, used by the outbox crawl job.
func (f *Fetcher) FetchCollectionPage(ctx context.Context, uri string) (json.RawMessage, error) {
	resp, err := f.get(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("collection fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collection fetch %s: status %d", uri, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("collection fetch %s: read body: %w", uri, err)
	}
	return body, nil
}
