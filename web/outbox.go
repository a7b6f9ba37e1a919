package web

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/domain"
)

const (
	activityPubPublic = "https://www.w3.org/ns/activitystreams#Public"

	DefaultPageSize = 10
	maxPageSize     = 50
)

// CollectionHandler loads one slice of a paginated collection,
// returning the items for [start, start+count) and the total size.
type CollectionHandler func(start, count int) ([]any, int, error)

type orderedCollection struct {
	Context      any    `json:"@context"`
	Id           string `json:"id"`
	Type         string `json:"type"`
	TotalItems   int    `json:"totalItems"`
	First        string `json:"first,omitempty"`
	PartOf       string `json:"partOf,omitempty"`
	Prev         string `json:"prev,omitempty"`
	Next         string `json:"next,omitempty"`
	OrderedItems []any  `json:"orderedItems,omitempty"`
}

// BuildOrderedCollection renders a paginated OrderedCollection. Page 0
// is the envelope carrying only totalItems and a first link; page N
// is an OrderedCollectionPage with next/prev links derived from page
// arithmetic. The same primitive serves outboxes, followers and any
// other collection by swapping the handler.
func BuildOrderedCollection(baseUrl string, page, size int, handler CollectionHandler) (string, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	var collection orderedCollection
	collection.Context = "https://www.w3.org/ns/activitystreams"

	if page <= 0 {
		_, total, err := handler(0, 0)
		if err != nil {
			return "", err
		}
		collection.Id = baseUrl
		collection.Type = "OrderedCollection"
		collection.TotalItems = total
		collection.First = pageUrl(baseUrl, 1, size)
	} else {
		items, total, err := handler((page-1)*size, size)
		if err != nil {
			return "", err
		}
		collection.Id = pageUrl(baseUrl, page, size)
		collection.Type = "OrderedCollectionPage"
		collection.TotalItems = total
		collection.PartOf = baseUrl
		collection.OrderedItems = items
		if page > 1 {
			collection.Prev = pageUrl(baseUrl, page-1, size)
		}
		if page*size < total {
			collection.Next = pageUrl(baseUrl, page+1, size)
		}
	}

	body, err := json.Marshal(&collection)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func pageUrl(baseUrl string, page, size int) string {
	if size == DefaultPageSize {
		return fmt.Sprintf("%s?page=%d", baseUrl, page)
	}
	return fmt.Sprintf("%s?page=%d&size=%d", baseUrl, page, size)
}

// GetOutbox renders a local actor's outbox: authored videos as Create
// activities, shares as Announce.
func GetOutbox(database *db.DB, name string, page, size int) (string, error) {
	actor, err := database.ReadLocalActorByName(name)
	if err != nil {
		return "", err
	}
	if actor == nil {
		return "", fmt.Errorf("no local actor %q", name)
	}

	handler := func(start, count int) ([]any, int, error) {
		entries, total, err := database.ReadOutboxEntries(actor.Id, count, start)
		if err != nil {
			return nil, 0, err
		}
		items := make([]any, 0, len(entries))
		for _, entry := range entries {
			items = append(items, outboxActivity(actor, entry))
		}
		return items, total, nil
	}

	return BuildOrderedCollection(actor.OutboxUrl, page, size, handler)
}

func outboxActivity(actor *domain.Actor, entry domain.OutboxEntry) map[string]any {
	video := entry.Video

	to := []string{actor.FollowersUrl}
	if video.Privacy == domain.VideoPublic {
		to = append(to, activityPubPublic)
	}

	if entry.ShareUrl != "" {
		return map[string]any{
			"id":     entry.ShareUrl,
			"type":   string(domain.ActivityAnnounce),
			"actor":  actor.Url,
			"to":     to,
			"object": video.Url,
		}
	}

	return map[string]any{
		"id":    fmt.Sprintf("%s/activity", video.Url),
		"type":  string(domain.ActivityCreate),
		"actor": actor.Url,
		"to":    to,
		"object": map[string]any{
			"id":           video.Url,
			"type":         "Video",
			"name":         video.Name,
			"content":      video.Description,
			"url":          video.Url,
			"attributedTo": actor.Url,
			"published":    video.CreatedAt.Format(time.RFC3339),
			"to":           to,
		},
	}
}
