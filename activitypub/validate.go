package activitypub

import (
	"encoding/json"

	"github.com/vidfed/vidfed/domain"
)

// Object types that may ride inside a Create. Comments federate as
// Note objects.
var createObjectTypes = map[string]bool{
	"View":      true,
	"Dislike":   true,
	"Flag":      true,
	"Playlist":  true,
	"CacheFile": true,
	"Note":      true,
	"Video":     true,
}

// Update additionally accepts actor shapes (profile updates).
var updateObjectTypes = map[string]bool{
	"Playlist":    true,
	"CacheFile":   true,
	"Video":       true,
	"Person":      true,
	"Group":       true,
	"Application": true,
}

// IsActivityValid checks an activity's shape without touching the
// database or the network. The type switch is a closed world: a
// federation message of unrecognized type is dropped, never forwarded.
func IsActivityValid(a *domain.Activity) bool {
	switch a.Type {
	case domain.ActivityCreate:
		return isBaseActivityValid(a) && createObjectTypes[a.ObjectType()]
	case domain.ActivityUpdate:
		return isBaseActivityValid(a) && updateObjectTypes[a.ObjectType()]
	case domain.ActivityDelete,
		domain.ActivityFollow,
		domain.ActivityAnnounce,
		domain.ActivityLike:
		return isBaseActivityValid(a) && isObjectRefValid(a.Object)
	case domain.ActivityAccept, domain.ActivityReject:
		return isBaseActivityValid(a)
	case domain.ActivityUndo:
		return isBaseActivityValid(a) && isUndoObjectValid(a)
	case domain.ActivityView:
		return isBaseActivityValid(a) && isObjectRefValid(a.Actor) && isObjectRefValid(a.Object)
	case domain.ActivityDislike:
		return isBaseActivityValid(a) && isObjectRefValid(a.Actor) && isObjectRefValid(a.Object)
	case domain.ActivityFlag:
		return isBaseActivityValid(a) && a.Content != "" && isObjectRefValid(a.Object)
	default:
		return false
	}
}

// isBaseActivityValid checks the envelope every activity must carry:
// an absolute-URL id and a resolvable actor reference.
func isBaseActivityValid(a *domain.Activity) bool {
	if !IsAbsoluteUrl(a.Id) {
		return false
	}
	actorUrl, ok := a.ActorRef()
	return ok && IsAbsoluteUrl(actorUrl)
}

func isObjectRefValid(raw json.RawMessage) bool {
	ref, ok := domain.ObjectRef(raw)
	return ok && IsAbsoluteUrl(ref)
}

// isUndoObjectValid validates the wrapped activity of an Undo against
// the checkers for Follow, Like, Dislike, Announce and Create. An Undo
// wrapping anything else -- another Undo included -- is invalid, which
// bounds the recursion to depth 1.
func isUndoObjectValid(a *domain.Activity) bool {
	var inner domain.Activity
	if err := json.Unmarshal(a.Object, &inner); err != nil {
		return false
	}
	switch inner.Type {
	case domain.ActivityFollow,
		domain.ActivityLike,
		domain.ActivityDislike,
		domain.ActivityAnnounce,
		domain.ActivityCreate:
		return IsActivityValid(&inner)
	default:
		return false
	}
}

// FlattenActivities normalizes a root inbox payload into a flat
// activity list. Collection/CollectionPage roots contribute items,
// OrderedCollection/OrderedCollectionPage roots contribute
// orderedItems, anything else is treated as a single activity.
// Elements that do not parse are dropped, not fatal.
func FlattenActivities(body json.RawMessage) []*domain.Activity {
	var envelope struct {
		Type         string            `json:"type"`
		Items        []json.RawMessage `json:"items"`
		OrderedItems []json.RawMessage `json:"orderedItems"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	var elements []json.RawMessage
	switch envelope.Type {
	case "Collection", "CollectionPage":
		elements = envelope.Items
	case "OrderedCollection", "OrderedCollectionPage":
		elements = envelope.OrderedItems
	default:
		elements = []json.RawMessage{body}
	}

	activities := make([]*domain.Activity, 0, len(elements))
	for _, element := range elements {
		var a domain.Activity
		if err := json.Unmarshal(element, &a); err != nil {
			continue
		}
		activities = append(activities, &a)
	}
	return activities
}

// FilterValidActivities drops structurally invalid activities from a
// flattened batch. Partial acceptance: one bad element never rejects
// its siblings.
func FilterValidActivities(activities []*domain.Activity) []*domain.Activity {
	valid := make([]*domain.Activity, 0, len(activities))
	for _, a := range activities {
		if IsActivityValid(a) {
			valid = append(valid, a)
		}
	}
	return valid
}
