package domain

import (
	"encoding/json"
)

type ActivityType string

const (
	ActivityCreate   ActivityType = "Create"
	ActivityUpdate   ActivityType = "Update"
	ActivityDelete   ActivityType = "Delete"
	ActivityFollow   ActivityType = "Follow"
	ActivityAccept   ActivityType = "Accept"
	ActivityReject   ActivityType = "Reject"
	ActivityAnnounce ActivityType = "Announce"
	ActivityUndo     ActivityType = "Undo"
	ActivityLike     ActivityType = "Like"
	ActivityDislike  ActivityType = "Dislike"
	ActivityView     ActivityType = "View"
	ActivityFlag     ActivityType = "Flag"
)

// Activity is a transient federation message. Activities are validated
// and forwarded, never persisted as a first-class table in this core.
// Actor and Object stay raw because either can be a URL string, an
// embedded object, or (for Undo) another activity.
type Activity struct {
	Id      string          `json:"id"`
	Type    ActivityType    `json:"type"`
	Actor   json.RawMessage `json:"actor,omitempty"`
	Object  json.RawMessage `json:"object,omitempty"`
	Content string          `json:"content,omitempty"`
	To      []string        `json:"to,omitempty"`
	Cc      []string        `json:"cc,omitempty"`
}

// ObjectRef tries to reduce a raw actor/object field to a single URL:
// either the field is a plain string or an embedded object carrying an
// "id". The second return is false when neither form applies.
func ObjectRef(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var obj struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Id != "" {
		return obj.Id, true
	}
	return "", false
}

// ActorRef returns the URL of the activity's actor.
func (a *Activity) ActorRef() (string, bool) {
	return ObjectRef(a.Actor)
}

// ObjectType returns the "type" field of an embedded object, or "" if
// the object is a bare URL reference.
func (a *Activity) ObjectType() string {
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(a.Object, &obj); err != nil {
		return ""
	}
	return obj.Type
}
