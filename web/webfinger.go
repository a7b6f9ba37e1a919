package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vidfed/vidfed/db"
	"github.com/vidfed/vidfed/util"
)

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []webfingerLink `json:"links"`
}

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

// GetWebfinger answers acct: lookups for local actors only. A resource
// naming another host, or an unknown name, is a lookup failure.
func GetWebfinger(database *db.DB, resource string, conf *util.AppConfig) (string, error) {
	if !strings.HasPrefix(resource, "acct:") {
		return "", fmt.Errorf("unsupported resource %q", resource)
	}

	handle := strings.TrimPrefix(resource, "acct:")
	name, host, found := strings.Cut(handle, "@")
	if name == "" {
		return "", fmt.Errorf("empty name in resource %q", resource)
	}
	if found && host != conf.Conf.SslDomain {
		return "", fmt.Errorf("resource %q is not local", resource)
	}

	actor, err := database.ReadLocalActorByName(name)
	if err != nil {
		return "", err
	}
	if actor == nil {
		return "", fmt.Errorf("no local actor %q", name)
	}

	body, err := json.Marshal(&webfingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", actor.PreferredUsername, conf.Conf.SslDomain),
		Links: []webfingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actor.Url,
			},
		},
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func GetWebfingerNotFound() string {
	return `{"detail":"Not Found"}`
}
