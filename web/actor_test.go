package web

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetActorDocumentAccount(t *testing.T) {
	database := newTestDB(t)
	actor := createLocalAccount(t, database, "alice")

	body, err := GetActorDocument(database, "alice", false)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, actor.Url, doc["id"])
	assert.Equal(t, "Person", doc["type"])
	assert.Equal(t, "alice", doc["preferredUsername"])
	assert.Equal(t, actor.InboxUrl, doc["inbox"])
	assert.Equal(t, "alice bio", doc["summary"])

	publicKey := doc["publicKey"].(map[string]any)
	assert.Equal(t, actor.Url+"#main-key", publicKey["id"])
	assert.Equal(t, actor.Url, publicKey["owner"])
	assert.Equal(t, "PEM", publicKey["publicKeyPem"])

	endpoints := doc["endpoints"].(map[string]any)
	assert.Equal(t, actor.SharedInboxUrl, endpoints["sharedInbox"])
}

func TestGetActorDocumentChannel(t *testing.T) {
	database := newTestDB(t)
	owner := createLocalAccount(t, database, "alice")
	channel := createLocalChannel(t, database, "cooking", owner)

	body, err := GetActorDocument(database, "cooking-channel", true)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, channel.Url, doc["id"])
	assert.Equal(t, "Group", doc["type"])
	assert.Equal(t, owner.Url, doc["attributedTo"], "channel document must attribute its owning account")
}

func TestGetActorDocumentTypePinning(t *testing.T) {
	database := newTestDB(t)
	owner := createLocalAccount(t, database, "alice")
	createLocalChannel(t, database, "cooking", owner)

	// The account route must not serve channels, and vice versa
	_, err := GetActorDocument(database, "cooking-channel", false)
	assert.Error(t, err)
	_, err = GetActorDocument(database, "alice", true)
	assert.Error(t, err)
	_, err = GetActorDocument(database, "nobody", false)
	assert.Error(t, err)
}
