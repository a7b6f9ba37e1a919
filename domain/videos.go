package domain

import (
	"time"

	"github.com/google/uuid"
)

type VideoPrivacy int

const (
	VideoPublic VideoPrivacy = iota + 1
	VideoUnlisted
	VideoPrivate
)

// Video is the minimal slice of the video table this core needs to
// serve outbox collections and feeds. The full video model lives
// outside the federation layer.
type Video struct {
	Id          uuid.UUID
	Name        string
	Description string
	Url         string
	Privacy     VideoPrivacy
	ChannelId   uuid.UUID
	CreatedAt   time.Time
}

// VideoShare records a local actor re-announcing a video.
type VideoShare struct {
	Id        uuid.UUID
	Url       string
	ActorId   uuid.UUID
	VideoId   uuid.UUID
	CreatedAt time.Time
}

// OutboxEntry is one row of an actor's outbox: either an authored video
// (ShareUrl empty, rendered as Create) or a share (rendered as Announce
// wrapping ShareUrl).
type OutboxEntry struct {
	Video    Video
	ShareUrl string
}
