package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/vidfed/vidfed/domain"
)

const (
	sqlInsertVideo = `INSERT INTO videos(id, name, description, url, privacy, channel_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlInsertShare = `INSERT INTO video_shares(id, url, actor_id, video_id, created_at) VALUES (?, ?, ?, ?, ?)`

	// An actor's outbox: videos authored through the actor's channel
	// (or through any channel the actor's account owns), plus the
	// actor's shares, newest first.
	sqlOutboxUnion = `
		SELECT v.id, v.name, v.description, v.url, v.privacy, v.channel_id, v.created_at, '' AS share_url
		FROM videos v
		INNER JOIN channels c ON c.id = v.channel_id
		LEFT JOIN accounts acc ON acc.id = c.owner_account_id
		WHERE c.actor_id = ?1 OR acc.actor_id = ?1
		UNION ALL
		SELECT v.id, v.name, v.description, v.url, v.privacy, v.channel_id, v.created_at, s.url AS share_url
		FROM video_shares s
		INNER JOIN videos v ON v.id = s.video_id
		WHERE s.actor_id = ?1`

	sqlSelectOutboxPage = `SELECT * FROM (` + sqlOutboxUnion + `) ORDER BY created_at DESC, id LIMIT ?2 OFFSET ?3`
	sqlCountOutboxTotal = `SELECT COUNT(*) FROM (` + sqlOutboxUnion + `)`

	sqlSelectRecentPublicVideos = `SELECT v.id, v.name, v.description, v.url, v.privacy, v.channel_id, v.created_at
		FROM videos v
		INNER JOIN channels c ON c.id = v.channel_id
		INNER JOIN actors a ON a.id = c.actor_id
		WHERE v.privacy = 1 AND a.host = ''
		ORDER BY v.created_at DESC LIMIT ?`

	sqlSelectRecentPublicVideosByAccount = `SELECT v.id, v.name, v.description, v.url, v.privacy, v.channel_id, v.created_at
		FROM videos v
		INNER JOIN channels c ON c.id = v.channel_id
		INNER JOIN accounts acc ON acc.id = c.owner_account_id
		INNER JOIN actors a ON a.id = acc.actor_id
		WHERE v.privacy = 1 AND a.host = '' AND a.preferred_username = ?
		ORDER BY v.created_at DESC LIMIT ?`
)

func (db *DB) CreateVideo(v *domain.Video) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertVideo, v.Id.String(), v.Name, v.Description, v.Url, v.Privacy, v.ChannelId.String(), v.CreatedAt)
		return err
	})
}

func (db *DB) CreateVideoShare(s *domain.VideoShare) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertShare, s.Id.String(), s.Url, s.ActorId.String(), s.VideoId.String(), time.Now())
		return err
	})
}

// ReadOutboxEntries returns one page of an actor's outbox plus the
// total size of the collection.
func (db *DB) ReadOutboxEntries(actorId uuid.UUID, limit, offset int) ([]domain.OutboxEntry, int, error) {
	var total int
	if err := db.db.QueryRow(sqlCountOutboxTotal, actorId.String()).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.db.Query(sqlSelectOutboxPage, actorId.String(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.OutboxEntry
	for rows.Next() {
		var e domain.OutboxEntry
		if err := rows.Scan(&e.Video.Id, &e.Video.Name, &e.Video.Description, &e.Video.Url,
			&e.Video.Privacy, &e.Video.ChannelId, &e.Video.CreatedAt, &e.ShareUrl); err != nil {
			return entries, total, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// ReadRecentPublicVideos returns the newest locally hosted public
// videos, optionally restricted to one account's channels.
func (db *DB) ReadRecentPublicVideos(accountName string, limit int) ([]domain.Video, error) {
	var rows *sql.Rows
	var err error
	if accountName != "" {
		rows, err = db.db.Query(sqlSelectRecentPublicVideosByAccount, accountName, limit)
	} else {
		rows, err = db.db.Query(sqlSelectRecentPublicVideos, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		var v domain.Video
		if err := rows.Scan(&v.Id, &v.Name, &v.Description, &v.Url, &v.Privacy, &v.ChannelId, &v.CreatedAt); err != nil {
			return videos, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
