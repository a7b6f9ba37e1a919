package db

import (
	"database/sql"
	"log"
)

const (
	// Actors: one row per federated identity, local or remote. The url
	// is the primary identity; (host, preferred_username) is the second
	// unique key the race-safe create-or-find matches on.
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors (
		id TEXT NOT NULL PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		preferred_username TEXT NOT NULL,
		type TEXT NOT NULL,
		host TEXT NOT NULL DEFAULT '',
		inbox_url TEXT NOT NULL,
		outbox_url TEXT NOT NULL DEFAULT '',
		followers_url TEXT NOT NULL DEFAULT '',
		following_url TEXT NOT NULL DEFAULT '',
		shared_inbox_url TEXT NOT NULL DEFAULT '',
		public_key_pem TEXT NOT NULL DEFAULT '',
		private_key_pem TEXT NOT NULL DEFAULT '',
		followers_count INTEGER NOT NULL DEFAULT 0,
		following_count INTEGER NOT NULL DEFAULT 0,
		remote_created_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(host, preferred_username)
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_url ON actors(url);
		CREATE INDEX IF NOT EXISTS idx_actors_host ON actors(host);
	`

	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		actor_id TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateChannelsTable = `CREATE TABLE IF NOT EXISTS channels (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		support TEXT NOT NULL DEFAULT '',
		actor_id TEXT UNIQUE NOT NULL,
		owner_account_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateChannelsIndices = `
		CREATE INDEX IF NOT EXISTS idx_channels_owner_account_id ON channels(owner_account_id);
	`

	// Avatar/banner rows; replacing an image of the same width for the
	// same actor destroys the prior row.
	sqlCreateActorImagesTable = `CREATE TABLE IF NOT EXISTS actor_images (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		type TEXT NOT NULL,
		width INTEGER NOT NULL,
		file_url TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, type, width)
	)`

	sqlCreateVideosTable = `CREATE TABLE IF NOT EXISTS videos (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		url TEXT UNIQUE NOT NULL,
		privacy INTEGER NOT NULL DEFAULT 1,
		channel_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateVideosIndices = `
		CREATE INDEX IF NOT EXISTS idx_videos_channel_id ON videos(channel_id);
		CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos(created_at DESC);
	`

	sqlCreateVideoSharesTable = `CREATE TABLE IF NOT EXISTS video_shares (
		id TEXT NOT NULL PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		actor_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, video_id)
	)`

	sqlCreateVideoSharesIndices = `
		CREATE INDEX IF NOT EXISTS idx_video_shares_actor_id ON video_shares(actor_id);
	`

	// Async work queue with retry bookkeeping
	sqlCreateJobsTable = `CREATE TABLE IF NOT EXISTS jobs (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateJobsIndices = `
		CREATE INDEX IF NOT EXISTS idx_jobs_next_retry ON jobs(next_retry_at);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	migrations := []struct {
		name string
		sql  string
	}{
		{"create actors table", sqlCreateActorsTable},
		{"create actors indices", sqlCreateActorsIndices},
		{"create accounts table", sqlCreateAccountsTable},
		{"create channels table", sqlCreateChannelsTable},
		{"create channels indices", sqlCreateChannelsIndices},
		{"create actor_images table", sqlCreateActorImagesTable},
		{"create videos table", sqlCreateVideosTable},
		{"create videos indices", sqlCreateVideosIndices},
		{"create video_shares table", sqlCreateVideoSharesTable},
		{"create video_shares indices", sqlCreateVideoSharesIndices},
		{"create jobs table", sqlCreateJobsTable},
		{"create jobs indices", sqlCreateJobsIndices},
	}

	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, m := range migrations {
			if _, err := tx.Exec(m.sql); err != nil {
				log.Printf("Migration %q failed: %v", m.name, err)
				return err
			}
		}
		return nil
	})
}
