package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/vidfed/vidfed/domain"
)

const (
	sqlActorColumns = `a.id, a.url, a.preferred_username, a.type, a.host,
		a.inbox_url, a.outbox_url, a.followers_url, a.following_url, a.shared_inbox_url,
		a.public_key_pem, a.private_key_pem, a.followers_count, a.following_count,
		a.remote_created_at, a.created_at, a.updated_at, acc.id, ch.id`

	sqlActorJoins = ` FROM actors a
		LEFT JOIN accounts acc ON acc.actor_id = a.id
		LEFT JOIN channels ch ON ch.actor_id = a.id`

	sqlSelectActorByUrl         = `SELECT ` + sqlActorColumns + sqlActorJoins + ` WHERE a.url = ?`
	sqlSelectActorByNameAndHost = `SELECT ` + sqlActorColumns + sqlActorJoins + ` WHERE a.preferred_username = ? AND a.host = ?`
	sqlSelectActorById          = `SELECT ` + sqlActorColumns + sqlActorJoins + ` WHERE a.id = ?`

	sqlInsertActor = `INSERT OR IGNORE INTO actors(id, url, preferred_username, type, host,
		inbox_url, outbox_url, followers_url, following_url, shared_inbox_url,
		public_key_pem, private_key_pem, followers_count, following_count,
		remote_created_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpdateActor = `UPDATE actors SET url = ?, preferred_username = ?, type = ?, host = ?,
		inbox_url = ?, outbox_url = ?, followers_url = ?, following_url = ?, shared_inbox_url = ?,
		public_key_pem = ?, followers_count = ?, following_count = ?, remote_created_at = ?,
		updated_at = ? WHERE id = ?`

	sqlInsertAccount          = `INSERT INTO accounts(id, name, description, actor_id, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlUpdateAccount          = `UPDATE accounts SET name = ?, description = ? WHERE id = ?`
	sqlSelectAccountById      = `SELECT id, name, description, actor_id, created_at FROM accounts WHERE id = ?`
	sqlSelectAccountByActorId = `SELECT id, name, description, actor_id, created_at FROM accounts WHERE actor_id = ?`

	sqlInsertChannel     = `INSERT INTO channels(id, name, description, support, actor_id, owner_account_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateChannel     = `UPDATE channels SET name = ?, description = ?, support = ?, owner_account_id = ? WHERE id = ?`
	sqlSelectChannelById = `SELECT id, name, description, support, actor_id, owner_account_id, created_at FROM channels WHERE id = ?`

	sqlDeleteActor                = `DELETE FROM actors WHERE id = ?`
	sqlDeleteAccountByActor       = `DELETE FROM accounts WHERE actor_id = ?`
	sqlDeleteChannelByActor       = `DELETE FROM channels WHERE actor_id = ?`
	sqlDeleteImagesByActor        = `DELETE FROM actor_images WHERE actor_id = ?`
	sqlSelectChannelActorsByOwner = `SELECT ch.actor_id FROM channels ch
		INNER JOIN accounts acc ON acc.id = ch.owner_account_id WHERE acc.actor_id = ?`

	sqlDeleteImageByKey    = `DELETE FROM actor_images WHERE actor_id = ? AND type = ? AND width = ?`
	sqlInsertImage         = `INSERT INTO actor_images(id, actor_id, type, width, file_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectImagesByActor = `SELECT id, actor_id, type, width, file_url, created_at FROM actor_images WHERE actor_id = ? ORDER BY type, width`
)

func scanActor(row interface{ Scan(...any) error }) (*domain.Actor, error) {
	var a domain.Actor
	var remoteCreatedAt sql.NullTime
	var accountId, channelId sql.NullString
	err := row.Scan(&a.Id, &a.Url, &a.PreferredUsername, &a.Type, &a.Host,
		&a.InboxUrl, &a.OutboxUrl, &a.FollowersUrl, &a.FollowingUrl, &a.SharedInboxUrl,
		&a.PublicKeyPem, &a.PrivateKeyPem, &a.FollowersCount, &a.FollowingCount,
		&remoteCreatedAt, &a.CreatedAt, &a.UpdatedAt, &accountId, &channelId)
	if err != nil {
		return nil, err
	}
	if remoteCreatedAt.Valid {
		t := remoteCreatedAt.Time
		a.RemoteCreatedAt = &t
	}
	if accountId.Valid {
		if id, err := uuid.Parse(accountId.String); err == nil {
			a.AccountId = &id
		}
	}
	if channelId.Valid {
		if id, err := uuid.Parse(channelId.String); err == nil {
			a.ChannelId = &id
		}
	}
	return &a, nil
}

// ReadActorByUrl loads an actor with its owner row keys. Returns
// (nil, nil) on a cache miss.
func (db *DB) ReadActorByUrl(url string) (*domain.Actor, error) {
	actor, err := scanActor(db.db.QueryRow(sqlSelectActorByUrl, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return actor, err
}

func (db *DB) ReadActorById(id uuid.UUID) (*domain.Actor, error) {
	actor, err := scanActor(db.db.QueryRow(sqlSelectActorById, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return actor, err
}

func (db *DB) ReadActorByNameAndHost(name, host string) (*domain.Actor, error) {
	actor, err := scanActor(db.db.QueryRow(sqlSelectActorByNameAndHost, name, host))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return actor, err
}

// ReadLocalActorByName resolves a local handle without any network hop.
func (db *DB) ReadLocalActorByName(name string) (*domain.Actor, error) {
	return db.ReadActorByNameAndHost(name, "")
}

func insertActor(tx *sql.Tx, a *domain.Actor) (bool, error) {
	var remoteCreatedAt any
	if a.RemoteCreatedAt != nil {
		remoteCreatedAt = *a.RemoteCreatedAt
	}
	res, err := tx.Exec(sqlInsertActor, a.Id.String(), a.Url, a.PreferredUsername, a.Type, a.Host,
		a.InboxUrl, a.OutboxUrl, a.FollowersUrl, a.FollowingUrl, a.SharedInboxUrl,
		a.PublicKeyPem, a.PrivateKeyPem, a.FollowersCount, a.FollowingCount,
		remoteCreatedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FindOrCreateActor atomically creates the actor together with its
// owning account or channel row, or finds the row another request
// created first. Matching is on url or, failing that, on
// (host, preferredUsername): the INSERT is an OR IGNORE so two
// concurrent creations of the same remote actor cannot both insert.
func (db *DB) FindOrCreateActor(actor *domain.Actor, account *domain.Account, channel *domain.Channel) (*domain.Actor, bool, error) {
	created := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		created = false
		inserted, err := insertActor(tx, actor)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		now := time.Now()
		if account != nil {
			if _, err := tx.Exec(sqlInsertAccount, account.Id.String(), account.Name, account.Description, actor.Id.String(), now); err != nil {
				return err
			}
		}
		if channel != nil {
			if _, err := tx.Exec(sqlInsertChannel, channel.Id.String(), channel.Name, channel.Description, channel.Support, actor.Id.String(), channel.OwnerAccountId.String(), now); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	found, err := db.ReadActorByUrl(actor.Url)
	if err != nil {
		return nil, false, err
	}
	if found == nil {
		// The url lost the race to a row keyed on (host, username).
		found, err = db.ReadActorByNameAndHost(actor.PreferredUsername, actor.Host)
		if err != nil || found == nil {
			return nil, false, err
		}
	}
	return found, created, nil
}

func (db *DB) UpdateActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var remoteCreatedAt any
		if a.RemoteCreatedAt != nil {
			remoteCreatedAt = *a.RemoteCreatedAt
		}
		_, err := tx.Exec(sqlUpdateActor, a.Url, a.PreferredUsername, a.Type, a.Host,
			a.InboxUrl, a.OutboxUrl, a.FollowersUrl, a.FollowingUrl, a.SharedInboxUrl,
			a.PublicKeyPem, a.FollowersCount, a.FollowingCount, remoteCreatedAt,
			a.UpdatedAt, a.Id.String())
		return err
	})
}

func (db *DB) ReadAccountById(id uuid.UUID) (*domain.Account, error) {
	var acc domain.Account
	err := db.db.QueryRow(sqlSelectAccountById, id.String()).Scan(&acc.Id, &acc.Name, &acc.Description, &acc.ActorId, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (db *DB) ReadAccountByActorId(actorId uuid.UUID) (*domain.Account, error) {
	var acc domain.Account
	err := db.db.QueryRow(sqlSelectAccountByActorId, actorId.String()).Scan(&acc.Id, &acc.Name, &acc.Description, &acc.ActorId, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (db *DB) ReadChannelById(id uuid.UUID) (*domain.Channel, error) {
	var ch domain.Channel
	err := db.db.QueryRow(sqlSelectChannelById, id.String()).Scan(&ch.Id, &ch.Name, &ch.Description, &ch.Support, &ch.ActorId, &ch.OwnerAccountId, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// UpdateActorAndOwner persists the actor together with its owning
// account or channel in one transaction, so a crash mid-update cannot
// split identity from ownership.
func (db *DB) UpdateActorAndOwner(a *domain.Actor, acc *domain.Account, ch *domain.Channel) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var remoteCreatedAt any
		if a.RemoteCreatedAt != nil {
			remoteCreatedAt = *a.RemoteCreatedAt
		}
		if _, err := tx.Exec(sqlUpdateActor, a.Url, a.PreferredUsername, a.Type, a.Host,
			a.InboxUrl, a.OutboxUrl, a.FollowersUrl, a.FollowingUrl, a.SharedInboxUrl,
			a.PublicKeyPem, a.FollowersCount, a.FollowingCount, remoteCreatedAt,
			a.UpdatedAt, a.Id.String()); err != nil {
			return err
		}
		if acc != nil {
			if _, err := tx.Exec(sqlUpdateAccount, acc.Name, acc.Description, acc.Id.String()); err != nil {
				return err
			}
		}
		if ch != nil {
			if _, err := tx.Exec(sqlUpdateChannel, ch.Name, ch.Description, ch.Support, ch.OwnerAccountId.String(), ch.Id.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) UpdateAccount(acc *domain.Account) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccount, acc.Name, acc.Description, acc.Id.String())
		return err
	})
}

func (db *DB) UpdateChannel(ch *domain.Channel) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateChannel, ch.Name, ch.Description, ch.Support, ch.OwnerAccountId.String(), ch.Id.String())
		return err
	})
}

// DestroyActor removes an actor together with its owner rows and
// images. Used both for orphan self-healing and as the cascade step of
// a purge.
func (db *DB) DestroyActor(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return destroyActorTx(tx, id)
	})
}

func destroyActorTx(tx *sql.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(sqlDeleteImagesByActor, id.String()); err != nil {
		return err
	}
	if _, err := tx.Exec(sqlDeleteAccountByActor, id.String()); err != nil {
		return err
	}
	if _, err := tx.Exec(sqlDeleteChannelByActor, id.String()); err != nil {
		return err
	}
	_, err := tx.Exec(sqlDeleteActor, id.String())
	return err
}

// PurgeActorByUrl deletes the actor at url with full cascade: owner
// rows, images and, for account actors, the channels the account owns
// together with their actors. Called when the remote origin answered
// an authoritative 404.
func (db *DB) PurgeActorByUrl(url string) error {
	actor, err := db.ReadActorByUrl(url)
	if err != nil || actor == nil {
		return err
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		rows, err := tx.Query(sqlSelectChannelActorsByOwner, actor.Id.String())
		if err != nil {
			return err
		}
		var ownedChannelActors []uuid.UUID
		for rows.Next() {
			var idStr string
			if err := rows.Scan(&idStr); err != nil {
				rows.Close()
				return err
			}
			if id, err := uuid.Parse(idStr); err == nil {
				ownedChannelActors = append(ownedChannelActors, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, chActorId := range ownedChannelActors {
			if err := destroyActorTx(tx, chActorId); err != nil {
				return err
			}
		}
		return destroyActorTx(tx, actor.Id)
	})
}

// ReplaceActorImages swaps the actor's avatar/banner set in a single
// transaction, keeping at most one image per (type, width).
func (db *DB) ReplaceActorImages(actorId uuid.UUID, images []domain.ActorImage) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, img := range images {
			if _, err := tx.Exec(sqlDeleteImageByKey, actorId.String(), img.Type, img.Width); err != nil {
				return err
			}
			if _, err := tx.Exec(sqlInsertImage, img.Id.String(), actorId.String(), img.Type, img.Width, img.FileUrl, time.Now()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) ReadActorImages(actorId uuid.UUID) ([]domain.ActorImage, error) {
	rows, err := db.db.Query(sqlSelectImagesByActor, actorId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.ActorImage
	for rows.Next() {
		var img domain.ActorImage
		if err := rows.Scan(&img.Id, &img.ActorId, &img.Type, &img.Width, &img.FileUrl, &img.CreatedAt); err != nil {
			return images, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
