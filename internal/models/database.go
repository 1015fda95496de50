package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when no record exists at a path
var ErrNotFound = errors.New("record not found")

// Database wraps the bolthold store. Records are keyed by their document
// path (users/{uid}/...), one bucket per record type, so a Find on a type
// behaves as a collection-group query across all users.
type Database struct {
	store *bolthold.Store
}

// NewDatabase opens (or creates) the database file at path
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
		// JSON keeps explicit nulls and zero values on disk
		Encoder: json.Marshal,
		Decoder: json.Unmarshal,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// RunTransaction runs fn inside one read-write transaction. Every read and
// write made through tx commits together or not at all.
func (db *Database) RunTransaction(fn func(tx *Tx) error) error {
	return db.store.Bolt().Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{store: db.store, tx: btx})
	})
}

// Tx is a typed view over one bolt transaction
type Tx struct {
	store *bolthold.Store
	tx    *bbolt.Tx
}

func (t *Tx) get(key string, result interface{}) error {
	err := t.store.TxGet(t.tx, key, result)
	if errors.Is(err, bolthold.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (t *Tx) delete(key string, dataType interface{}) error {
	err := t.store.TxDelete(t.tx, key, dataType)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil
	}
	return err
}

// GetServer reads the server record at path
func (t *Tx) GetServer(path string) (*ServerRecord, error) {
	var rec ServerRecord
	if err := t.get(path, &rec); err != nil {
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// PutServer writes the server record at its path
func (t *Tx) PutServer(rec *ServerRecord) error {
	return t.store.TxUpsert(t.tx, rec.DocPath, rec)
}

// GetRateLimit reads the claim rate limit for uid
func (t *Tx) GetRateLimit(uid string) (*RateLimitRecord, error) {
	var rec RateLimitRecord
	path := RateLimitPath(uid)
	if err := t.get(path, &rec); err != nil {
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// PutRateLimit writes the claim rate limit for uid
func (t *Tx) PutRateLimit(uid string, rec *RateLimitRecord) error {
	rec.DocPath = RateLimitPath(uid)
	return t.store.TxUpsert(t.tx, rec.DocPath, rec)
}

// GetMedia reads users/{uid}/media/{mediaID}
func (t *Tx) GetMedia(uid, mediaID string) (*MediaRecord, error) {
	var rec MediaRecord
	path := MediaPath(uid, mediaID)
	if err := t.get(path, &rec); err != nil {
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// PutMedia writes a media record at its path
func (t *Tx) PutMedia(rec *MediaRecord) error {
	return t.store.TxUpsert(t.tx, rec.DocPath, rec)
}

// GetPlayback reads users/{uid}/playback/{mediaID}
func (t *Tx) GetPlayback(uid, mediaID string) (*PlaybackRecord, error) {
	var rec PlaybackRecord
	path := PlaybackPath(uid, mediaID)
	if err := t.get(path, &rec); err != nil {
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// PutPlayback writes a playback record for uid
func (t *Tx) PutPlayback(uid string, rec *PlaybackRecord) error {
	rec.DocPath = PlaybackPath(uid, rec.MediaID)
	return t.store.TxUpsert(t.tx, rec.DocPath, rec)
}

// DeletePlayback removes a playback record; a missing record is not an error
func (t *Tx) DeletePlayback(uid, mediaID string) error {
	return t.delete(PlaybackPath(uid, mediaID), &PlaybackRecord{})
}

// GetEnrichRateLimit reads the enrichment rate limit for uid
func (t *Tx) GetEnrichRateLimit(uid string) (*EnrichRateLimitRecord, error) {
	var rec EnrichRateLimitRecord
	path := EnrichRateLimitPath(uid)
	if err := t.get(path, &rec); err != nil {
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// PutEnrichRateLimit writes the enrichment rate limit for uid
func (t *Tx) PutEnrichRateLimit(uid string, rec *EnrichRateLimitRecord) error {
	rec.DocPath = EnrichRateLimitPath(uid)
	return t.store.TxUpsert(t.tx, rec.DocPath, rec)
}

// PutClaimReceipt records a redeemed claim token
func (t *Tx) PutClaimReceipt(rec *ClaimReceipt) error {
	rec.DocPath = ClaimReceiptPath(rec.ClaimPublicID)
	return t.store.TxUpsert(t.tx, rec.DocPath, rec)
}

// Server operations

// GetClaimReceipt reads the receipt of a redeemed claim token
func (db *Database) GetClaimReceipt(claimPublicID string) (*ClaimReceipt, error) {
	var rec ClaimReceipt
	path := ClaimReceiptPath(claimPublicID)
	if err := db.store.Get(path, &rec); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// FindPendingServerByClaimID runs the collection-group lookup for a pending
// server carrying claimPublicID
func (db *Database) FindPendingServerByClaimID(claimPublicID string) (*ServerRecord, error) {
	var servers []*ServerRecord
	query := bolthold.Where("Status").Eq(ServerStatusPending).
		And("ClaimPublicID").Eq(claimPublicID).
		Limit(1)
	if err := db.store.Find(&servers, query); err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, ErrNotFound
	}
	return servers[0], nil
}

// FindLinkedServers returns linked servers whose key prefix matches
// keyPrefix, plus linked servers stored without a prefix
func (db *Database) FindLinkedServers(keyPrefix string) ([]*ServerRecord, error) {
	var servers []*ServerRecord
	query := bolthold.Where("Status").Eq(ServerStatusLinked).
		And("KeyPrefix").In(keyPrefix, "")
	if err := db.store.Find(&servers, query); err != nil {
		return nil, err
	}
	return servers, nil
}

// TouchServer sets lastSeen on an existing server record
func (db *Database) TouchServer(ctx context.Context, path string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.RunTransaction(func(tx *Tx) error {
		server, err := tx.GetServer(path)
		if err != nil {
			return err
		}
		seen := at
		server.LastSeen = &seen
		return tx.PutServer(server)
	})
}

// GetServer reads a server record outside of a transaction
func (db *Database) GetServer(path string) (*ServerRecord, error) {
	var rec ServerRecord
	if err := db.store.Get(path, &rec); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// Media operations

// CommitMediaBatch merge-writes every upsert for uid in a single
// transaction: either all of them land or none do
func (db *Database) CommitMediaBatch(uid string, upserts []*MediaUpsert, now time.Time) error {
	return db.RunTransaction(func(tx *Tx) error {
		for _, u := range upserts {
			rec, err := tx.GetMedia(uid, u.MediaID)
			if errors.Is(err, ErrNotFound) {
				rec = &MediaRecord{DocPath: MediaPath(uid, u.MediaID), OwnerUID: uid}
			} else if err != nil {
				return fmt.Errorf("failed to read media %s: %w", u.MediaID, err)
			}
			rec.ApplyUpsert(u, now)
			if err := tx.PutMedia(rec); err != nil {
				return fmt.Errorf("failed to write media %s: %w", u.MediaID, err)
			}
		}
		return nil
	})
}

// GetMedia reads a media record outside of a transaction
func (db *Database) GetMedia(uid, mediaID string) (*MediaRecord, error) {
	var rec MediaRecord
	path := MediaPath(uid, mediaID)
	if err := db.store.Get(path, &rec); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// FindMediaMissingTMDB runs the collection-group query for media without
// a tmdbId, across all users
func (db *Database) FindMediaMissingTMDB(limit int) ([]*MediaRecord, error) {
	var medias []*MediaRecord
	query := bolthold.Where("TMDBID").MatchFunc(func(ra *bolthold.RecordAccess) (bool, error) {
		m, ok := ra.Record().(*MediaRecord)
		return ok && m.TMDBID == nil, nil
	}).Limit(limit)
	if err := db.store.Find(&medias, query); err != nil {
		return nil, err
	}
	return medias, nil
}

// Enrichment cache operations

// GetTMDBCache reads a cached TMDB lookup for uid
func (db *Database) GetTMDBCache(uid, key string) (*TMDBCacheRecord, error) {
	var rec TMDBCacheRecord
	path := TMDBCachePath(uid, key)
	if err := db.store.Get(path, &rec); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.DocPath = path
	return &rec, nil
}

// PutTMDBCache stores a TMDB lookup for uid
func (db *Database) PutTMDBCache(uid, key string, rec *TMDBCacheRecord) error {
	rec.DocPath = TMDBCachePath(uid, key)
	return db.store.Upsert(rec.DocPath, rec)
}

// Stats holds record counts reported by the status endpoint
type Stats struct {
	PendingServers int `json:"pendingServers"`
	LinkedServers  int `json:"linkedServers"`
	Media          int `json:"media"`
	ActivePlayback int `json:"activePlayback"`
}

// GetStats counts records across all users
func (db *Database) GetStats() (*Stats, error) {
	var servers []*ServerRecord
	if err := db.store.Find(&servers, nil); err != nil {
		return nil, fmt.Errorf("failed to count servers: %w", err)
	}
	var medias []*MediaRecord
	if err := db.store.Find(&medias, nil); err != nil {
		return nil, fmt.Errorf("failed to count media: %w", err)
	}
	var playback []*PlaybackRecord
	if err := db.store.Find(&playback, nil); err != nil {
		return nil, fmt.Errorf("failed to count playback: %w", err)
	}

	stats := &Stats{Media: len(medias), ActivePlayback: len(playback)}
	for _, s := range servers {
		switch s.Status {
		case ServerStatusPending:
			stats.PendingServers++
		case ServerStatusLinked:
			stats.LinkedServers++
		}
	}
	return stats, nil
}
