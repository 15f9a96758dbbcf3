package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/iliyamo/storefront/internal/model"
)

var sessionBucket = []byte("sessions")

// BoltSessionStore keeps admin sessions in a single bbolt file.  It serves
// deployments that run the catalog on SQLite and want sessions in a
// separate file that survives restarts.
type BoltSessionStore struct {
	db *bolt.DB
}

// OpenBoltSessionStore opens (or creates) the session file at path.
func OpenBoltSessionStore(path string) (*BoltSessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating session directory")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening session file")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating session bucket")
	}
	return &BoltSessionStore{db: db}, nil
}

// Close releases the file lock.
func (b *BoltSessionStore) Close() error { return b.db.Close() }

func (b *BoltSessionStore) Save(_ context.Context, s *model.Session) error {
	buf, err := json.Marshal(boltSession{
		IsAdmin: s.IsAdmin, IPAddress: s.IPAddress, UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt.UnixMilli(), ExpiresAt: s.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(s.TokenHash), buf)
	})
}

func (b *BoltSessionStore) Find(_ context.Context, tokenHash string) (*model.Session, error) {
	var rec *boltSession
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get([]byte(tokenHash))
		if v == nil {
			return nil
		}
		rec = new(boltSession)
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return &model.Session{
		TokenHash: tokenHash,
		IsAdmin:   rec.IsAdmin,
		IPAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
	}, nil
}

func (b *BoltSessionStore) Delete(_ context.Context, tokenHash string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete([]byte(tokenHash))
	})
}

func (b *BoltSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	cutoff := now.UnixMilli()
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(sessionBucket)
		var stale [][]byte
		err := bk.ForEach(func(k, v []byte) error {
			var rec boltSession
			if err := json.Unmarshal(v, &rec); err != nil || rec.ExpiresAt <= cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, errors.Wrap(err, "prune sessions")
}

type boltSession struct {
	IsAdmin   bool   `json:"is_admin"`
	IPAddress string `json:"ip"`
	UserAgent string `json:"ua"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}
