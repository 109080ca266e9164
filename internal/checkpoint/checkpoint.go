// Package checkpoint persists the last-applied position of an fsevent
// source across process restarts, using an on-disk bbolt database
// (one bucket, one key per source name) so that "rbh-sync replay" can
// resume a YAML/changelog stream instead of reprocessing it from
// scratch on every invocation.
package checkpoint

import (
	"encoding/binary"
	"time"

	"go.etcd.io/bbolt"

	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
)

var bucketName = []byte("positions")

// Store wraps one bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open creates/opens the bbolt file at path, creating the positions
// bucket if it does not yet exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	return &Store{db: db}, nil
}

// Last returns the last recorded position for source, or (0, false) if
// none has been recorded yet.
func (s *Store) Last(source string) (int64, bool, error) {
	var pos int64
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(source))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return rherr.New(rherr.Invalid, "checkpoint record for %q is corrupt", source)
		}
		pos = int64(binary.BigEndian.Uint64(v))
		found = true
		return nil
	})
	if err != nil {
		return 0, false, rherr.Wrap(rherr.BackendError, err)
	}
	return pos, found, nil
}

// Set records pos as the last-applied position for source.
func (s *Store) Set(source string, pos int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pos))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(source), buf[:])
	})
	if err != nil {
		return rherr.Wrap(rherr.BackendError, err)
	}
	return nil
}

// Close releases the underlying file lock.
func (s *Store) Close() error {
	return s.db.Close()
}
