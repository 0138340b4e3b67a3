package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/andrew/rag-chat/pkg/models"
)

var bucketSessions = []byte("sessions")

// BoltStore implements Store on a bbolt file. Each session is a nested
// bucket keyed by a big-endian sequence number, so cursor order is append
// order.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// sessionKey prefixes the id because bbolt rejects empty bucket names.
func sessionKey(sessionID string) []byte {
	return []byte("s:" + sessionID)
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append writes msgs in one bbolt transaction.
func (s *BoltStore) Append(_ context.Context, sessionID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketSessions).CreateBucketIfNotExists(sessionKey(sessionID))
		if err != nil {
			return fmt.Errorf("failed to create session bucket: %w", err)
		}
		for _, msg := range msgs {
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			if err := b.Put(seqKey(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns the session's messages in append order.
func (s *BoltStore) List(_ context.Context, sessionID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions).Bucket(sessionKey(sessionID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var msg models.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Clear deletes the session bucket.
func (s *BoltStore) Clear(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketSessions).DeleteBucket(sessionKey(sessionID))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// ClearAll drops and recreates the sessions bucket.
func (s *BoltStore) ClearAll(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSessions); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketSessions)
		return err
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
