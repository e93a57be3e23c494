// Package bolt provides a durable core.ThreadStore backed by a single bbolt
// database file.
//
// Layout:
//
//	threads                 threadID -> JSON core.Thread
//	messages/<threadID>     8-byte big-endian seq -> JSON core.Message
//
// Sequence positions come from the per-thread bucket's NextSequence inside the
// same write transaction that stores the message, so allocation and commit
// are one atomic step and bolt's single-writer lock serializes appends.
package bolt

import (
	"context"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/boltutil"
	"github.com/hupe1980/threadmem/logging"
)

var (
	threadsBucket  = []byte("threads")
	messagesBucket = []byte("messages")
)

// Options configures the bolt ThreadStore.
type Options struct {
	Logger logging.Logger
	Now    func() time.Time
}

// Store is a bbolt backed ThreadStore.
type Store struct {
	db     *bbolt.DB
	ownsDB bool
	opts   Options
}

// New wraps an already opened database. The caller keeps ownership of db.
func New(db *bbolt.DB, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := boltutil.EnsureBuckets(db, threadsBucket, messagesBucket); err != nil {
		return nil, err
	}
	return &Store{db: db, opts: opts}, nil
}

// Open opens the database file at path and returns a Store owning it.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	db, err := boltutil.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := New(db, optFns...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// DB exposes the underlying database so other stores can share the file.
func (s *Store) DB() *bbolt.DB { return s.db }

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func notFound(threadID string) error {
	return fmt.Errorf("%w: thread %q", core.ErrNotFound, threadID)
}

func (s *Store) loadThread(tx *bbolt.Tx, threadID string) (*core.Thread, error) {
	var th core.Thread
	found, err := boltutil.GetJSON(tx.Bucket(threadsBucket), []byte(threadID), &th)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound(threadID)
	}
	return &th, nil
}

// messageLog returns the message bucket for a thread that is known to exist.
func messageLog(tx *bbolt.Tx, threadID string) *bbolt.Bucket {
	return tx.Bucket(messagesBucket).Bucket([]byte(threadID))
}

// CreateThread registers a new thread owned by resourceID.
func (s *Store) CreateThread(ctx context.Context, resourceID, title string) (*core.Thread, error) {
	th, err := core.NewThread(resourceID, title)
	if err != nil {
		return nil, err
	}
	th.CreatedAt = s.opts.Now()
	th.UpdatedAt = th.CreatedAt

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(th.ID)); err != nil {
			return err
		}
		return boltutil.PutJSON(tx.Bucket(threadsBucket), []byte(th.ID), th)
	})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	s.opts.Logger.Debug("thread.create", "thread_id", th.ID, "resource_id", resourceID)
	return th, nil
}

// GetThread loads a thread record.
func (s *Store) GetThread(ctx context.Context, threadID string) (*core.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var th *core.Thread
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		th, err = s.loadThread(tx, threadID)
		return err
	})
	return th, err
}

// ListThreads scans all thread records and returns the resource's threads
// ordered by creation time. Malformed records are skipped.
func (s *Store) ListThreads(ctx context.Context, resourceID string) ([]*core.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []*core.Thread{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(threadsBucket).ForEach(func(k, v []byte) error {
			var th core.Thread
			if err := boltutil.GetJSONBytes(v, &th); err != nil {
				s.opts.Logger.Warn("thread.list.skip_malformed", "thread_id", string(k), "error", err.Error())
				return nil
			}
			if th.ResourceID == resourceID {
				out = append(out, &th)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	core.SortThreads(out)
	return out, nil
}

// UpdateThread replaces the title (unless empty) and merges metadata.
func (s *Store) UpdateThread(ctx context.Context, threadID, title string, metadata map[string]string) (*core.Thread, error) {
	var th *core.Thread
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if th, err = s.loadThread(tx, threadID); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		th.ApplyUpdate(title, metadata, s.opts.Now())
		return boltutil.PutJSON(tx.Bucket(threadsBucket), []byte(threadID), th)
	})
	if err != nil {
		return nil, err
	}
	return th, nil
}

// DeleteThread removes the thread record and its message bucket in one
// transaction.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := s.loadThread(tx, threadID); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := tx.Bucket(threadsBucket).Delete([]byte(threadID)); err != nil {
			return err
		}
		msgs := tx.Bucket(messagesBucket)
		if msgs.Bucket([]byte(threadID)) != nil {
			if err := msgs.DeleteBucket([]byte(threadID)); err != nil {
				return err
			}
		}
		s.opts.Logger.Info("thread.delete", "thread_id", threadID)
		return nil
	})
}

// AppendMessage allocates the next sequence position and stores msg in a
// single write transaction.
func (s *Store) AppendMessage(ctx context.Context, threadID string, msg core.Message) (int64, error) {
	if err := core.ValidateMessage(msg); err != nil {
		return 0, err
	}
	var seq int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		th, err := s.loadThread(tx, threadID)
		if err != nil {
			return err
		}
		b := messageLog(tx, threadID)
		if b == nil {
			return notFound(threadID)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = int64(next) - 1

		stored := msg.Clone()
		stored.ThreadID = threadID
		stored.Seq = seq
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = s.opts.Now()
		}
		if err := boltutil.PutJSON(b, boltutil.Itob(seq), stored); err != nil {
			return err
		}
		th.UpdatedAt = stored.CreatedAt
		return boltutil.PutJSON(tx.Bucket(threadsBucket), []byte(threadID), th)
	})
	if err != nil {
		return 0, err
	}
	s.opts.Logger.Debug("thread.append", "thread_id", threadID, "seq", seq, "role", string(msg.Role))
	return seq, nil
}

// GetMessage performs a point read by reference.
func (s *Store) GetMessage(ctx context.Context, ref core.MessageRef) (core.Message, error) {
	if err := ctx.Err(); err != nil {
		return core.Message{}, err
	}
	var msg core.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := messageLog(tx, ref.ThreadID)
		if b == nil {
			return notFound(ref.ThreadID)
		}
		if ref.Seq < 0 {
			return fmt.Errorf("%w: message %s", core.ErrNotFound, ref)
		}
		found, err := boltutil.GetJSON(b, boltutil.Itob(ref.Seq), &msg)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: message %s", core.ErrNotFound, ref)
		}
		return nil
	})
	return msg, err
}

// GetRecentMessages walks the thread's bucket backwards from the newest key.
func (s *Store) GetRecentMessages(ctx context.Context, threadID string, limit int) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []core.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := messageLog(tx, threadID)
		if b == nil {
			return notFound(threadID)
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) == limit {
				break
			}
			var m core.Message
			if err := boltutil.GetJSONBytes(v, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetMessagesInRange seeks to the clamped lower bound and reads forward.
func (s *Store) GetMessagesInRange(ctx context.Context, threadID string, center int64, before, after int) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []core.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := messageLog(tx, threadID)
		if b == nil {
			return notFound(threadID)
		}
		lo, hi, ok := core.RangeBounds(int64(b.Sequence()), center, before, after)
		if !ok {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(boltutil.Itob(lo)); k != nil && boltutil.Btoi(k) <= hi; k, v = c.Next() {
			var m core.Message
			if err := boltutil.GetJSONBytes(v, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
