package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "event/"

// DefaultLockTimeout bounds how long an operation waits for another process
// to release the journal directory.
const DefaultLockTimeout = 5 * time.Second

// Badger stores events in a local BadgerDB directory.
//
// Badger allows one process per directory, while pgha runs several at once
// (failover and its repair child, watch and status, node and trigger). The
// database is therefore opened for each operation and closed right after it;
// a directory held by another process is retried until the lock timeout.
type Badger struct {
	opts        badger.Options
	lockTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// OpenBadger opens (or creates) a journal at path. lockTimeout <= 0 uses
// DefaultLockTimeout.
func OpenBadger(path string, lockTimeout time.Duration) (*Badger, error) {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	b := &Badger{
		opts: badger.DefaultOptions(path).
			WithLogger(nil).
			WithNumVersionsToKeep(1).
			WithMemTableSize(8 << 20),
		lockTimeout: lockTimeout,
	}

	// Create the directory and check it is a usable database
	err := b.with(context.Background(), func(*badger.DB) error { return nil })
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Badger) Append(ctx context.Context, ev Event) error {
	ev = prepare(ev)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	return b.with(ctx, func(db *badger.DB) error {
		return db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(badgerPrefix+sortKey(ev)), data)
		})
	})
}

func (b *Badger) List(ctx context.Context, limit int) ([]Event, error) {
	var out []Event

	err := b.with(ctx, func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Reverse = true
			opts.Prefix = []byte(badgerPrefix)
			it := txn.NewIterator(opts)
			defer it.Close()

			// Reverse iteration starts from the last key under the prefix
			seek := append([]byte(badgerPrefix), 0xFF)
			for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var ev Event
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &ev)
				}); err != nil {
					return fmt.Errorf("decode event %s: %w", it.Item().Key(), err)
				}
				out = append(out, ev)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// with opens the database, runs fn and closes it again
func (b *Badger) with(ctx context.Context, fn func(db *badger.DB) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	db, err := b.open(ctx)
	if err != nil {
		return err
	}
	if err := fn(db); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close badger journal: %w", err)
	}
	return nil
}

func (b *Badger) open(ctx context.Context) (*badger.DB, error) {
	deadline := time.Now().Add(b.lockTimeout)
	backoff := 10 * time.Millisecond

	for {
		db, err := badger.Open(b.opts)
		if err == nil {
			return db, nil
		}
		if !isLocked(err) || time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to open badger journal: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to open badger journal: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

// isLocked reports badger's directory lock error. Badger formats the cause
// into the message, so there is nothing to match with errors.Is.
func isLocked(err error) bool {
	return strings.Contains(err.Error(), "acquire directory lock")
}
