// Package bolt implements the durable event outbox on BoltDB, an embedded
// key/value file. Events survive restarts until every channel acknowledged
// them.
//
// Layout:
//   - bucket "events": sequence (8-byte big endian) -> JSON envelope
//   - bucket "pending/<channel>": sequence -> empty value
//   - bucket "ids": event id -> sequence, while the event is pending
//   - bucket "dead/<channel>": sequence -> JSON dead letter
//
// Sequences come from the events bucket's NextSequence, so iteration order
// of a pending bucket is append order.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.Outbox        = (*Outbox)(nil)
	_ ports.HealthChecker = (*Outbox)(nil)
)

var (
	eventsBucket = []byte("events")
	idsBucket    = []byte("ids")
)

const (
	pendingPrefix = "pending/"
	deadPrefix    = "dead/"
)

type envelope struct {
	Event   event.Event `json:"event"`
	Pending []string    `json:"pending"`
}

// Outbox is a BoltDB-backed [ports.Outbox].
type Outbox struct {
	db *bolt.DB
}

// Open opens (or creates) the outbox file at path.
func Open(path string) (*Outbox, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(eventsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(idsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init outbox: %w", err)
	}

	return &Outbox{db: db}, nil
}

// Close releases the file lock.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Name implements [ports.HealthChecker].
func (o *Outbox) Name() string {
	return "outbox"
}

// HealthCheck runs a read transaction to confirm the file is usable.
func (o *Outbox) HealthCheck(context.Context) error {
	return o.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(eventsBucket) == nil {
			return errors.New("outbox: events bucket missing")
		}
		return nil
	})
}

// Append stores ev unless an event with the same id is still pending, in
// which case the pending copy is returned.
func (o *Outbox) Append(_ context.Context, ev event.Event, channels []string) (event.Event, error) {
	if len(channels) == 0 {
		return ev, errors.New("outbox: append with no channels")
	}

	err := o.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket)
		ids := tx.Bucket(idsBucket)

		if ev.ID != "" {
			if key := ids.Get([]byte(ev.ID)); key != nil {
				if data := events.Get(key); data != nil {
					var env envelope
					if err := json.Unmarshal(data, &env); err != nil {
						return err
					}
					ev = env.Event
					return nil
				}
			}
		}

		seq, err := events.NextSequence()
		if err != nil {
			return err
		}
		ev.Sequence = seq

		data, err := json.Marshal(envelope{Event: ev, Pending: slices.Clone(channels)})
		if err != nil {
			return err
		}
		if err := events.Put(seqKey(seq), data); err != nil {
			return err
		}
		if ev.ID != "" {
			if err := ids.Put([]byte(ev.ID), seqKey(seq)); err != nil {
				return err
			}
		}

		for _, ch := range channels {
			b, err := tx.CreateBucketIfNotExists(pendingBucket(ch))
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(seq), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ev, fmt.Errorf("append event %s: %w", ev.ID, err)
	}
	return ev, nil
}

func (o *Outbox) Pending(_ context.Context, channel string, after uint64, limit int) ([]event.Event, error) {
	var out []event.Event

	err := o.db.View(func(tx *bolt.Tx) error {
		pending := tx.Bucket(pendingBucket(channel))
		if pending == nil {
			return nil
		}
		events := tx.Bucket(eventsBucket)

		c := pending.Cursor()
		for k, _ := c.Seek(seqKey(after + 1)); k != nil && (limit <= 0 || len(out) < limit); k, _ = c.Next() {
			data := events.Get(k)
			if data == nil {
				continue
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return fmt.Errorf("decode event %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, env.Event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pending %s: %w", channel, err)
	}
	return out, nil
}

// Ack is idempotent: acking an unknown or already acked sequence is a no-op.
func (o *Outbox) Ack(_ context.Context, channel string, sequence uint64) error {
	err := o.db.Update(func(tx *bolt.Tx) error {
		return ack(tx, channel, sequence)
	})
	if err != nil {
		return fmt.Errorf("ack %s/%d: %w", channel, sequence, err)
	}
	return nil
}

// DeadLetter copies the event into the channel's dead bucket and acks it in
// the same transaction. Unknown sequences are a no-op.
func (o *Outbox) DeadLetter(_ context.Context, channel string, sequence uint64, reason string) error {
	err := o.db.Update(func(tx *bolt.Tx) error {
		key := seqKey(sequence)
		data := tx.Bucket(eventsBucket).Get(key)
		if data == nil {
			return nil
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		letter, err := json.Marshal(ports.DeadLetter{Event: env.Event, Reason: reason, At: time.Now().UTC()})
		if err != nil {
			return err
		}

		dead, err := tx.CreateBucketIfNotExists(deadBucket(channel))
		if err != nil {
			return err
		}
		if err := dead.Put(key, letter); err != nil {
			return err
		}
		return ack(tx, channel, sequence)
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s/%d: %w", channel, sequence, err)
	}
	return nil
}

func (o *Outbox) DeadLetters(_ context.Context, channel string) ([]ports.DeadLetter, error) {
	var out []ports.DeadLetter
	err := o.db.View(func(tx *bolt.Tx) error {
		dead := tx.Bucket(deadBucket(channel))
		if dead == nil {
			return nil
		}
		return dead.ForEach(func(_, v []byte) error {
			var letter ports.DeadLetter
			if err := json.Unmarshal(v, &letter); err != nil {
				return err
			}
			out = append(out, letter)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("dead letters %s: %w", channel, err)
	}
	return out, nil
}

func ack(tx *bolt.Tx, channel string, sequence uint64) error {
	key := seqKey(sequence)

	if pending := tx.Bucket(pendingBucket(channel)); pending != nil {
		if err := pending.Delete(key); err != nil {
			return err
		}
	}

	events := tx.Bucket(eventsBucket)
	data := events.Get(key)
	if data == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	env.Pending = slices.DeleteFunc(env.Pending, func(c string) bool { return c == channel })
	if len(env.Pending) == 0 {
		if err := tx.Bucket(idsBucket).Delete([]byte(env.Event.ID)); err != nil {
			return err
		}
		return events.Delete(key)
	}

	updated, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return events.Put(key, updated)
}

// Len returns the number of events with at least one pending channel.
func (o *Outbox) Len() (int, error) {
	n := 0
	err := o.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(eventsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func pendingBucket(channel string) []byte {
	return []byte(pendingPrefix + channel)
}

func deadBucket(channel string) []byte {
	return []byte(deadPrefix + channel)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
