// Package kvstore implements graph.Store on top of an ordered key-value
// engine. Two engines are provided: Badger, backed by BadgerDB v4 (on disk or
// in memory), and Memory, a sorted map intended for tests.
//
// Keys are hierarchical paths (e.g., ["ogm", "n", "42"]) encoded with a single
// separator byte, so a graph can live under a prefix of a shared engine.
package kvstore

import (
	"context"
	"errors"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned by an Engine when a key does not exist.
	ErrNotFound = errors.New("kvstore: not found")

	// ErrInvalidSegment is returned when an id, label or relationship type
	// contains the key separator and would corrupt the key encoding.
	ErrInvalidSegment = errors.New("kvstore: segment contains separator")
)

// Separator joins key segments in the encoded form.
const Separator byte = ':'

// Key is a hierarchical path of segments.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// child returns a copy of k extended with segs; k itself is never aliased.
func (k Key) child(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	out = append(out, k...)
	return append(out, segs...)
}

// Entry is a key-value pair yielded by List and written by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Engine is the ordered key-value engine a GraphStore is built on.
type Engine interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// List iterates over the entries below prefix in lexicographic key order.
	// An empty prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet stores all entries in a single transaction.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete removes all keys. Unknown keys are ignored.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases the resources held by the engine.
	Close() error
}

func encodeKey(k Key) []byte {
	n := 0
	for i, seg := range k {
		if i > 0 {
			n++
		}
		n += len(seg)
	}
	buf := make([]byte, 0, n)
	for i, seg := range k {
		if i > 0 {
			buf = append(buf, Separator)
		}
		buf = append(buf, seg...)
	}
	return buf
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), string(Separator)))
}

// listPrefix is the encoded scan prefix for k. The trailing separator keeps
// "a:b" from matching "a:bc".
func listPrefix(k Key) []byte {
	if len(k) == 0 {
		return nil
	}
	return append(encodeKey(k), Separator)
}
