package neosession

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
	"github.com/saulfrancisco-ruizacevedo/go-neosession/kvstore"
)

type Artist struct {
	ID     string   `crud:"id"`
	Name   string   `crud:"property:name"`
	Albums []*Album `crud:"rel:HAS_ALBUM"`
}

type Album struct {
	ID        string     `crud:"id"`
	Name      string     `crud:"property:name"`
	Artist    *Artist    `crud:"rel:HAS_ALBUM,dir:in"`
	Recording *Recording `crud:"rel:RECORDED_AS"`
}

type Recording struct {
	ID     string  `crud:"id"`
	Year   int     `crud:"property:year"`
	Album  *Album  `crud:"rel:RECORDED_AS,dir:in"`
	Studio *Studio `crud:"rel:RECORDED_IN"`
}

type Studio struct {
	ID   string `crud:"id"`
	Name string `crud:"property:name"`
}

// recordingStore counts the calls reaching the wrapped store and can be told
// to fail fetches and counts.
type recordingStore struct {
	graph.Store
	fetches   int
	requests  []graph.FetchRequest
	fetchErr  error
	countErr  error
	mergeRels int
}

func (r *recordingStore) FetchSubgraph(ctx context.Context, req graph.FetchRequest) (*graph.SubGraph, error) {
	r.fetches++
	r.requests = append(r.requests, req)
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.Store.FetchSubgraph(ctx, req)
}

func (r *recordingStore) MergeRelationship(ctx context.Context, from, to, relType string) error {
	r.mergeRels++
	return r.Store.MergeRelationship(ctx, from, to, relType)
}

func (r *recordingStore) CountNodes(ctx context.Context, label string) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.Store.CountNodes(ctx, label)
}

var errStoreDown = errors.New("connection refused")

type testEnv struct {
	factory *SessionFactory
	store   *recordingStore
	kv      *kvstore.GraphStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	is := is.New(t)

	kv := kvstore.New(kvstore.NewMemory(), kvstore.Key{"test"})
	store := &recordingStore{Store: kv}

	f, err := NewSessionFactory(store, WithTypes(Artist{}, Album{}, Recording{}, Studio{}))
	is.NoErr(err)

	return testEnv{factory: f, store: store, kv: kv}
}

// seedBeatles saves (The Beatles)-[:HAS_ALBUM]->(Please Please Me) and
// returns both entities with their assigned ids.
func seedBeatles(t *testing.T, f *SessionFactory) (*Artist, *Album) {
	t.Helper()
	is := is.New(t)

	s := f.OpenSession()
	defer s.Close()

	beatles := &Artist{Name: "The Beatles"}
	please := &Album{Name: "Please Please Me", Artist: beatles}
	beatles.Albums = append(beatles.Albums, please)

	is.NoErr(s.Save(context.Background(), beatles))
	is.True(beatles.ID != "")
	is.True(please.ID != "")

	return beatles, please
}

// seedPinkFloyd saves Pink Floyd with one album, its recording and studio.
func seedPinkFloyd(t *testing.T, f *SessionFactory) *Artist {
	t.Helper()
	is := is.New(t)

	s := f.OpenSession()
	defer s.Close()

	pinkFloyd := &Artist{Name: "Pink Floyd"}
	divisionBell := &Album{Name: "The Division Bell", Artist: pinkFloyd}
	studio := &Studio{Name: "Britannia Row Studios"}
	recording := &Recording{Album: divisionBell, Studio: studio, Year: 1994}
	divisionBell.Recording = recording
	pinkFloyd.Albums = append(pinkFloyd.Albums, divisionBell)

	is.NoErr(s.Save(context.Background(), pinkFloyd))
	return pinkFloyd
}
