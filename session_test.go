package neosession

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
)

// queryVariants covers every combination of sort, pagination and explicit depth.
func queryVariants() map[string][]QueryOption {
	byName := func() *SortOrder { return NewSortOrder().Add("name") }
	return map[string][]QueryOption{
		"ids":                       nil,
		"depth":                     {WithDepth(0)},
		"sort":                      {WithSort(byName())},
		"sort+depth":                {WithSort(byName()), WithDepth(0)},
		"pagination":                {WithPagination(Pagination{Offset: 0, Limit: 5})},
		"pagination+depth":          {WithPagination(Pagination{Offset: 0, Limit: 5}), WithDepth(0)},
		"sort+pagination":           {WithSort(byName()), WithPagination(Pagination{Offset: 0, Limit: 5})},
		"sort+pagination+depth":     {WithSort(byName()), WithPagination(Pagination{Offset: 0, Limit: 5}), WithDepth(0)},
		"unbounded":                 {WithDepth(-1)},
		"sort+pagination+unbounded": {WithSort(byName()), WithPagination(Page(0, 5)), WithDepth(-1)},
	}
}

func TestLoadAllRespectsEntityType(t *testing.T) {
	env := newTestEnv(t)
	beatles, _ := seedBeatles(t, env.factory)
	ctx := context.Background()

	for name, opts := range queryVariants() {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			s := env.factory.OpenSession()
			defer s.Close()

			artists, err := LoadAll[Artist](ctx, s, []string{beatles.ID}, opts...)
			is.NoErr(err)
			is.Equal(len(artists), 1)
			is.Equal(artists[0].Name, "The Beatles")

			albums, err := LoadAll[Album](ctx, s, []string{beatles.ID}, opts...)
			is.NoErr(err)
			is.Equal(len(albums), 0) // an artist id never yields an album
		})
	}
}

func TestLoadAllReturnsOnlyRequestedIDsOfRequestedType(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, please := seedBeatles(t, env.factory)
	ctx := context.Background()

	s := env.factory.OpenSession()
	bonJovi := &Artist{Name: "Bon Jovi"}
	is.NoErr(s.Save(ctx, bonJovi))

	opts := []QueryOption{WithSort(NewSortOrder().Add("name")), WithPagination(Page(0, 5)), WithDepth(0)}

	artists, err := LoadAll[Artist](ctx, s, []string{beatles.ID, please.ID, bonJovi.ID}, opts...)
	is.NoErr(err)
	is.Equal(len(artists), 2)
	is.Equal(artists[0].Name, "Bon Jovi")
	is.Equal(artists[1].Name, "The Beatles")

	artists, err = LoadAll[Artist](ctx, s, []string{beatles.ID}, opts...)
	is.NoErr(err)
	is.Equal(len(artists), 1)
	is.Equal(artists[0].Name, "The Beatles") // Bon Jovi must not be returned as well

	albums, err := LoadAll[Album](ctx, s, []string{beatles.ID}, opts...)
	is.NoErr(err)
	is.Equal(len(albums), 0)
}

func TestLoadAllSortsDescendingAndPaginates(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	s := env.factory.OpenSession()
	for _, name := range []string{"Abba", "Blur", "Cream", "Doors"} {
		is.NoErr(s.Save(ctx, &Artist{Name: name}))
	}

	page, err := LoadAll[Artist](ctx, s, nil,
		WithSort(NewSortOrder().Desc("name")),
		WithPagination(Page(1, 2)))
	is.NoErr(err)
	is.Equal(len(page), 2)
	is.Equal(page[0].Name, "Blur")
	is.Equal(page[1].Name, "Abba")
}

func TestLoadAllWithoutIDsLoadsEveryEntityOfType(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	seedBeatles(t, env.factory)
	seedPinkFloyd(t, env.factory)

	s := env.factory.OpenSession()
	artists, err := LoadAll[Artist](context.Background(), s, []string{}, WithSort(NewSortOrder().Add("name")))
	is.NoErr(err)
	is.Equal(len(artists), 2)
	is.Equal(artists[0].Name, "Pink Floyd")
	is.Equal(artists[1].Name, "The Beatles")
}

func TestLoadRespectsEntityType(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, _ := seedBeatles(t, env.factory)
	ctx := context.Background()

	s := env.factory.OpenSession()

	artist, err := Load[Artist](ctx, s, beatles.ID)
	is.NoErr(err)
	is.Equal(artist.Name, "The Beatles")

	album, err := Load[Album](ctx, s, beatles.ID)
	is.NoErr(err)
	is.True(album == nil)

	artist, err = Load[Artist](ctx, s, beatles.ID, WithDepth(0))
	is.NoErr(err)
	is.Equal(artist.Name, "The Beatles")

	album, err = Load[Album](ctx, s, beatles.ID, WithDepth(0))
	is.NoErr(err)
	is.True(album == nil)
}

func TestLoadUnknownIDReturnsNil(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	seedBeatles(t, env.factory)

	artist, err := Load[Artist](context.Background(), env.factory.OpenSession(), "10")
	is.NoErr(err)
	is.True(artist == nil)
}

func TestLoadReturnsSameInstanceWithinSession(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, please := seedBeatles(t, env.factory)
	ctx := context.Background()

	s := env.factory.OpenSession()
	first, err := Load[Artist](ctx, s, beatles.ID)
	is.NoErr(err)
	second, err := Load[Artist](ctx, s, beatles.ID, WithDepth(0))
	is.NoErr(err)
	is.True(first == second) // same pointer

	album, err := Load[Album](ctx, s, please.ID)
	is.NoErr(err)
	is.True(album == first.Albums[0])
	is.True(album.Artist == first) // back-reference resolves to the held instance
	is.True(s.Contains(first))
	is.True(!s.Contains(&Artist{ID: beatles.ID, Name: "The Beatles"}))

	key, ok := s.KeyOf(first)
	is.True(ok)
	is.Equal(key, EntityKey{Label: "Artist", ID: beatles.ID})
}

func TestLoadToDifferentDepthsInDifferentSessions(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	pinkFloyd := seedPinkFloyd(t, env.factory)
	ctx := context.Background()

	session1 := env.factory.OpenSession()
	pinkfloyd1, err := Load[Artist](ctx, session1, pinkFloyd.ID, WithDepth(1))
	is.NoErr(err)
	is.True(pinkfloyd1 != nil)
	is.Equal(len(pinkfloyd1.Albums), 1)
	is.True(pinkfloyd1.Albums[0].Recording == nil) // beyond depth 1

	session2 := env.factory.OpenSession()
	pinkfloyd2, err := Load[Artist](ctx, session2, pinkFloyd.ID, WithDepth(-1))
	is.NoErr(err)
	is.True(pinkfloyd2 != nil)
	is.True(pinkfloyd2 != pinkfloyd1) // sessions never share instances
	is.Equal(len(pinkfloyd2.Albums), 1)
	is.True(pinkfloyd2.Albums[0].Recording != nil)

	pinkfloyd11, err := Load[Artist](ctx, session1, pinkFloyd.ID, WithDepth(-1))
	is.NoErr(err)
	is.True(pinkfloyd11 == pinkfloyd1)
	is.Equal(len(pinkfloyd11.Albums), 1)

	recording := pinkfloyd11.Albums[0].Recording
	is.True(recording != nil)
	is.Equal(recording.Year, 1994)
	is.True(recording.Album == pinkfloyd11.Albums[0])
	is.Equal(recording.Studio.Name, "Britannia Row Studios")
}

func TestShallowReloadKeepsDeeperRelationships(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	pinkFloyd := seedPinkFloyd(t, env.factory)
	ctx := context.Background()

	s := env.factory.OpenSession()
	deep, err := Load[Artist](ctx, s, pinkFloyd.ID, WithDepth(-1))
	is.NoErr(err)
	before := s.Len()

	shallow, err := Load[Artist](ctx, s, pinkFloyd.ID, WithDepth(0))
	is.NoErr(err)
	is.True(shallow == deep)
	is.Equal(len(shallow.Albums), 1)
	is.True(shallow.Albums[0].Recording != nil) // edges are never removed by a reload
	is.Equal(s.Len(), before)
}

func TestReloadRefreshesPropertiesFromStore(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	setup := env.factory.OpenSession()
	pinkFloyd := &Artist{Name: "Pink Floyd"}
	is.NoErr(setup.Save(ctx, pinkFloyd))
	is.NoErr(setup.Clear())

	session1 := env.factory.OpenSession()
	pinkfloyd1, err := Load[Artist](ctx, session1, pinkFloyd.ID, WithDepth(1))
	is.NoErr(err)
	is.Equal(pinkfloyd1.Name, "Pink Floyd")

	session2 := env.factory.OpenSession()
	pinkfloyd2, err := Load[Artist](ctx, session2, pinkFloyd.ID, WithDepth(-1))
	is.NoErr(err)
	is.Equal(pinkfloyd2.Name, "Pink Floyd")

	pinkfloyd2.Name = "Purple Floyd"
	is.NoErr(session2.Save(ctx, pinkfloyd2))

	is.Equal(pinkfloyd1.Name, "Pink Floyd") // no implicit refresh

	pinkfloyd11, err := Load[Artist](ctx, session1, pinkFloyd.ID, WithDepth(-1))
	is.NoErr(err)
	is.True(pinkfloyd11 == pinkfloyd1)
	is.Equal(pinkfloyd11.Name, "Purple Floyd")
}

func TestReloadOverwritesLocalChanges(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, _ := seedBeatles(t, env.factory)
	ctx := context.Background()

	s := env.factory.OpenSession()
	artist, err := Load[Artist](ctx, s, beatles.ID)
	is.NoErr(err)

	artist.Name = "unsaved"
	artist, err = Load[Artist](ctx, s, beatles.ID)
	is.NoErr(err)
	is.Equal(artist.Name, "The Beatles")
}

func TestInvalidQueryFailsBeforeStoreAccess(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	s := env.factory.OpenSession()

	_, err := LoadAll[Artist](context.Background(), s, []string{"1"}, WithDepth(-2), WithPagination(Pagination{Offset: -1}))
	is.True(errors.Is(err, ErrInvalidQuery))
	is.Equal(env.store.fetches, 0)
	is.Equal(s.State(), StateEmpty)
}

func TestFailedFetchLeavesSessionUntouched(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	pinkFloyd := seedPinkFloyd(t, env.factory)
	ctx := context.Background()

	s := env.factory.OpenSession()
	artist, err := Load[Artist](ctx, s, pinkFloyd.ID, WithDepth(1))
	is.NoErr(err)
	before := s.Len()

	env.store.fetchErr = context.DeadlineExceeded
	_, err = Load[Artist](ctx, s, pinkFloyd.ID, WithDepth(-1))
	is.True(errors.Is(err, ErrStoreUnavailable))
	is.True(errors.Is(err, context.DeadlineExceeded))

	is.Equal(s.Len(), before)
	is.True(artist.Albums[0].Recording == nil)
	is.Equal(s.State(), StatePopulated)
}

func TestConversionFailureLeavesSessionUntouched(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	artistID, err := env.kv.CreateNode(ctx, []string{"Artist"}, map[string]any{"name": "Broken"})
	is.NoErr(err)
	albumID, err := env.kv.CreateNode(ctx, []string{"Album"}, map[string]any{"name": "Fine"})
	is.NoErr(err)
	recID, err := env.kv.CreateNode(ctx, []string{"Recording"}, map[string]any{"year": "nineteen"})
	is.NoErr(err)
	is.NoErr(env.kv.MergeRelationship(ctx, artistID, albumID, "HAS_ALBUM"))
	is.NoErr(env.kv.MergeRelationship(ctx, albumID, recID, "RECORDED_AS"))

	s := env.factory.OpenSession()
	artist, err := Load[Artist](ctx, s, artistID, WithDepth(1))
	is.NoErr(err)
	is.Equal(s.Len(), 2)

	_, err = Load[Artist](ctx, s, artistID, WithDepth(2))
	is.True(errors.Is(err, ErrPropertyConversion))
	is.Equal(s.Len(), 2)
	is.True(artist.Albums[0].Recording == nil)
}

func TestUnmappedNeighboursAreSkipped(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, _ := seedBeatles(t, env.factory)
	ctx := context.Background()

	fanClub, err := env.kv.CreateNode(ctx, []string{"FanClub"}, map[string]any{"members": int64(1000)})
	is.NoErr(err)
	is.NoErr(env.kv.MergeRelationship(ctx, fanClub, beatles.ID, "FOLLOWS"))

	s := env.factory.OpenSession()
	artist, err := Load[Artist](ctx, s, beatles.ID, WithDepth(1))
	is.NoErr(err)
	is.Equal(len(artist.Albums), 1)
	is.Equal(s.Len(), 2) // artist and album only
}

func TestSessionLifecycle(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, _ := seedBeatles(t, env.factory)
	ctx := context.Background()

	s := env.factory.OpenSession()
	is.Equal(s.State(), StateEmpty)
	is.True(s.ID() != "")

	first, err := Load[Artist](ctx, s, beatles.ID)
	is.NoErr(err)
	is.Equal(s.State(), StatePopulated)

	is.NoErr(s.Clear())
	is.Equal(s.State(), StateEmpty)
	is.Equal(s.Len(), 0)
	is.True(!s.Contains(first))

	second, err := Load[Artist](ctx, s, beatles.ID)
	is.NoErr(err)
	is.True(second != first) // a cleared session builds fresh instances

	is.NoErr(s.Close())
	is.NoErr(s.Close()) // closing twice is fine
	is.Equal(s.State(), StateClosed)

	fetches := env.store.fetches
	_, err = Load[Artist](ctx, s, beatles.ID)
	is.True(errors.Is(err, ErrSessionClosed))
	_, err = LoadAll[Artist](ctx, s, nil)
	is.True(errors.Is(err, ErrSessionClosed))
	is.True(errors.Is(s.Save(ctx, &Artist{Name: "x"}), ErrSessionClosed))
	is.True(errors.Is(s.Delete(ctx, second), ErrSessionClosed))
	is.True(errors.Is(s.Clear(), ErrSessionClosed))
	is.True(errors.Is(s.Purge(ctx), ErrSessionClosed))
	_, err = Count[Artist](ctx, s)
	is.True(errors.Is(err, ErrSessionClosed))
	is.Equal(env.store.fetches, fetches)
}

func TestLoadUnmappedTypeFails(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)

	type untagged struct{ Name string }
	_, err := Load[untagged](context.Background(), env.factory.OpenSession(), "1")
	is.True(errors.Is(err, ErrNotMapped))
	is.Equal(env.store.fetches, 0)
}

func TestLoadSendsNormalizedRequest(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	s := env.factory.OpenSession()

	_, err := LoadAll[Artist](context.Background(), s, []string{"a", "b", "a"},
		WithSort(NewSortOrder().Add("name")),
		WithPagination(Page(2, 10)))
	is.NoErr(err)

	req := env.store.requests[0]
	is.Equal(req.Label, "Artist")
	is.Equal(req.IDs, []string{"a", "b"})
	is.Equal(req.Depth, DefaultDepth)
	is.Equal(req.Skip, 20)
	is.Equal(*req.Limit, 10)
}

type Person struct {
	ID   string `crud:"id"`
	Name string `crud:"property:name"`
}

func TestNodeWithSeveralMappedLabelsLoadsAsRequestedType(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	is.NoErr(env.factory.Register(Person{}))
	ctx := context.Background()

	sting, err := env.kv.CreateNode(ctx, []string{"Person", "Artist"}, map[string]any{"name": "Sting"})
	is.NoErr(err)

	s := env.factory.OpenSession()
	artist, err := Load[Artist](ctx, s, sting)
	is.NoErr(err)
	is.True(artist != nil)
	is.Equal(artist.Name, "Sting")

	all, err := LoadAll[Artist](ctx, s, nil)
	is.NoErr(err)
	n, err := Count[Artist](ctx, s)
	is.NoErr(err)
	is.Equal(int64(len(all)), n) // every counted artist is loaded
	is.True(all[0] == artist)

	person, err := Load[Person](ctx, env.factory.OpenSession(), sting)
	is.NoErr(err)
	is.Equal(person.Name, "Sting")
}

func TestClosedSessionWinsOverUnmappedType(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)

	s := env.factory.OpenSession()
	is.NoErr(s.Close())

	type untagged struct{ Name string }
	_, err := Load[untagged](context.Background(), s, "1")
	is.True(errors.Is(err, ErrSessionClosed))
	_, err = LoadAll[untagged](context.Background(), s, nil)
	is.True(errors.Is(err, ErrSessionClosed))
	is.Equal(env.store.fetches, 0)
}
