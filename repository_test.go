package neosession

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/kvstore"
)

func TestRepositoryRoundTrip(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.factory.OpenSession()

	studios, err := RepositoryFor[Studio](s)
	is.NoErr(err)
	is.Equal(studios.Label(), "Studio")

	abbey := &Studio{Name: "Abbey Road Studios"}
	is.NoErr(studios.Save(ctx, abbey))
	is.True(abbey.ID != "")

	found, err := studios.FindByID(ctx, abbey.ID)
	is.NoErr(err)
	is.True(found == abbey) // the saved instance is the session's instance

	is.NoErr(studios.Save(ctx, &Studio{Name: "Britannia Row Studios"}))
	all, err := studios.FindAll(ctx, nil, WithSort(NewSortOrder().Add("name")))
	is.NoErr(err)
	is.Equal(len(all), 2)
	is.Equal(all[1].Name, "Britannia Row Studios")

	count, err := studios.Count(ctx)
	is.NoErr(err)
	is.Equal(count, int64(2))

	is.NoErr(studios.Delete(ctx, abbey))
	_, err = studios.FindByID(ctx, abbey.ID)
	is.True(errors.Is(err, ErrNotFound))
}

func TestRepositoryFindByIDOfOtherType(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, _ := seedBeatles(t, env.factory)

	albums, err := RepositoryFor[Album](env.factory.OpenSession())
	is.NoErr(err)

	_, err = albums.FindByID(context.Background(), beatles.ID)
	is.True(errors.Is(err, ErrNotFound))
}

func TestRepositoryForUnmappedType(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)

	_, err := RepositoryFor[struct{ Name string }](env.factory.OpenSession())
	is.True(errors.Is(err, ErrNotMapped))
}

func TestFactoryRejectsInvalidTypes(t *testing.T) {
	is := is.New(t)
	store := kvstore.New(kvstore.NewMemory(), nil)

	type broken struct {
		Name string `crud:"property:name"`
	}
	_, err := NewSessionFactory(store, WithTypes(broken{}))
	is.True(errors.Is(err, ErrNotMapped))

	f, err := NewSessionFactory(store, WithLogger(zap.NewNop()))
	is.NoErr(err)
	is.True(f.Store() == store)
	is.True(errors.Is(f.Register(nil), ErrNotMapped))
	is.NoErr(f.Register(&Artist{}))
	is.Equal(len(f.Registry().Labels()), 4)
}

func TestSessionsAreIndependent(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t)
	beatles, _ := seedBeatles(t, env.factory)
	ctx := context.Background()

	s1 := env.factory.OpenSession()
	s2 := env.factory.OpenSession()
	is.True(s1.ID() != s2.ID())

	a1, err := Load[Artist](ctx, s1, beatles.ID)
	is.NoErr(err)
	is.Equal(s2.Len(), 0)

	a2, err := Load[Artist](ctx, s2, beatles.ID)
	is.NoErr(err)
	is.True(a1 != a2)
	is.True(a1.Albums[0] != a2.Albums[0])

	is.NoErr(s1.Close())
	again, err := Load[Artist](ctx, s2, beatles.ID)
	is.NoErr(err)
	is.True(again == a2) // closing one session leaves the other alone
}
