package graphorm_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/graphorm"
	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/dialect/sql"
	"github.com/syssam/graphorm/schema"
	"github.com/syssam/graphorm/schema/mixin"
)

type Cat struct {
	ID schema.ID
	mixin.Time
	Name     string
	Nick     *string
	OtherCat *Cat
	Kittens  []*Kitten
}

type Kitten struct {
	ID   int64
	Name string
	Born time.Time
	Mom  *Cat `orm:"ref"`
}

// Owner holds reference and scalar collections.
type Owner struct {
	ID        schema.ID
	Name      string
	Kittens   []*Kitten `orm:"ref"`
	Tags      map[string]bool
	Nicknames map[string]struct{}
	Scores    []int

	added int
}

func (o *Owner) AddKitten(k *Kitten) {
	o.Kittens = append(o.Kittens, k)
	o.added++
}

// Pack fills Pups through an adder that leaves Pup.Pack alone.
type Pack struct {
	ID   int64
	Name string
	Pups []*Pup
}

func (p *Pack) AddPup(u *Pup) {
	p.Pups = append(p.Pups, u)
}

type Pup struct {
	ID   int64
	Name string
	Pack *Pack `orm:"ref"`
}

type Collar struct {
	Color string
	Size  int
}

type Sample struct {
	ID     int64
	Flag   bool
	Small  int8
	Count  int32
	Big    uint64
	Ratio  float64
	Letter rune `orm:"char"`
	Title  string
	Body   string `orm:"text"`
	At     time.Time
	Never  time.Time
	Token  uuid.UUID
	Raw    []byte
	Collar Collar
	Attrs  map[string]int `orm:"blob"`
	Maybe  *int
	Absent *string
}

var models = graphorm.Entities(Cat{}, Kitten{}, Owner{}, Sample{}, Pack{}, Pup{})

func memoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&_pragma=foreign_keys(1)", strings.NewReplacer("/", "_", " ", "_").Replace(name))
}

// openDS opens a data source on a fresh in-memory database.
func openDS(t *testing.T, name string, opts ...graphorm.Option) (*graphorm.DataSource, *sql.Backend) {
	t.Helper()
	b := sql.New(dialect.SQLite, memoryDSN(name))
	ds, err := graphorm.New(b, append([]graphorm.Option{models}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, ds.Open(context.Background()))
	t.Cleanup(func() { _ = ds.Close() })
	return ds, b
}

func count[T any](t *testing.T, ds *graphorm.DataSource) int64 {
	t.Helper()
	n, err := graphorm.Count[T](context.Background(), ds, dialect.Filter{})
	require.NoError(t, err)
	return n
}

func rows(t *testing.T, b *sql.Backend, table string) int64 {
	t.Helper()
	n, err := b.Count(context.Background(), table, dialect.Filter{})
	require.NoError(t, err)
	return n
}

func names(kittens []*Kitten) []string {
	out := make([]string, len(kittens))
	for i, k := range kittens {
		out[i] = k.Name
	}
	return out
}

func TestSave_OwnedCat(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	bella := &Cat{Name: "Bella", OtherCat: &Cat{Name: "Monty"}}
	require.NoError(t, ds.Save(ctx, bella))
	require.True(t, bella.ID.IsSaved())
	require.True(t, bella.OtherCat.ID.IsSaved())
	assert.NotEqual(t, bella.ID, bella.OtherCat.ID)
	assert.Equal(t, int64(2), count[Cat](t, ds))
	assert.False(t, bella.CreatedAt.IsZero())

	got, err := graphorm.Get[Cat](ctx, ds, bella.ID.Int64())
	require.NoError(t, err)
	assert.Equal(t, "Bella", got.Name)
	assert.Nil(t, got.Nick)
	assert.Nil(t, got.Kittens)
	require.NotNil(t, got.OtherCat)
	assert.Equal(t, "Monty", got.OtherCat.Name)
	assert.Nil(t, got.OtherCat.OtherCat)
	assert.True(t, bella.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, bella.UpdatedAt.Equal(got.UpdatedAt))

	created := bella.CreatedAt
	nick := "Bells"
	bella.Nick = &nick
	require.NoError(t, ds.Save(ctx, bella))
	assert.Equal(t, int64(2), count[Cat](t, ds), "saving again updates in place")
	assert.True(t, created.Equal(bella.CreatedAt))

	got, err = graphorm.Get[Cat](ctx, ds, bella.ID.Int64())
	require.NoError(t, err)
	require.NotNil(t, got.Nick)
	assert.Equal(t, "Bells", *got.Nick)
}

func TestSave_OwnedCollection(t *testing.T) {
	ctx := context.Background()
	ds, b := openDS(t, t.Name())

	midnight := &Cat{Name: "Midnight", Kittens: []*Kitten{{Name: "Lucy"}, {Name: "Molly"}}}
	require.NoError(t, ds.Save(ctx, midnight))
	assert.Equal(t, int64(2), rows(t, b, "Cat_kittens"))

	got, err := graphorm.Get[Cat](ctx, ds, midnight.ID.Int64())
	require.NoError(t, err)
	require.Equal(t, []string{"Lucy", "Molly"}, names(got.Kittens))
	for _, k := range got.Kittens {
		assert.Same(t, got, k.Mom, "kittens point back at their parent")
	}

	got.Kittens = got.Kittens[:1]
	require.NoError(t, ds.Save(ctx, got))
	assert.Equal(t, int64(1), rows(t, b, "Cat_kittens"))
	assert.Equal(t, int64(1), count[Kitten](t, ds))

	kittens, err := graphorm.GetAll[Kitten](ctx, ds, dialect.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lucy"}, names(kittens))

	got.Kittens = nil
	require.NoError(t, ds.Save(ctx, got))
	assert.Zero(t, rows(t, b, "Cat_kittens"))
	assert.Zero(t, count[Kitten](t, ds))
}

func TestSave_OrphansVersusReferences(t *testing.T) {
	ctx := context.Background()
	ds, b := openDS(t, t.Name())

	owned := []*Kitten{{Name: "o1"}, {Name: "o2"}, {Name: "o3"}}
	cat := &Cat{Name: "Mother", Kittens: owned}
	require.NoError(t, ds.Save(ctx, cat))

	refs := []*Kitten{{Name: "r1"}, {Name: "r2"}, {Name: "r3"}, {Name: "r4"}}
	require.NoError(t, ds.SaveAll(ctx, refs))
	owner := &Owner{Name: "Alice", Kittens: refs[:3]}
	require.NoError(t, ds.Save(ctx, owner))
	assert.Equal(t, int64(3), rows(t, b, "Owner_kittens"))

	dropped := owned[2]
	cat.Kittens = []*Kitten{owned[0], owned[1], {Name: "o4"}}
	require.NoError(t, ds.Save(ctx, cat))
	owner.Kittens = []*Kitten{refs[0], refs[1], refs[3]}
	require.NoError(t, ds.Save(ctx, owner))

	assert.Equal(t, int64(3), rows(t, b, "Cat_kittens"))
	assert.Equal(t, int64(3), rows(t, b, "Owner_kittens"))
	_, err := graphorm.Get[Kitten](ctx, ds, dropped.ID)
	assert.True(t, graphorm.IsNotFound(err), "dropped owned kitten is deleted")
	_, err = graphorm.Get[Kitten](ctx, ds, refs[2].ID)
	assert.NoError(t, err, "dropped referenced kitten is kept")

	got, err := graphorm.Get[Owner](ctx, ds, owner.ID.Int64())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r4"}, names(got.Kittens))
	assert.Equal(t, 3, got.added)
}

func TestSave_Cycle(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	a := &Cat{Name: "A"}
	b := &Cat{Name: "B", OtherCat: a}
	a.OtherCat = b
	require.NoError(t, ds.Save(ctx, a))
	require.True(t, b.ID.IsSaved())

	got, err := graphorm.Get[Cat](ctx, ds, a.ID.Int64())
	require.NoError(t, err)
	require.NotNil(t, got.OtherCat)
	assert.Equal(t, "B", got.OtherCat.Name)
	assert.Same(t, got, got.OtherCat.OtherCat)

	self := &Cat{Name: "Narcissus"}
	self.OtherCat = self
	require.NoError(t, ds.Save(ctx, self))
	got, err = graphorm.Get[Cat](ctx, ds, self.ID.Int64())
	require.NoError(t, err)
	assert.Same(t, got, got.OtherCat)

	all, err := graphorm.GetAll[Cat](ctx, ds, dialect.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Same(t, all[0], all[1].OtherCat)
	assert.Same(t, all[1], all[0].OtherCat)

	require.NoError(t, ds.Delete(ctx, a))
	assert.False(t, a.ID.IsSaved())
	assert.False(t, b.ID.IsSaved())
	assert.Equal(t, int64(1), count[Cat](t, ds))
}

func TestSave_ReferenceWithinGraph(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	mom := &Cat{Name: "Mom"}
	mom.Kittens = []*Kitten{{Name: "Kit", Mom: mom}}
	err := ds.Save(ctx, mom)
	require.Error(t, err)
	assert.True(t, graphorm.IsUnsavedReference(err), "owned graph members are not saved yet")
	assert.False(t, mom.ID.IsSaved())
	assert.Zero(t, mom.Kittens[0].ID)
	assert.Zero(t, count[Cat](t, ds))
	assert.Zero(t, count[Kitten](t, ds))

	kittens := mom.Kittens
	mom.Kittens = nil
	require.NoError(t, ds.Save(ctx, mom))
	mom.Kittens = kittens
	require.NoError(t, ds.Save(ctx, mom))

	kit, err := graphorm.Get[Kitten](ctx, ds, mom.Kittens[0].ID)
	require.NoError(t, err)
	require.NotNil(t, kit.Mom)
	assert.Equal(t, mom.ID, kit.Mom.ID)
	require.Len(t, kit.Mom.Kittens, 1)
	assert.Same(t, kit, kit.Mom.Kittens[0])
}

func TestSave_UnsavedReference(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	stray := &Kitten{Name: "Stray", Mom: &Cat{Name: "Nobody"}}
	err := ds.Save(ctx, stray)
	require.Error(t, err)
	assert.True(t, graphorm.IsUnsavedReference(err))
	var ure *graphorm.UnsavedReferenceError
	require.True(t, errors.As(err, &ure))
	assert.Equal(t, "Mom", ure.Field)
	assert.Zero(t, stray.ID)
	assert.Zero(t, count[Kitten](t, ds))
	assert.Zero(t, count[Cat](t, ds))

	owner := &Owner{Name: "Bob", Kittens: []*Kitten{{Name: "Unsaved"}}}
	err = ds.Save(ctx, owner)
	assert.True(t, graphorm.IsUnsavedReference(err))
	assert.False(t, owner.ID.IsSaved())
	assert.Zero(t, count[Owner](t, ds))
}

func TestSave_RollbackResetsIdentities(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	cat := &Cat{
		Name:     "Ginger",
		OtherCat: &Cat{Name: "Pepper"},
		Kittens:  []*Kitten{{Name: "Ancient", Born: time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}
	err := ds.Save(ctx, cat)
	require.Error(t, err)
	var fe *graphorm.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Kitten", fe.Entity)
	assert.Equal(t, "Born", fe.Field)

	assert.False(t, cat.ID.IsSaved())
	assert.False(t, cat.OtherCat.ID.IsSaved())
	assert.Zero(t, cat.Kittens[0].ID)
	assert.Zero(t, count[Cat](t, ds))
	assert.Zero(t, count[Kitten](t, ds))
	assert.True(t, cat.CreatedAt.IsZero(), "timestamps are restored")
	assert.True(t, cat.UpdatedAt.IsZero())
	assert.True(t, cat.OtherCat.UpdatedAt.IsZero())

	// A saved entity keeps its stored timestamps after a failed update.
	cat.Kittens = nil
	require.NoError(t, ds.Save(ctx, cat))
	created, updated := cat.CreatedAt, cat.UpdatedAt
	cat.Kittens = []*Kitten{{Name: "Ancient", Born: time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)}}
	time.Sleep(2 * time.Millisecond)
	require.Error(t, ds.Save(ctx, cat))
	assert.Equal(t, created, cat.CreatedAt)
	assert.Equal(t, updated, cat.UpdatedAt)
}

func TestSaveAll(t *testing.T) {
	ctx := context.Background()
	ds, b := openDS(t, t.Name())

	cats := []*Cat{
		{Name: "Tom"},
		{Name: "Felix", Kittens: []*Kitten{{Name: "k1"}}},
		{Name: "Garfield", OtherCat: &Cat{Name: "Nermal"}},
	}
	require.NoError(t, ds.SaveAll(ctx, cats))
	seen := map[schema.ID]bool{}
	for _, c := range cats {
		require.True(t, c.ID.IsSaved())
		assert.False(t, seen[c.ID], "ids are distinct")
		seen[c.ID] = true
	}
	assert.Equal(t, int64(4), count[Cat](t, ds))
	assert.Equal(t, int64(1), rows(t, b, "Cat_kittens"))

	require.NoError(t, ds.SaveAll(ctx, []*Cat{}))
	assert.Error(t, ds.SaveAll(ctx, &Cat{}))

	a, k := &Cat{Name: "A"}, &Kitten{Name: "B"}
	err := ds.SaveAll(ctx, []any{a, k})
	require.Error(t, err)
	assert.True(t, graphorm.IsMixedBatch(err))
	assert.False(t, a.ID.IsSaved())
	assert.Equal(t, int64(4), count[Cat](t, ds))
	assert.Equal(t, int64(1), count[Kitten](t, ds))
}

func TestSaveAll_SharedChild(t *testing.T) {
	ctx := context.Background()
	ds, b := openDS(t, t.Name())

	shared := &Kitten{Name: "Shared"}
	c1 := &Cat{Name: "One", Kittens: []*Kitten{shared}}
	c2 := &Cat{Name: "Two", Kittens: []*Kitten{shared}}
	require.NoError(t, ds.SaveAll(ctx, []*Cat{c1, c2}))
	assert.Equal(t, int64(1), count[Kitten](t, ds))
	assert.Equal(t, int64(2), rows(t, b, "Cat_kittens"))

	require.NoError(t, ds.Delete(ctx, c1))
	assert.Equal(t, int64(1), count[Kitten](t, ds), "still joined to the other cat")
	assert.NotZero(t, shared.ID)

	require.NoError(t, ds.Delete(ctx, c2))
	assert.Zero(t, count[Kitten](t, ds))
	assert.Zero(t, shared.ID)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	ds, b := openDS(t, t.Name())

	cat := &Cat{Name: "Bella", OtherCat: &Cat{Name: "Monty"}, Kittens: []*Kitten{{Name: "Lucy"}, {Name: "Molly"}}}
	require.NoError(t, ds.Save(ctx, cat))
	survivor := &Cat{Name: "Survivor"}
	require.NoError(t, ds.Save(ctx, survivor))

	require.NoError(t, ds.Delete(ctx, cat))
	assert.False(t, cat.ID.IsSaved())
	assert.False(t, cat.OtherCat.ID.IsSaved())
	for _, k := range cat.Kittens {
		assert.Zero(t, k.ID)
	}
	assert.Equal(t, int64(1), count[Cat](t, ds))
	assert.Zero(t, count[Kitten](t, ds))
	assert.Zero(t, rows(t, b, "Cat_kittens"))

	// Deleting an unsaved entity does nothing.
	require.NoError(t, ds.Delete(ctx, cat))
	assert.Equal(t, int64(1), count[Cat](t, ds))
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	ds, b := openDS(t, t.Name())

	require.NoError(t, ds.SaveAll(ctx, []*Cat{
		{Name: "Midnight", Kittens: []*Kitten{{Name: "Lucy"}, {Name: "Molly"}}},
		{Name: "Tom"},
	}))
	n, err := graphorm.DeleteAll[Cat](ctx, ds, graphorm.Where("name = ?", "Midnight"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), count[Cat](t, ds))
	// No cascade.
	assert.Equal(t, int64(2), count[Kitten](t, ds))
	assert.Equal(t, int64(2), rows(t, b, "Cat_kittens"))
}

func TestGetAll(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	require.NoError(t, ds.SaveAll(ctx, []*Cat{{Name: "Tom"}, {Name: "Felix"}, {Name: "Garfield"}}))

	all, err := graphorm.GetAll[Cat](ctx, ds, dialect.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Tom", all[0].Name)

	some, err := graphorm.GetAll[Cat](ctx, ds, graphorm.Where("name IN (?)", []string{"Felix", "Garfield"}))
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "Felix", some[0].Name)

	none, err := graphorm.GetAll[Cat](ctx, ds, graphorm.Where("name = ?", "Nobody"))
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := graphorm.Count[Cat](ctx, ds, graphorm.Where("name <> ?", "Tom"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetAll_QueryCount(t *testing.T) {
	ctx := context.Background()
	queries := func(n int) int64 {
		ds, b := openDS(t, fmt.Sprintf("%s_%d", t.Name(), n))
		cats := make([]*Cat, n)
		for i := range cats {
			cats[i] = &Cat{
				Name:     fmt.Sprintf("cat%d", i),
				OtherCat: &Cat{Name: fmt.Sprintf("friend%d", i)},
				Kittens:  []*Kitten{{Name: "a"}, {Name: "b"}},
			}
		}
		require.NoError(t, ds.SaveAll(ctx, cats))
		b.QueryStats().Reset()
		all, err := graphorm.GetAll[Cat](ctx, ds, dialect.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 2*n)
		return b.QueryStats().Stats().TotalQueries
	}
	small, large := queries(2), queries(40)
	assert.Equal(t, small, large)
	assert.LessOrEqual(t, large, int64(4))
}

func TestCollections_Scalars(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	owner := &Owner{
		Name:      "Carol",
		Tags:      map[string]bool{"indoor": true, "vaccinated": false},
		Nicknames: map[string]struct{}{"Caz": {}, "C": {}},
		Scores:    []int{3, 1, 2, 3},
	}
	require.NoError(t, ds.Save(ctx, owner))

	got, err := graphorm.Get[Owner](ctx, ds, owner.ID.Int64())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"indoor": true}, got.Tags)
	assert.Equal(t, map[string]struct{}{"Caz": {}, "C": {}}, got.Nicknames)
	assert.Equal(t, []int{3, 1, 2, 3}, got.Scores)
	assert.Nil(t, got.Kittens)
	assert.Zero(t, got.added)

	got.Scores = nil
	got.Tags = nil
	require.NoError(t, ds.Save(ctx, got))
	got, err = graphorm.Get[Owner](ctx, ds, owner.ID.Int64())
	require.NoError(t, err)
	assert.Nil(t, got.Scores)
	assert.Nil(t, got.Tags)
	assert.Len(t, got.Nicknames, 2)
}

func TestCollections_AdderSkipsBackReference(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	pack := &Pack{Name: "Wolves", Pups: []*Pup{{Name: "Grey"}, {Name: "Ash"}}}
	require.NoError(t, ds.Save(ctx, pack))

	got, err := graphorm.Get[Pack](ctx, ds, pack.ID)
	require.NoError(t, err)
	require.Len(t, got.Pups, 2)
	for _, u := range got.Pups {
		assert.Nil(t, u.Pack)
	}
}

func TestScalars_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	seven := 7
	in := &Sample{
		Flag:   true,
		Small:  math.MinInt8,
		Count:  -123456,
		Big:    math.MaxUint64,
		Ratio:  0.25,
		Letter: 'é',
		Title:  "Whiskers",
		Body:   strings.Repeat("purr ", 100),
		At:     time.Date(2024, 5, 1, 12, 30, 0, 123e6, time.UTC),
		Token:  uuid.New(),
		Raw:    []byte{0, 1, 2, 255},
		Collar: Collar{Color: "red", Size: 3},
		Attrs:  map[string]int{"lives": 9},
		Maybe:  &seven,
	}
	require.NoError(t, ds.Save(ctx, in))
	require.NotZero(t, in.ID)

	out, err := graphorm.Get[Sample](ctx, ds, in.ID)
	require.NoError(t, err)
	assert.True(t, in.At.Equal(out.At))
	out.At = in.At
	assert.Equal(t, in, out)
	assert.True(t, out.Never.IsZero())
	assert.Nil(t, out.Absent)
}

func TestRefreshAndUpdate(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	cat := &Cat{Name: "Tom", Kittens: []*Kitten{{Name: "Tiny"}}}
	assert.True(t, errors.Is(ds.Update(ctx, cat), graphorm.ErrUnsaved))
	assert.True(t, errors.Is(ds.Refresh(ctx, cat), graphorm.ErrUnsaved))
	require.NoError(t, ds.Save(ctx, cat))

	cat.Name = "Changed"
	cat.Kittens = nil
	require.NoError(t, ds.Refresh(ctx, cat))
	assert.Equal(t, "Tom", cat.Name)
	assert.Equal(t, []string{"Tiny"}, names(cat.Kittens))
	assert.Same(t, cat, cat.Kittens[0].Mom)

	cat.Name = "Thomas"
	require.NoError(t, ds.Update(ctx, cat))
	got, err := graphorm.Get[Cat](ctx, ds, cat.ID.Int64())
	require.NoError(t, err)
	assert.Equal(t, "Thomas", got.Name)

	n, err := graphorm.DeleteAll[Cat](ctx, ds, dialect.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, graphorm.IsNotFound(ds.Refresh(ctx, cat)))
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	_, err := graphorm.Get[Cat](ctx, ds, 42)
	assert.True(t, graphorm.IsNotFound(err))
	var nf *graphorm.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Cat", nf.Label())
	assert.Equal(t, int64(42), nf.ID())

	_, err = graphorm.Get[Cat](ctx, ds, 0)
	assert.True(t, graphorm.IsNotFound(err))
}

func TestNotOpen(t *testing.T) {
	ctx := context.Background()
	ds, err := graphorm.New(sql.New(dialect.SQLite, memoryDSN(t.Name())), models)
	require.NoError(t, err)
	assert.False(t, ds.IsOpen())

	_, err = graphorm.Get[Cat](ctx, ds, 1)
	assert.True(t, graphorm.IsNotOpen(err))
	_, err = graphorm.GetAll[Cat](ctx, ds, dialect.Filter{})
	assert.True(t, graphorm.IsNotOpen(err))
	assert.True(t, errors.Is(ds.Save(ctx, &Cat{}), graphorm.ErrNotOpen))
	assert.True(t, graphorm.IsNotOpen(ds.Delete(ctx, &Cat{})))
	_, err = graphorm.Count[Cat](ctx, ds, dialect.Filter{})
	assert.True(t, graphorm.IsNotOpen(err))

	require.NoError(t, ds.Open(ctx))
	assert.True(t, ds.IsOpen())
	require.NoError(t, ds.Close())
	assert.False(t, ds.IsOpen())
	_, err = graphorm.Get[Cat](ctx, ds, 1)
	assert.True(t, graphorm.IsNotOpen(err))
}

type Order struct {
	ID    schema.ID
	Group string
}

type Dog struct {
	ID   int64
	Name string
}

type Broken struct {
	ID    int64
	Bones chan int
}

// Clash takes the name of the join table of Cat.Kittens.
type Clash struct {
	ID int64
}

func (Clash) TableName() string { return "Cat_kittens" }

func TestConfigErrors(t *testing.T) {
	ctx := context.Background()
	ds, _ := openDS(t, t.Name())

	_, err := graphorm.Get[Dog](ctx, ds, 1)
	assert.True(t, graphorm.IsConfigError(err))
	_, err = graphorm.Get[*Cat](ctx, ds, 1)
	assert.True(t, graphorm.IsConfigError(err))
	assert.True(t, graphorm.IsConfigError(ds.Save(ctx, &Dog{Name: "Rex"})))
	assert.Error(t, ds.Save(ctx, Cat{}))
	assert.Error(t, ds.Save(ctx, (*Cat)(nil)))

	b := sql.New(dialect.SQLite, memoryDSN(t.Name()+"_new"))
	_, err = graphorm.New(b, graphorm.Entities(Broken{}))
	assert.True(t, graphorm.IsConfigError(err))
	_, err = graphorm.New(b, graphorm.Entities(Cat{}, Kitten{}, Clash{}))
	assert.True(t, graphorm.IsConfigError(err))
	_, err = graphorm.New(b, graphorm.Entities(Order{}))
	assert.True(t, graphorm.IsConfigError(err), "reserved words fail at registration, not at Open")
}

func TestVersioned(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.Join(t.TempDir(), "cats.db"))
	open := func(opts ...graphorm.Option) *graphorm.DataSource {
		ds, err := graphorm.New(sql.New(dialect.SQLite, dsn), append([]graphorm.Option{models}, opts...)...)
		require.NoError(t, err)
		require.NoError(t, ds.Open(ctx))
		return ds
	}

	ds := open()
	_, err := ds.Meta(ctx)
	assert.True(t, graphorm.IsNotFound(err), "unversioned sources have no metadata")
	require.NoError(t, ds.Close())

	ds = open(graphorm.Versioned(1))
	m, err := ds.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, graphorm.FormatVersion, m.ORMVersion)
	assert.Equal(t, 1, m.DBVersion)
	require.NoError(t, ds.Save(ctx, &Cat{Name: "Persistent", Kittens: []*Kitten{{Name: "Kit"}}}))
	require.NoError(t, ds.Close())

	ds = open(graphorm.Versioned(1))
	assert.Equal(t, int64(1), count[Cat](t, ds), "same version keeps data")
	require.NoError(t, ds.Close())

	ds = open(graphorm.Versioned(2))
	assert.Zero(t, count[Cat](t, ds), "new version drops data")
	assert.Zero(t, count[Kitten](t, ds))
	m, err = ds.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.DBVersion)
	require.NoError(t, ds.Save(ctx, &Cat{Name: "Fresh"}))
	require.NoError(t, ds.Close())
}
