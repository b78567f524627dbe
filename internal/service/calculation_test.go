package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/calculator/internal/calc"
	"github.com/Skotchmaster/calculator/internal/models"
	"github.com/Skotchmaster/calculator/internal/mykafka"
	"github.com/Skotchmaster/calculator/internal/repo"
	"github.com/Skotchmaster/calculator/internal/search"
	pkgdb "github.com/Skotchmaster/calculator/pkg/db"
)

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]search.Document
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: map[string]search.Document{}}
}

func (f *fakeIndex) Index(_ context.Context, doc search.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, owner, typ string, from, size int) (int64, []search.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []search.Document
	for _, d := range f.docs {
		if d.UserID == owner && (typ == "" || d.Type == typ) {
			out = append(out, d)
		}
	}
	return int64(len(out)), out, nil
}

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (e *eventLog) PublishEvent(_ context.Context, topic, _ string, event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev, ok := event.(mykafka.CalculationEvent); ok && topic == mykafka.TopicCalculationEvents {
		e.types = append(e.types, ev.Type)
	}
	return nil
}

func (e *eventLog) Close() error { return nil }

type testEnv struct {
	svc    *CalculationService
	db     *gorm.DB
	index  *fakeIndex
	events *eventLog
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	gdb, err := pkgdb.Open(ctx, pkgdb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx, gdb))
	t.Cleanup(func() { _ = pkgdb.Close(gdb) })

	env := &testEnv{db: gdb, index: newFakeIndex(), events: &eventLog{}}
	opts = append([]Option{WithIndexer(env.index), WithEvents(env.events)}, opts...)
	env.svc = NewCalculationService(repo.New(gdb), calc.NewFactory(), opts...)
	return env
}

func (e *testEnv) rows(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Calculation{}).Count(&n).Error)
	return n
}

func TestAdd(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	c, err := env.svc.Add(ctx, owner, "division", []float64{100, 5, 2})
	require.NoError(t, err)
	assert.InDelta(t, 10, c.Result(), 1e-9)
	assert.Equal(t, owner, c.Owner())

	got, err := env.svc.Read(ctx, owner, c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.Inputs(), got.Inputs())
	assert.InDelta(t, 10, got.Result(), 1e-9)

	assert.Contains(t, env.index.docs, c.ID().String())
	assert.Equal(t, []string{mykafka.EventCalculationCreated}, env.events.types)
}

func TestAdd_ValidationErrorsPersistNothing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	tests := []struct {
		typ     string
		inputs  []float64
		wantErr error
	}{
		{typ: "division", inputs: []float64{10, 0}, wantErr: calc.ErrDivisionByZero},
		{typ: "addition", inputs: []float64{5}, wantErr: calc.ErrInvalidInput},
		{typ: "modulo", inputs: []float64{1, 2}, wantErr: calc.ErrUnsupportedOperation},
	}
	for _, tt := range tests {
		_, err := env.svc.Add(ctx, owner, tt.typ, tt.inputs)
		assert.ErrorIs(t, err, tt.wantErr, tt.typ)
	}

	assert.Zero(t, env.rows(t))
	assert.Empty(t, env.events.types)
}

func TestRead_OtherOwnerIsNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.svc.Add(ctx, uuid.New(), "addition", []float64{1, 2})
	require.NoError(t, err)

	_, err = env.svc.Read(ctx, uuid.New(), c.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Edit(ctx, uuid.New(), c.ID(), []float64{3, 4})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, env.svc.Delete(ctx, uuid.New(), c.ID()), ErrNotFound)
}

func TestEdit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	orig, err := env.svc.Add(ctx, owner, "addition", []float64{10.5, 3, 2})
	require.NoError(t, err)

	upd, err := env.svc.Edit(ctx, owner, orig.ID(), []float64{1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 3, upd.Result(), 1e-9)
	assert.Equal(t, calc.Addition, upd.Type())
	assert.Equal(t, owner, upd.Owner())
	assert.True(t, upd.UpdatedAt().After(orig.UpdatedAt()))

	stored, err := env.svc.Read(ctx, owner, orig.ID())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, stored.Inputs())

	_, err = env.svc.Edit(ctx, owner, orig.ID(), []float64{1})
	assert.ErrorIs(t, err, calc.ErrInvalidInput)

	stored, err = env.svc.Read(ctx, owner, orig.ID())
	require.NoError(t, err)
	assert.InDelta(t, 3, stored.Result(), 1e-9, "rejected edit leaves the row alone")

	assert.Equal(t, []string{mykafka.EventCalculationCreated, mykafka.EventCalculationUpdated}, env.events.types)
	assert.InDelta(t, 3, env.index.docs[orig.ID().String()].Result, 1e-9)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	c, err := env.svc.Add(ctx, owner, "multiplication", []float64{2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, owner, c.ID()))
	assert.ErrorIs(t, env.svc.Delete(ctx, owner, c.ID()), ErrNotFound)

	_, err = env.svc.Read(ctx, owner, c.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotContains(t, env.index.docs, c.ID().String())
	assert.Equal(t, mykafka.EventCalculationDeleted, env.events.types[len(env.events.types)-1])
}

func TestBrowse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := env.svc.Add(ctx, owner, "subtraction", []float64{10, float64(i)})
		require.NoError(t, err)
	}
	_, err := env.svc.Add(ctx, uuid.New(), "subtraction", []float64{1, 1})
	require.NoError(t, err)

	page, err := env.svc.Browse(ctx, owner, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Items, 2)

	page, err = env.svc.Browse(ctx, owner, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Items, 1)
}

func TestBrowse_CorruptRowSurfaces(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	now := time.Now().UTC()
	require.NoError(t, env.db.Create(&models.Calculation{
		ID: uuid.New(), UserID: owner, Type: "division",
		Inputs: models.Inputs{1, 0}, Result: 42, CreatedAt: now, UpdatedAt: now,
	}).Error)

	_, err := env.svc.Browse(ctx, owner, 1, 10)
	assert.ErrorIs(t, err, calc.ErrDivisionByZero)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := env.svc.Add(ctx, owner, "addition", []float64{1, 2})
	require.NoError(t, err)
	_, err = env.svc.Add(ctx, owner, "division", []float64{4, 2})
	require.NoError(t, err)

	total, docs, err := env.svc.Search(ctx, owner, "division", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "division", docs[0].Type)

	_, _, err = env.svc.Search(ctx, owner, "modulo", 1, 10)
	assert.ErrorIs(t, err, calc.ErrUnsupportedOperation)
}

func TestSearchAndBrowse_HugePage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := env.svc.Add(ctx, owner, "addition", []float64{1, 2})
	require.NoError(t, err)

	_, _, err = env.svc.Search(ctx, owner, "", math.MaxInt, 10)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	_, _, err = env.svc.Search(ctx, owner, "", 1001, 10)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	_, _, err = env.svc.Search(ctx, owner, "", 1000, 10)
	assert.NoError(t, err)

	page, err := env.svc.Browse(ctx, owner, math.MaxInt, 10)
	require.NoError(t, err)
	assert.Positive(t, page.Page)
	assert.EqualValues(t, 1, page.Total)
	assert.Empty(t, page.Items)
}

func TestSearch_Disabled(t *testing.T) {
	t.Parallel()

	svc := NewCalculationService(nil, calc.NewFactory())
	_, _, err := svc.Search(context.Background(), uuid.New(), "", 1, 10)
	assert.ErrorIs(t, err, ErrSearchDisabled)
}

func TestIndexFailureDoesNotFailWrites(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.index.err = errors.New("es down")

	_, err := env.svc.Add(context.Background(), uuid.New(), "addition", []float64{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.rows(t))
}

func TestStats(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := env.svc.Add(ctx, owner, "addition", []float64{1, 1})
	require.NoError(t, err)
	_, err = env.svc.Add(ctx, owner, "addition", []float64{2, 2})
	require.NoError(t, err)

	stats, err := env.svc.Stats(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "addition", stats[0].Type)
	assert.EqualValues(t, 2, stats[0].Count)
	assert.InDelta(t, 3, stats[0].Average, 1e-9)
}

func TestOverflowIsRejectedAndNotStored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	for _, tt := range []struct {
		typ    string
		inputs []float64
	}{
		{"multiplication", []float64{1e308, 10}},
		{"addition", []float64{1.7e308, 1.7e308}},
		{"subtraction", []float64{-1.7e308, 1.7e308}},
		{"division", []float64{1e308, 1e-308}},
	} {
		_, err := env.svc.Add(ctx, owner, tt.typ, tt.inputs)
		assert.ErrorIs(t, err, ErrNonFiniteResult, tt.typ)
		assert.ErrorIs(t, err, calc.ErrValidation, tt.typ)
	}
	assert.Zero(t, env.rows(t))
	assert.Empty(t, env.events.types)
	assert.Empty(t, env.index.docs)

	c, err := env.svc.Add(ctx, owner, "multiplication", []float64{2, 3})
	require.NoError(t, err)

	_, err = env.svc.Edit(ctx, owner, c.ID(), []float64{1e308, 1e308})
	assert.ErrorIs(t, err, ErrNonFiniteResult)

	got, err := env.svc.Read(ctx, owner, c.ID())
	require.NoError(t, err)
	assert.InDelta(t, 6, got.Result(), 1e-9)

	page, err := env.svc.Browse(ctx, owner, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	stats, err := env.svc.Stats(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.InDelta(t, 6, stats[0].Average, 1e-9)
}
