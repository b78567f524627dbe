package calc

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Calculation is an evaluated expression owned by one user. Values are only
// produced by a Factory, so Result always matches Type applied to Inputs.
type Calculation struct {
	id        uuid.UUID
	owner     uuid.UUID
	typ       Type
	inputs    []float64
	result    float64
	createdAt time.Time
	updatedAt time.Time
}

func (c Calculation) ID() uuid.UUID        { return c.id }
func (c Calculation) Owner() uuid.UUID     { return c.owner }
func (c Calculation) Type() Type           { return c.typ }
func (c Calculation) Inputs() []float64    { return slices.Clone(c.inputs) }
func (c Calculation) Result() float64      { return c.result }
func (c Calculation) CreatedAt() time.Time { return c.createdAt }
func (c Calculation) UpdatedAt() time.Time { return c.updatedAt }

// Record is the stored shape of a calculation, as read back from a repository.
type Record struct {
	ID        uuid.UUID
	Owner     uuid.UUID
	Type      Type
	Inputs    []float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Factory struct {
	now   func() time.Time
	newID func() uuid.UUID
}

type Option func(*Factory)

func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(f *Factory) { f.newID = newID }
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Create(t Type, owner uuid.UUID, inputs []float64) (Calculation, error) {
	if owner == uuid.Nil {
		return Calculation{}, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	result, err := Evaluate(t, inputs)
	if err != nil {
		return Calculation{}, err
	}

	now := f.now()
	return Calculation{
		id:        f.newID(),
		owner:     owner,
		typ:       t,
		inputs:    slices.Clone(inputs),
		result:    result,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Update re-evaluates existing with new inputs. Type, owner, id and
// created_at carry over; updated_at always moves forward.
func (f *Factory) Update(existing Calculation, inputs []float64) (Calculation, error) {
	if existing.id == uuid.Nil {
		return Calculation{}, fmt.Errorf("%w: calculation was not built by the factory", ErrInvalidInput)
	}
	result, err := Evaluate(existing.typ, inputs)
	if err != nil {
		return Calculation{}, err
	}

	updated := f.now()
	if !updated.After(existing.updatedAt) {
		updated = existing.updatedAt.Add(time.Microsecond)
	}

	next := existing
	next.inputs = slices.Clone(inputs)
	next.result = result
	next.updatedAt = updated
	return next, nil
}

// Restore rebuilds a stored calculation. The result is recomputed rather than
// read back.
func (f *Factory) Restore(r Record) (Calculation, error) {
	if r.ID == uuid.Nil || r.Owner == uuid.Nil {
		return Calculation{}, fmt.Errorf("%w: stored calculation is missing id or owner", ErrInvalidInput)
	}
	result, err := Evaluate(r.Type, r.Inputs)
	if err != nil {
		return Calculation{}, fmt.Errorf("restore %s: %w", r.ID, err)
	}
	return Calculation{
		id:        r.ID,
		owner:     r.Owner,
		typ:       r.Type,
		inputs:    slices.Clone(r.Inputs),
		result:    result,
		createdAt: r.CreatedAt,
		updatedAt: r.UpdatedAt,
	}, nil
}
