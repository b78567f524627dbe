package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/calculator/internal/calc"
	"github.com/Skotchmaster/calculator/internal/metrics"
	"github.com/Skotchmaster/calculator/internal/models"
	"github.com/Skotchmaster/calculator/internal/mykafka"
	"github.com/Skotchmaster/calculator/internal/repo"
	"github.com/Skotchmaster/calculator/internal/search"
	"github.com/Skotchmaster/calculator/internal/util"
	"github.com/Skotchmaster/calculator/pkg/logging"
)

var (
	// ErrNotFound is also returned for calculations owned by someone else.
	ErrNotFound       = errors.New("calculation not found")
	ErrSearchDisabled = search.ErrDisabled
	ErrPageOutOfRange = errors.New("page is beyond the searchable range")
	// ErrNonFiniteResult is returned when a result overflows to ±Inf or NaN.
	// Such calculations are never stored.
	ErrNonFiniteResult = fmt.Errorf("%w: result is not a finite number", calc.ErrValidation)
)

type Repository interface {
	CreateCalculation(ctx context.Context, c *models.Calculation) error
	CalculationByID(ctx context.Context, owner, id uuid.UUID) (*models.Calculation, error)
	ListCalculations(ctx context.Context, owner uuid.UUID, offset, limit int) (int64, []models.Calculation, error)
	UpdateCalculation(ctx context.Context, c *models.Calculation) error
	DeleteCalculation(ctx context.Context, owner, id uuid.UUID) error
	CalculationStats(ctx context.Context, owner uuid.UUID) ([]repo.TypeStats, error)
}

type Indexer interface {
	Index(ctx context.Context, doc search.Document) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, owner, typ string, from, size int) (int64, []search.Document, error)
}

type CalculationService struct {
	repo    Repository
	factory *calc.Factory
	events  mykafka.Publisher
	index   Indexer
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*CalculationService)

func WithEvents(p mykafka.Publisher) Option {
	return func(s *CalculationService) { s.events = p }
}

// WithIndexer enables history search. Without it Search returns ErrSearchDisabled.
func WithIndexer(ix Indexer) Option {
	return func(s *CalculationService) { s.index = ix }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CalculationService) { s.metrics = m }
}

func NewCalculationService(r Repository, f *calc.Factory, opts ...Option) *CalculationService {
	s := &CalculationService{
		repo:    r,
		factory: f,
		events:  mykafka.Noop{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Page struct {
	Total int64
	Page  int
	Size  int
	Items []calc.Calculation
}

func (s *CalculationService) Browse(ctx context.Context, owner uuid.UUID, page, size int) (*Page, error) {
	offset, limit := util.Paginate(page, size)
	total, rows, err := s.repo.ListCalculations(ctx, owner, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}

	items := make([]calc.Calculation, 0, len(rows))
	for i := range rows {
		c, err := s.restore(&rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return &Page{Total: total, Page: offset/limit + 1, Size: limit, Items: items}, nil
}

func (s *CalculationService) Read(ctx context.Context, owner, id uuid.UUID) (calc.Calculation, error) {
	row, err := s.repo.CalculationByID(ctx, owner, id)
	if err != nil {
		return calc.Calculation{}, notFound(err)
	}
	return s.restore(row)
}

func (s *CalculationService) Add(ctx context.Context, owner uuid.UUID, typ string, inputs []float64) (calc.Calculation, error) {
	l := logging.FromContext(ctx).With("svc", "calculation.add")

	t, err := calc.ParseType(typ)
	if err != nil {
		s.metrics.Calculation("unknown", outcome(err))
		return calc.Calculation{}, err
	}
	c, err := s.factory.Create(t, owner, inputs)
	if err == nil {
		err = checkFinite(c)
	}
	s.metrics.Calculation(string(t), outcome(err))
	if err != nil {
		l.Warn("calculation_rejected", "status", 400, "type", t, "error", err)
		return calc.Calculation{}, err
	}

	if err := s.repo.CreateCalculation(ctx, toModel(c)); err != nil {
		l.Error("calculation_error", "status", 500, "reason", "insert failed", "error", err)
		return calc.Calculation{}, err
	}

	s.afterWrite(ctx, mykafka.EventCalculationCreated, c)
	return c, nil
}

// Edit replaces the inputs of an existing calculation and recomputes it with
// its original type.
func (s *CalculationService) Edit(ctx context.Context, owner, id uuid.UUID, inputs []float64) (calc.Calculation, error) {
	l := logging.FromContext(ctx).With("svc", "calculation.edit")

	existing, err := s.Read(ctx, owner, id)
	if err != nil {
		return calc.Calculation{}, err
	}

	updated, err := s.factory.Update(existing, inputs)
	if err == nil {
		err = checkFinite(updated)
	}
	s.metrics.Calculation(string(existing.Type()), outcome(err))
	if err != nil {
		l.Warn("calculation_rejected", "status", 400, "type", existing.Type(), "error", err)
		return calc.Calculation{}, err
	}

	if err := s.repo.UpdateCalculation(ctx, toModel(updated)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return calc.Calculation{}, ErrNotFound
		}
		l.Error("calculation_error", "status", 500, "reason", "update failed", "error", err)
		return calc.Calculation{}, err
	}

	s.afterWrite(ctx, mykafka.EventCalculationUpdated, updated)
	return updated, nil
}

func (s *CalculationService) Delete(ctx context.Context, owner, id uuid.UUID) error {
	if err := s.repo.DeleteCalculation(ctx, owner, id); err != nil {
		return notFound(err)
	}

	l := logging.FromContext(ctx).With("svc", "calculation.delete")
	ev := mykafka.CalculationEvent{
		Type:          mykafka.EventCalculationDeleted,
		CalculationID: id.String(),
		UserID:        owner.String(),
		At:            s.now(),
	}
	if err := s.events.PublishEvent(ctx, mykafka.TopicCalculationEvents, ev.UserID, ev); err != nil {
		l.Warn("event_publish_failed", "topic", mykafka.TopicCalculationEvents, "type", ev.Type, "error", err)
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id.String()); err != nil {
			l.Warn("index_failed", "id", id, "error", err)
		}
	}
	return nil
}

func (s *CalculationService) Search(ctx context.Context, owner uuid.UUID, typ string, page, size int) (int64, []search.Document, error) {
	if s.index == nil {
		return 0, nil, ErrSearchDisabled
	}
	if typ != "" {
		if _, err := calc.ParseType(typ); err != nil {
			return 0, nil, err
		}
	}
	from, limit := util.Paginate(page, size)
	if from+limit > search.MaxResultWindow {
		return 0, nil, fmt.Errorf("%w: page %d size %d", ErrPageOutOfRange, page, limit)
	}
	return s.index.Search(ctx, owner.String(), typ, from, limit)
}

func (s *CalculationService) Stats(ctx context.Context, owner uuid.UUID) ([]repo.TypeStats, error) {
	return s.repo.CalculationStats(ctx, owner)
}

// afterWrite publishes the change and refreshes the search index. Both are
// best effort.
func (s *CalculationService) afterWrite(ctx context.Context, eventType string, c calc.Calculation) {
	l := logging.FromContext(ctx)

	ev := mykafka.CalculationEvent{
		Type:          eventType,
		CalculationID: c.ID().String(),
		UserID:        c.Owner().String(),
		Operation:     string(c.Type()),
		Inputs:        c.Inputs(),
		Result:        c.Result(),
		At:            c.UpdatedAt(),
	}
	if err := s.events.PublishEvent(ctx, mykafka.TopicCalculationEvents, ev.UserID, ev); err != nil {
		l.Warn("event_publish_failed", "topic", mykafka.TopicCalculationEvents, "type", eventType, "error", err)
	}

	if s.index != nil {
		if err := s.index.Index(ctx, toDocument(c)); err != nil {
			l.Warn("index_failed", "id", c.ID(), "error", err)
		}
	}
}

func (s *CalculationService) restore(row *models.Calculation) (calc.Calculation, error) {
	c, err := s.factory.Restore(calc.Record{
		ID:        row.ID,
		Owner:     row.UserID,
		Type:      calc.Type(row.Type),
		Inputs:    row.Inputs,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	})
	if err != nil {
		return calc.Calculation{}, fmt.Errorf("stored calculation %s is invalid: %w", row.ID, err)
	}
	return c, nil
}

func checkFinite(c calc.Calculation) error {
	if r := c.Result(); math.IsInf(r, 0) || math.IsNaN(r) {
		return fmt.Errorf("%w: %v", ErrNonFiniteResult, r)
	}
	return nil
}

func toModel(c calc.Calculation) *models.Calculation {
	return &models.Calculation{
		ID:        c.ID(),
		UserID:    c.Owner(),
		Type:      string(c.Type()),
		Inputs:    c.Inputs(),
		Result:    c.Result(),
		CreatedAt: c.CreatedAt(),
		UpdatedAt: c.UpdatedAt(),
	}
}

func toDocument(c calc.Calculation) search.Document {
	return search.Document{
		ID:        c.ID().String(),
		UserID:    c.Owner().String(),
		Type:      string(c.Type()),
		Inputs:    c.Inputs(),
		Result:    c.Result(),
		CreatedAt: c.CreatedAt(),
		UpdatedAt: c.UpdatedAt(),
	}
}

func notFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, calc.ErrUnsupportedOperation):
		return "unsupported_operation"
	case errors.Is(err, calc.ErrDivisionByZero):
		return "division_by_zero"
	case errors.Is(err, ErrNonFiniteResult):
		return "non_finite_result"
	case errors.Is(err, calc.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
