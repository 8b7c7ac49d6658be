// Package analysis orchestrates one upload end to end: parse the
// workbook, build the reference catalog, run the FIFO engine, and expose
// reports and audit queries over the stored result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/costwise/costwise/internal/analytics"
	"github.com/costwise/costwise/internal/catalog"
	"github.com/costwise/costwise/internal/dataset"
	"github.com/costwise/costwise/internal/fifo"
	"github.com/costwise/costwise/internal/fx"
	"github.com/costwise/costwise/internal/ingest"
)

// ErrAnalysisNotFound is returned for unknown or evicted analysis ids.
var ErrAnalysisNotFound = errors.New("analysis not found")

// TaskEnqueuer schedules background work after an upload. Optional.
type TaskEnqueuer interface {
	EnqueueCacheRefresh(ctx context.Context, analysisID string) error
}

// Service processes uploads and answers queries over stored results.
type Service struct {
	parser      *ingest.Parser
	reports     *analytics.Service
	store       *Store
	enqueuer    TaskEnqueuer
	logger      *slog.Logger
	defaultRate float64
}

// NewService wires the orchestration layer. enqueuer may be nil.
func NewService(parser *ingest.Parser, reports *analytics.Service, store *Store, enqueuer TaskEnqueuer, defaultRate float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultRate <= 0 {
		defaultRate = fx.DefaultCUPPerUSD
	}
	return &Service{
		parser:      parser,
		reports:     reports,
		store:       store,
		enqueuer:    enqueuer,
		logger:      logger,
		defaultRate: defaultRate,
	}
}

// Process parses the workbook, runs the engine over it, and stores the
// result. The returned Result is retained until evicted or deleted.
func (s *Service) Process(ctx context.Context, r io.Reader, filename string) (*Result, error) {
	ds, err := s.parser.ParseWorkbook(r)
	if err != nil {
		return nil, err
	}

	idx := catalog.NewIndex(ds.Products, ds.Purchases)
	engine := fifo.NewEngine(idx, s.logger)
	if err := engine.IngestReceptions(ds.Receptions); err != nil {
		return nil, fmt.Errorf("analysis: ingest receptions: %w", err)
	}
	shrinkage, err := engine.ConsumeShrinkage(ds.Shrinkages)
	if err != nil {
		return nil, fmt.Errorf("analysis: consume shrinkage: %w", err)
	}
	items, err := engine.ConsumeSales(ds.SaleItems)
	if err != nil {
		return nil, fmt.Errorf("analysis: consume sales: %w", err)
	}

	res := &Result{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Filename:  filename,
		Dataset:   ds,
		Items:     items,
		Shrinkage: shrinkage,
		Engine:    engine,
	}
	s.store.Put(res)
	s.logger.Info("analysis stored",
		slog.String("analysis_id", res.ID),
		slog.String("filename", filename),
		slog.Int("warnings", len(engine.Warnings())),
	)

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueCacheRefresh(ctx, res.ID); err != nil {
			s.logger.Warn("cache refresh enqueue failed", slog.String("analysis_id", res.ID), slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// Get returns a stored result.
func (s *Service) Get(id string) (*Result, error) {
	res, ok := s.store.Get(id)
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return res, nil
}

// Delete removes a stored result.
func (s *Service) Delete(id string) error {
	if !s.store.Delete(id) {
		return ErrAnalysisNotFound
	}
	return nil
}

// Report computes (or serves from cache) the dashboard report for one
// analysis at the given display rate. A non-positive rate selects the
// configured default.
func (s *Service) Report(ctx context.Context, id string, rate float64, filter analytics.Filter) (*analytics.Report, error) {
	res, ok := s.store.Get(id)
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	if rate <= 0 {
		rate = s.defaultRate
	}
	conv, err := fx.NewConverter(rate)
	if err != nil {
		return nil, err
	}

	compute := func(context.Context) (*analytics.Report, error) {
		return analytics.Compute(analytics.Inputs{
			Dataset:    res.Dataset,
			Items:      res.Items,
			Shrinkage:  res.Shrinkage,
			Inventory:  res.Engine.InventoryValue(),
			Warnings:   res.Engine.Warnings(),
			ActiveLots: res.Engine.ActiveLots(),
		}, conv, filter), nil
	}
	return s.reports.Report(ctx, id, rate, filter, compute)
}

// Explain returns the audit drill-down for one product.
func (s *Service) Explain(id string, code int64) (fifo.ProductExplain, error) {
	res, ok := s.store.Get(id)
	if !ok {
		return fifo.ProductExplain{}, ErrAnalysisNotFound
	}
	return res.Engine.Explain(code), nil
}

// State returns the full engine snapshot for one analysis.
func (s *Service) State(id string) (fifo.State, error) {
	res, ok := s.store.Get(id)
	if !ok {
		return fifo.State{}, ErrAnalysisNotFound
	}
	return res.Engine.State(), nil
}

// Warnings returns the engine warning log for one analysis.
func (s *Service) Warnings(id string) ([]fifo.Warning, error) {
	res, ok := s.store.Get(id)
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return res.Engine.Warnings(), nil
}

// Issues returns the parse issues recorded for one analysis.
func (s *Service) Issues(id string) ([]dataset.ParseIssue, error) {
	res, ok := s.store.Get(id)
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return res.Dataset.Issues, nil
}
