// Package fetcher plans and drives batch acquisition of market data: it
// derives requirements from the trade ledger, filters what is already
// cached and fetches the rest through the router with per-item failure
// isolation.
package fetcher

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradeflow/cache"
	"tradeflow/config"
	"tradeflow/ledger"
	"tradeflow/logger"
	"tradeflow/models"
	"tradeflow/provider"
	"tradeflow/router"
)

// BatchFetcher orchestrates analyze → filter → fetch over the journal.
// Execution is strictly sequential; politeness comes from the smoothing
// gate here plus each provider's own sliding-window limiter.
type BatchFetcher struct {
	ledger   ledger.Store
	cache    *cache.Manager
	router   *router.Router
	retry    provider.RetryPolicy
	gate     *rate.Limiter
	lookback time.Duration
	log      *logger.Log
	now      func() time.Time
}

// New builds a fetcher from the config section.
func New(cfg config.FetcherConfig, store ledger.Store, cacheMgr *cache.Manager, rt *router.Router) *BatchFetcher {
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	retry := provider.DefaultRetryPolicy()
	if cfg.RetryAttempts > 0 {
		retry = provider.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
		}
	}

	return &BatchFetcher{
		ledger:   store,
		cache:    cacheMgr,
		router:   rt,
		retry:    retry,
		gate:     rate.NewLimiter(rate.Every(delay), 1),
		lookback: time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		log:      logger.GetLogger(),
		now:      time.Now,
	}
}

// Analyze derives the fetch requirements from the trade ledger. Each
// symbol yields one requirement covering [first trade − lookback, today];
// option symbols additionally emit their underlying so indicators can be
// computed against the stock. Duplicate (symbol, start, end) tuples merge.
func (f *BatchFetcher) Analyze(ctx context.Context) ([]models.Requirement, error) {
	aggs, err := f.ledger.SymbolAggregates(ctx)
	if err != nil {
		return nil, err
	}
	return f.analyzeAggregates(aggs), nil
}

func (f *BatchFetcher) analyzeAggregates(aggs []ledger.SymbolAggregate) []models.Requirement {
	end := f.now().UTC().Truncate(24 * time.Hour)

	seen := make(map[string]struct{})
	var reqs []models.Requirement

	add := func(r models.Requirement) {
		if _, dup := seen[r.Key()]; dup {
			return
		}
		seen[r.Key()] = struct{}{}
		reqs = append(reqs, r)
	}

	for _, agg := range aggs {
		start := agg.FirstTrade.Add(-f.lookback)

		add(models.Requirement{
			Symbol:         agg.Symbol,
			Start:          start,
			End:            end,
			OriginalSymbol: agg.Symbol,
			Priority:       agg.TradeCount,
		})

		if contract, ok := models.ParseOptionSymbol(agg.Symbol); ok {
			add(models.Requirement{
				Symbol:         contract.Underlying,
				Start:          start,
				End:            end,
				OriginalSymbol: agg.Symbol,
				IsUnderlying:   true,
				Priority:       agg.TradeCount + 1,
			})
		}
	}

	sort.SliceStable(reqs, func(i, j int) bool {
		if reqs[i].Priority != reqs[j].Priority {
			return reqs[i].Priority > reqs[j].Priority
		}
		return reqs[i].Symbol < reqs[j].Symbol
	})
	return reqs
}

// FilterMissing keeps the requirements the cache cannot already serve.
func (f *BatchFetcher) FilterMissing(ctx context.Context, reqs []models.Requirement) []models.Requirement {
	var missing []models.Requirement
	for _, req := range reqs {
		series := f.cache.Get(ctx, req.Symbol, req.Start, req.End, models.Interval1d)
		if series.Empty() {
			missing = append(missing, req)
		}
	}
	return missing
}

// BatchFetch runs the sequential acquisition loop. Every requirement
// produces exactly one tagged outcome; provider errors never cross the
// iteration boundary and the loop always continues.
func (f *BatchFetcher) BatchFetch(ctx context.Context, reqs []models.Requirement) []models.Outcome {
	log := f.log.WithComponent("batch_fetcher")

	outcomes := make([]models.Outcome, 0, len(reqs))
	for i, req := range reqs {
		if err := f.gate.Wait(ctx); err != nil {
			// context gone: record the remainder as failed and stop
			for _, rest := range reqs[i:] {
				outcomes = append(outcomes, models.Outcome{
					Symbol: rest.Symbol,
					Kind:   models.OutcomeFailed,
					Reason: "canceled",
					Err:    err,
				})
			}
			break
		}

		outcome := f.fetchOne(ctx, req)
		outcomes = append(outcomes, outcome)

		fields := logger.Fields{
			"symbol":   req.Symbol,
			"progress": i + 1,
			"total":    len(reqs),
		}
		switch outcome.Kind {
		case models.OutcomeFetched:
			fields["records"] = outcome.Records
			log.WithFields(fields).Info("symbol fetched")
		case models.OutcomeSkipped:
			fields["reason"] = outcome.Reason
			log.WithFields(fields).Info("symbol skipped")
		case models.OutcomeFailed:
			log.WithFields(fields).WithError(outcome.Err).Warn("symbol failed")
		}
	}
	return outcomes
}

// fetchOne resolves, fetches and caches a single requirement, translating
// errors into a tagged outcome.
func (f *BatchFetcher) fetchOne(ctx context.Context, req models.Requirement) models.Outcome {
	var series *models.Series
	err := f.retry.Do(ctx, func() error {
		var ferr error
		series, ferr = f.router.GetSeries(ctx, req.Symbol, req.Start, req.End, models.Interval1d)
		return ferr
	})

	switch {
	case err == nil:
		// write-through keyed by the journal symbol, never the
		// provider-converted form
		f.cache.Set(ctx, req.Symbol, series, models.Interval1d, "batch_fetch")
		return models.Outcome{Symbol: req.Symbol, Kind: models.OutcomeFetched, Records: series.Len()}
	case provider.IsNotFound(err):
		return models.Outcome{Symbol: req.Symbol, Kind: models.OutcomeSkipped, Reason: "not found"}
	case provider.IsInvalidSymbol(err):
		return models.Outcome{Symbol: req.Symbol, Kind: models.OutcomeSkipped, Reason: "invalid symbol"}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return models.Outcome{Symbol: req.Symbol, Kind: models.OutcomeFailed, Reason: "canceled", Err: err}
	default:
		reason := "source error"
		if provider.IsRateLimited(err) {
			reason = "rate limited"
		}
		return models.Outcome{Symbol: req.Symbol, Kind: models.OutcomeFailed, Reason: reason, Err: err}
	}
}

// FetchRequiredData runs the full pipeline and returns aggregate
// statistics for the run.
func (f *BatchFetcher) FetchRequiredData(ctx context.Context) (*models.FetchStats, error) {
	started := f.now()
	stats := &models.FetchStats{RunID: uuid.New().String()}

	log := f.log.WithComponent("batch_fetcher").WithFields(logger.Fields{"run_id": stats.RunID})
	log.Info("starting batch run")

	reqs, err := f.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	stats.SymbolsAnalyzed = len(reqs)

	missing := f.FilterMissing(ctx, reqs)
	stats.SymbolsCached = len(reqs) - len(missing)

	outcomes := f.BatchFetch(ctx, missing)
	collectOutcomes(stats, outcomes)
	stats.Duration = f.now().Sub(started)

	logger.LogPerformanceEntry(log, "batch_fetcher", "batch_run", stats.Duration, logger.Fields{
		"analyzed": stats.SymbolsAnalyzed,
		"cached":   stats.SymbolsCached,
		"fetched":  stats.SymbolsFetched,
		"skipped":  stats.SymbolsSkipped,
		"failed":   len(stats.FailedSymbols),
		"records":  stats.RecordsFetched,
	})

	return stats, nil
}

// WarmupCache fetches only the topN most traded symbols: a fast partial
// warm start before a full run.
func (f *BatchFetcher) WarmupCache(ctx context.Context, topN int) error {
	aggs, err := f.ledger.SymbolAggregates(ctx)
	if err != nil {
		return err
	}

	sort.SliceStable(aggs, func(i, j int) bool {
		return aggs[i].TradeCount > aggs[j].TradeCount
	})
	if topN > 0 && len(aggs) > topN {
		aggs = aggs[:topN]
	}

	reqs := f.analyzeAggregates(aggs)
	missing := f.FilterMissing(ctx, reqs)

	f.log.WithComponent("batch_fetcher").WithFields(logger.Fields{
		"top_n":   topN,
		"symbols": len(reqs),
		"missing": len(missing),
	}).Info("warming up cache")

	f.BatchFetch(ctx, missing)
	return nil
}

func collectOutcomes(stats *models.FetchStats, outcomes []models.Outcome) {
	for _, o := range outcomes {
		switch o.Kind {
		case models.OutcomeFetched:
			stats.SymbolsFetched++
			stats.RecordsFetched += o.Records
		case models.OutcomeSkipped:
			stats.SymbolsSkipped++
		case models.OutcomeFailed:
			stats.FailedSymbols = append(stats.FailedSymbols, models.FailedSymbol{
				Symbol: o.Symbol,
				Reason: o.Reason,
			})
		}
	}
}
