package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/muniflow/internal/boundary"
	"github.com/UnknownOlympus/muniflow/internal/metrics"
	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/UnknownOlympus/muniflow/internal/output"
	"github.com/UnknownOlympus/muniflow/internal/spatial"
	"github.com/UnknownOlympus/muniflow/internal/volume"
	"github.com/UnknownOlympus/muniflow/internal/wfs"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrPipelineExhausted means no municipality produced a result.
	ErrPipelineExhausted = errors.New("pipeline produced no results")
	// ErrCancelled means the run was interrupted; the report holds what was aggregated so far.
	ErrCancelled = errors.New("pipeline cancelled")
)

// Fetcher runs one feature query, retrying internally.
type Fetcher interface {
	Fetch(ctx context.Context, query wfs.QuerySpec) ([]models.TrafficPoint, error)
}

// Outcome is the terminal state of one municipality.
type Outcome string

const (
	Aggregated     Outcome = "aggregated"
	SkippedEmpty   Outcome = "skipped_empty"
	SkippedFailure Outcome = "skipped_failure"
)

// Settings is the per-run configuration of the aggregation pipeline.
type Settings struct {
	Source      boundary.Source // Source of the municipality boundaries.
	Codes       []string        // Codes restricts the run to these municipalities when not empty.
	RoadType    string          // RoadType code used in every query.
	Timecode    string          // Timecode of the requested 5-minute slot.
	TypeName    string          // TypeName of the measurement layer.
	CallDelay   time.Duration   // CallDelay is the pause after each fetch in sequential mode.
	Workers     int             // Workers above one switch to the pooled mode.
	StrictFetch bool            // StrictFetch turns an exhausted fetch into a fatal error.
}

// Skip records why a municipality produced no result.
type Skip struct {
	Code    string
	Outcome Outcome
	Reason  string
}

// Report is the outcome of one pipeline run. Results follow the order of
// the boundary dataset.
type Report struct {
	Results  []models.AggregateResult
	Outcomes map[string]Outcome
	Skipped  []Skip
}

// municipalityResult is what one municipality contributes to the report.
type municipalityResult struct {
	done    bool
	code    string
	outcome Outcome
	reason  string
	result  models.AggregateResult
}

// AggregationService drives boundaries through fetch, spatial join and
// aggregation, one result per municipality.
type AggregationService struct {
	log        *slog.Logger       // Logger for logging service activities
	boundaries boundary.Interface // Source of municipality polygons
	fetcher    Fetcher            // Feature service client
	writer     output.Writer      // Destination of the aggregated results
	metrics    *metrics.Metrics   // Metrics for tracking service performance
	clock      clockwork.Clock    // Clock for the inter-call delay
	settings   Settings
}

// NewAggregationService creates a new instance of AggregationService.
func NewAggregationService(
	log *slog.Logger,
	boundaries boundary.Interface,
	fetcher Fetcher,
	writer output.Writer,
	metrics *metrics.Metrics,
	clock clockwork.Clock,
	settings Settings,
) *AggregationService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &AggregationService{
		log:        log,
		boundaries: boundaries,
		fetcher:    fetcher,
		writer:     writer,
		metrics:    metrics,
		clock:      clock,
		settings:   settings,
	}
}

// Run performs one aggregation pass and writes the results.
//
// Per-municipality fetch failures and empty responses are recorded in the
// report and never abort the run, unless strict fetch is set. A cancelled
// context stops the run; the results aggregated so far are still written
// and ErrCancelled is returned with the report.
func (as *AggregationService) Run(ctx context.Context) (*Report, error) {
	municipalities, err := as.boundaries.Load(ctx, as.settings.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to load boundaries: %w", err)
	}
	municipalities = boundary.Filter(municipalities, as.settings.Codes)

	as.log.InfoContext(ctx, "Aggregation started",
		"municipalities", len(municipalities),
		"timecode", as.settings.Timecode,
		"workers", max(as.settings.Workers, 1),
	)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		entries []municipalityResult
		runErr  error
	)
	if as.settings.Workers > 1 {
		entries, runErr = as.runPooled(runCtx, stop, municipalities)
	} else {
		entries, runErr = as.runSequential(runCtx, municipalities)
	}

	report := buildReport(entries)
	if runErr != nil {
		return report, runErr
	}

	if ctx.Err() != nil {
		as.log.WarnContext(ctx, "Aggregation cancelled, writing partial results",
			"results", len(report.Results),
			"municipalities", len(municipalities),
		)
		if err = as.write(context.WithoutCancel(ctx), report.Results); err != nil {
			return report, err
		}
		return report, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	if len(report.Results) == 0 {
		return report, fmt.Errorf("%w: %d municipalities, %d skipped",
			ErrPipelineExhausted, len(municipalities), len(report.Skipped))
	}

	if err = as.write(ctx, report.Results); err != nil {
		return report, err
	}

	as.log.InfoContext(ctx, "Aggregation finished",
		"results", len(report.Results),
		"skipped", len(report.Skipped),
	)

	return report, nil
}

func (as *AggregationService) runSequential(
	ctx context.Context,
	municipalities []models.Municipality,
) ([]municipalityResult, error) {
	entries := make([]municipalityResult, len(municipalities))

	for idx, muni := range municipalities {
		if ctx.Err() != nil {
			break
		}

		entry, err := as.process(ctx, muni)
		if err != nil {
			return entries, err
		}
		entries[idx] = entry

		if idx < len(municipalities)-1 {
			as.pause(ctx)
		}
	}

	return entries, nil
}

func (as *AggregationService) runPooled(
	ctx context.Context,
	stop context.CancelFunc,
	municipalities []models.Municipality,
) ([]municipalityResult, error) {
	var (
		entries  = make([]municipalityResult, len(municipalities))
		mu       sync.Mutex
		firstErr error
		wgr      sync.WaitGroup
		jobs     = make(chan int)
	)

	as.log.InfoContext(ctx, "Starting worker pool", "num_workers", as.settings.Workers)

	for i := 1; i <= as.settings.Workers; i++ {
		wgr.Add(1)
		go func(worker int) {
			defer wgr.Done()
			for idx := range jobs {
				as.metrics.ActiveWorkers.Inc()
				entry, err := as.process(ctx, municipalities[idx])
				as.metrics.ActiveWorkers.Dec()

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
						as.log.ErrorContext(ctx, "Worker stopped the run", "worker", worker, "error", err)
					}
					stop()
				} else {
					entries[idx] = entry
				}
				mu.Unlock()
			}
		}(i)
	}

feed:
	for idx := range municipalities {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wgr.Wait()

	return entries, firstErr
}

// process fetches, joins and aggregates one municipality. It only returns an
// error when the run has to stop.
func (as *AggregationService) process(ctx context.Context, muni models.Municipality) (municipalityResult, error) {
	entry := municipalityResult{done: true, code: muni.Code}

	query := wfs.BuildQuery(muni.Bound(), wfs.QueryParams{
		RoadType: as.settings.RoadType,
		Timecode: as.settings.Timecode,
		TypeName: as.settings.TypeName,
	})

	as.log.DebugContext(ctx, "Fetching traffic points", "municipality", muni.Code)
	points, err := as.fetcher.Fetch(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return municipalityResult{}, nil
		}
		if as.settings.StrictFetch {
			return municipalityResult{}, fmt.Errorf("municipality %s: %w", muni.Code, err)
		}

		as.log.WarnContext(ctx, "Skipping municipality, fetch failed", "municipality", muni.Code, "error", err)
		as.metrics.MunicipalitiesProcessed.WithLabelValues(string(SkippedFailure)).Inc()
		entry.outcome = SkippedFailure
		entry.reason = err.Error()
		return entry, nil
	}

	if len(points) == 0 {
		as.log.InfoContext(ctx, "Skipping municipality, no traffic points", "municipality", muni.Code)
		as.metrics.MunicipalitiesProcessed.WithLabelValues(string(SkippedEmpty)).Inc()
		entry.outcome = SkippedEmpty
		entry.reason = "no features returned"
		return entry, nil
	}

	inside := spatial.FilterWithin(points, muni.Geometry)
	total, count := volume.Aggregate(inside)

	as.log.InfoContext(ctx, "Municipality aggregated",
		"municipality", muni.Code,
		"fetched", len(points),
		"points", count,
		"volume", total,
	)
	as.metrics.MunicipalitiesProcessed.WithLabelValues(string(Aggregated)).Inc()
	as.metrics.PointsRetained.Add(float64(count))

	entry.outcome = Aggregated
	entry.result = models.AggregateResult{
		MunicipalityCode: muni.Code,
		Timecode:         as.settings.Timecode,
		TotalVolume:      total,
		PointCount:       count,
	}

	return entry, nil
}

func (as *AggregationService) pause(ctx context.Context) {
	if as.settings.CallDelay <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-as.clock.After(as.settings.CallDelay):
	}
}

func (as *AggregationService) write(ctx context.Context, results []models.AggregateResult) error {
	if len(results) == 0 {
		return nil
	}

	if err := as.writer.Write(ctx, results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	return nil
}

func buildReport(entries []municipalityResult) *Report {
	report := &Report{Outcomes: make(map[string]Outcome, len(entries))}

	for _, entry := range entries {
		if !entry.done {
			continue
		}

		report.Outcomes[entry.code] = entry.outcome
		if entry.outcome == Aggregated {
			report.Results = append(report.Results, entry.result)
			continue
		}
		report.Skipped = append(report.Skipped, Skip{Code: entry.code, Outcome: entry.outcome, Reason: entry.reason})
	}

	return report
}
