// internal/workers/search/query-listings/handler.go
package querylistings

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"listing-workers/internal/common/errors"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/metrics"
	"listing-workers/internal/common/observability"
	"listing-workers/internal/models"
	"listing-workers/internal/search/executor"
	"listing-workers/internal/search/filter"
)

const (
	TaskType = "query-listings"
)

// Searcher runs a compiled filter for one page.
type Searcher interface {
	Search(ctx context.Context, result *filter.Result, page executor.Page) (*executor.SearchResult, error)
}

type Handler struct {
	config       *Config
	searcher     Searcher
	compiler     *filter.Compiler
	obs          *observability.Observability
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, searcher Searcher, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = &observability.Observability{}
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		searcher:     searcher,
		compiler:     filter.NewCompiler(),
		obs:          obs,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(context.Background(), client, job, start, errors.NewInvalidFilterFormatError("rawFilters", fmt.Errorf("parse input: %w", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(context.Background(), client, job, start, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.fail(context.Background(), client, job, start, errors.NewInternalError(fmt.Errorf("create complete job command: %w", err)))
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "success")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "success")
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidFilterFormatError("rawFilters", fmt.Errorf("input cannot be nil"))
	}

	page, err := h.page(input)
	if err != nil {
		return nil, err
	}

	result, err := h.compiler.Compile(filter.RawInput(input.RawFilters))
	if err != nil {
		var ve *filter.ValidationError
		if stderrors.As(err, &ve) {
			metrics.FilterRejections.WithLabelValues(ve.Field).Inc()
			return nil, errors.NewInvalidFilterFormatError(ve.Field, err)
		}
		return nil, errors.NewInternalError(err)
	}
	metrics.FilterCompilations.WithLabelValues(metrics.CompilationMode(result.IsDirectLookup, result.HasSchoolFilters)).Inc()

	searchID := uuid.New().String()
	found, err := h.searcher.Search(ctx, result, page)
	if err != nil {
		return nil, h.mapSearchError(ctx, err)
	}

	listings := found.Listings
	if listings == nil {
		listings = []models.Listing{}
	}
	h.obs.RecordRowsReturned(ctx, len(listings), result.IsDirectLookup)

	h.logger.Info("search completed", map[string]interface{}{
		"searchId":   searchID,
		"rowCount":   len(listings),
		"attempts":   found.Attempts,
		"multiplier": found.Multiplier,
		"scanned":    found.Scanned,
	})

	return &Output{
		SearchID:           searchID,
		Listings:           listings,
		RowCount:           len(listings),
		Page:               page.Number,
		PageSize:           page.Size,
		IsDirectLookup:     result.IsDirectLookup,
		Attempts:           found.Attempts,
		QueryExecutionTime: found.Duration.Milliseconds(),
	}, nil
}

// page applies defaults and caps the size. A negative page or size is
// rejected rather than clamped.
func (h *Handler) page(input *Input) (executor.Page, error) {
	if input.Page < 0 {
		return executor.Page{}, errors.NewInvalidPageError(fmt.Sprintf("page %d", input.Page))
	}
	if input.PageSize < 0 {
		return executor.Page{}, errors.NewInvalidPageError(fmt.Sprintf("pageSize %d", input.PageSize))
	}

	p := executor.Page{Number: input.Page, Size: input.PageSize}
	if p.Number == 0 {
		p.Number = 1
	}
	if p.Size == 0 {
		p.Size = h.config.DefaultPageSize
	}
	if h.config.MaxPageSize > 0 && p.Size > h.config.MaxPageSize {
		p.Size = h.config.MaxPageSize
	}
	return p, nil
}

func (h *Handler) mapSearchError(ctx context.Context, err error) error {
	switch {
	case stderrors.Is(err, executor.ErrQueryTimeout) || ctx.Err() == context.DeadlineExceeded:
		return errors.NewQueryTimeoutError(err)
	case stderrors.Is(err, executor.ErrSchoolLookupFailed):
		return errors.NewSchoolLookupFailedError(err)
	case stderrors.Is(err, executor.ErrInvalidPage):
		return errors.NewInvalidPageError(err.Error())
	default:
		return errors.NewQueryExecutionFailedError(err)
	}
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	bpmnErr := h.errorHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "error")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "error")
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
