// internal/workers/search/compile-listing-filters/handler.go
package compilelistingfilters

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"listing-workers/internal/common/errors"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/metrics"
	"listing-workers/internal/common/observability"
	"listing-workers/internal/search/filter"
)

const (
	TaskType = "compile-listing-filters"
)

type Handler struct {
	config       *Config
	compiler     *filter.Compiler
	obs          *observability.Observability
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = &observability.Observability{}
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
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

	if err := h.completeJob(context.Background(), client, job, output); err != nil {
		h.fail(context.Background(), client, job, start, errors.NewInternalError(err))
		return
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

	result, err := h.compiler.Compile(filter.RawInput(input.RawFilters))
	if err != nil {
		var ve *filter.ValidationError
		if stderrors.As(err, &ve) {
			metrics.FilterRejections.WithLabelValues(ve.Field).Inc()
			return nil, errors.NewInvalidFilterFormatError(ve.Field, err)
		}
		return nil, errors.NewInternalError(err)
	}

	where, args, err := result.Where(1)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("render predicate: %w", err))
	}

	mode := metrics.CompilationMode(result.IsDirectLookup, result.HasSchoolFilters)
	metrics.FilterCompilations.WithLabelValues(mode).Inc()
	h.logger.Debug("filters compiled", map[string]interface{}{
		"mode":     mode,
		"argCount": len(args),
		"orderBy":  result.OrderBy.Column,
	})

	return &Output{
		Where: where,
		Args:  args,
		OrderBy: OrderBy{
			Column:    result.OrderBy.Column,
			Direction: string(result.OrderBy.Direction),
		},
		IsDirectLookup:      result.IsDirectLookup,
		HasSchoolFilters:    result.HasSchoolFilters,
		SchoolCriteria:      result.SchoolCriteria,
		OverfetchMultiplier: result.OverfetchMultiplier,
		IncludesArchived:    result.IncludesArchived,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
	return nil
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
