// internal/workers/recommendation/invalidate-recommendations/handler.go
package invalidaterecommendations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"welfare-recommender/internal/common/errors"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/common/metrics"
	"welfare-recommender/internal/common/observability"
	"welfare-recommender/internal/common/validation"
	"welfare-recommender/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = registry.TaskInvalidateRecommendations

type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type Handler struct {
	config   *Config
	engine   Invalidator
	schema   *validation.Schema
	errors   *errors.ErrorHandler
	observer observability.JobRecorder
	logger   logger.Logger
	now      func() time.Time
}

type HandlerOptions struct {
	Config   *Config
	Engine   Invalidator
	Observer observability.JobRecorder
	Logger   logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("%s: engine is required", TaskType)
	}
	if opts.Config == nil {
		opts.Config = &Config{Timeout: 5 * time.Second}
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Observer == nil {
		opts.Observer = observability.NewNoop()
	}

	schema, err := validation.Compile(registry.Default().InputSchema(TaskType))
	if err != nil {
		return nil, fmt.Errorf("%s input schema: %w", TaskType, err)
	}

	log := opts.Logger.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   opts.Config,
		engine:   opts.Engine,
		schema:   schema,
		errors:   errors.NewErrorHandler(log),
		observer: opts.Observer,
		logger:   log,
		now:      time.Now,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.process(ctx, job)
	if err != nil {
		failCtx, cancelFail := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFail()

		bpmnErr := h.errors.HandleJobError(failCtx, client, job, err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
		h.observer.RecordJob(ctx, TaskType, "failed", time.Since(start))
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err == nil {
		_, err = cmd.Send(ctx)
	}
	if err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.observer.RecordJob(ctx, TaskType, "completed", time.Since(start))
}

func (h *Handler) process(ctx context.Context, job entities.Job) (*Output, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("job variables are not a JSON object: %v", err))
	}
	result, err := h.schema.Validate(variables)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, errors.NewInvalidInputError(result.Summary())
	}

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	return h.Execute(ctx, &input)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := h.engine.Invalidate(ctx, input.UserID); err != nil {
		return nil, err
	}

	h.logger.Info("recommendations invalidated", map[string]interface{}{
		"userId": input.UserID,
	})
	return &Output{UserID: input.UserID, Invalidated: true, InvalidatedAt: h.now().UTC()}, nil
}
