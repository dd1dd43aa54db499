// internal/workers/recommendation/explain-recommendation/handler.go
package explainrecommendation

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
	"welfare-recommender/internal/models"
	"welfare-recommender/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType       = registry.TaskExplainRecommendation
	commandTimeout = 5 * time.Second
)

type Explainer interface {
	ExplainRecommendation(ctx context.Context, userID, schemeID, language string) (*models.RecommendationExplanation, error)
}

type Handler struct {
	config   *Config
	engine   Explainer
	schema   *validation.Schema
	errors   *errors.ErrorHandler
	observer observability.JobRecorder
	logger   logger.Logger
}

type HandlerOptions struct {
	Config   *Config
	Engine   Explainer
	Observer observability.JobRecorder
	Logger   logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("%s: engine is required", TaskType)
	}
	if opts.Config == nil {
		opts.Config = &Config{Timeout: 10 * time.Second, DefaultLanguage: "en"}
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
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	output, err := h.process(ctx, job)
	if err != nil {
		sendCtx, cancelSend := context.WithTimeout(context.Background(), commandTimeout)
		defer cancelSend()

		bpmnErr := h.errors.HandleJobError(sendCtx, client, job, err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
		h.observer.RecordJob(ctx, TaskType, "failed", time.Since(start))
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.observer.RecordJob(ctx, TaskType, "completed", time.Since(start))
}

func (h *Handler) process(ctx context.Context, job entities.Job) (*Output, error) {
	input, err := h.parseInput(job)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, input)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
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
		return nil, errors.NewInvalidInputError(fmt.Sprintf("decode variables: %v", err))
	}
	if input.Language == "" {
		input.Language = h.config.DefaultLanguage
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	exp, err := h.engine.ExplainRecommendation(ctx, input.UserID, input.SchemeID, input.Language)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewDependencyTimeoutError(TaskType, err)
		}
		return nil, err
	}

	h.logger.Info("explanation built", map[string]interface{}{
		"userId":     input.UserID,
		"schemeId":   input.SchemeID,
		"eligible":   exp.Eligible,
		"matchScore": exp.MatchScore,
	})

	return &Output{
		Explanation: exp,
		Eligible:    exp.Eligible,
		MatchScore:  exp.MatchScore,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}
}
