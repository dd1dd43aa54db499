// cmd/tools/worker-generator/main.go
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"welfare-recommender/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name         string
	PackageName  string
	TaskType     string
	InputSchema  map[string]interface{}
	OutputSchema map[string]interface{}
	ErrorCodes   []string
	Description  string
	Category     string
	Timeout      string
	NeedsTime    bool
}

// parseSchema extracts properties from a JSON schema object
func parseSchema(schemaObj interface{}) map[string]interface{} {
	if schemaMap, ok := schemaObj.(map[string]interface{}); ok {
		if properties, ok := schemaMap["properties"].(map[string]interface{}); ok {
			return properties
		}
	}
	return map[string]interface{}{}
}

func goTypeFromJSONType(jsonType interface{}, jsonFormat interface{}) string {
	jt, _ := jsonType.(string)
	switch jt {
	case "string":
		if jf, _ := jsonFormat.(string); jf == "date-time" {
			return "time.Time"
		}
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

// generateStructFields renders one field per property, sorted by name.
func generateStructFields(properties map[string]interface{}) string {
	names := make([]string, 0, len(properties))
	for prop := range properties {
		names = append(names, prop)
	}
	sort.Strings(names)

	var fields []string
	for _, prop := range names {
		details, ok := properties[prop].(map[string]interface{})
		if !ok {
			continue
		}
		goType := goTypeFromJSONType(details["type"], details["format"])
		fields = append(fields, fmt.Sprintf("\t%s %s `json:\"%s,omitempty\"`", fieldName(prop), goType, prop))
	}
	return strings.Join(fields, "\n")
}

// fieldName turns userId into UserID and benefitType into BenefitType.
func fieldName(prop string) string {
	name := upperFirst(prop)
	if strings.HasSuffix(name, "Id") {
		name = strings.TrimSuffix(name, "Id") + "ID"
	}
	return name
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const configTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/config.go
package {{ .PackageName }}

import (
	"fmt"
	"time"

	"welfare-recommender/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = {{ .Timeout }}
	}
	return &Config{Timeout: timeout}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
`

const modelsTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/models.go
package {{ .PackageName }}
{{ if .NeedsTime }}
import "time"
{{ end }}
type Input struct {
{{ generateStructFields (parseSchema .InputSchema) }}
}

type Output struct {
{{ generateStructFields (parseSchema .OutputSchema) }}
}
`

const handlerTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/handler.go
package {{ .PackageName }}

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

const TaskType = "{{ .TaskType }}"

// Service does the work behind {{ .Name }}.
type Service interface {
	Run(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	config   *Config
	service  Service
	schema   *validation.Schema
	errors   *errors.ErrorHandler
	observer observability.JobRecorder
	logger   logger.Logger
}

type HandlerOptions struct {
	Config   *Config
	Service  Service
	Observer observability.JobRecorder
	Logger   logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("%s: service is required", TaskType)
	}
	if opts.Config == nil {
		opts.Config = &Config{Timeout: {{ .Timeout }}}
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Observer == nil {
		opts.Observer = observability.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}

	schema, err := validation.Compile(registry.Default().InputSchema(TaskType))
	if err != nil {
		return nil, fmt.Errorf("%s input schema: %w", TaskType, err)
	}

	log := opts.Logger.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   opts.Config,
		service:  opts.Service,
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
		return nil, errors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	output, err := h.service.Run(ctx, input)
	if err != nil && ctx.Err() != nil {
		return nil, errors.NewDependencyTimeoutError(TaskType, err)
	}
	return output, err
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"welfare-recommender/internal/common/logger"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Run(ctx context.Context, input *Input) (*Output, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Output), args.Error(1)
}

func TestExecute(t *testing.T) {
	svc := &MockService{}
	input := &Input{}
	svc.On("Run", mock.Anything, input).Return(&Output{}, nil).Once()

	h, err := NewHandler(HandlerOptions{Service: svc, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), input)
	require.NoError(t, err)
	svc.AssertExpectations(t)
}
`

const readmeTemplate = `# {{ .Name }}

{{ .Description }}

Task type: ` + "`{{ .TaskType }}`" + `, default timeout {{ .Timeout }}.

## Input
{{ range $prop, $details := parseSchema .InputSchema }}
- **{{ $prop }}** ({{ goTypeFromJSONType (index $details "type") (index $details "format") }})
{{- end }}

## Output
{{ range $prop, $details := parseSchema .OutputSchema }}
- **{{ $prop }}** ({{ goTypeFromJSONType (index $details "type") (index $details "format") }})
{{- end }}

## Error codes
{{ range .ErrorCodes }}
- {{ . }}
{{- end }}

## Configuration

` + "```yaml" + `
workers:
  {{ .TaskType }}:
    enabled: true
    max_jobs_active: 10
    timeout: {{ .TimeoutMillis }}
` + "```" + `
`

type templateData struct {
	WorkerData
	TimeoutMillis int64
}

var templates = map[string]string{
	"config.go":       configTemplate,
	"models.go":       modelsTemplate,
	"handler.go":      handlerTemplate,
	"handler_test.go": testTemplate,
	"README.md":       readmeTemplate,
}

func main() {
	activity := flag.String("activity", "", "Task type from the registry (e.g., explain-recommendation)")
	outputDir := flag.String("output", "./internal/workers/", "Output directory for the generated worker")
	registryPath := flag.String("registry", "", "Path to an activity registry JSON file (built-in registry when empty)")
	force := flag.Bool("force", false, "Overwrite an existing worker directory")
	flag.Parse()

	if *activity == "" {
		fmt.Println("Usage: worker-generator -activity <taskType> [-output <dir>] [-registry <path>] [-force]")
		os.Exit(1)
	}

	reg := registry.Default()
	if *registryPath != "" {
		var err error
		if reg, err = registry.LoadRegistry(*registryPath); err != nil {
			fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
			os.Exit(1)
		}
	}

	act, ok := reg.Find(*activity)
	if !ok {
		fmt.Printf("Task type '%s' not found in registry\n", *activity)
		os.Exit(1)
	}

	workerDir, err := generate(*act, *outputDir, *force)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nWorker scaffold generated at %s\n", workerDir)
	fmt.Println("Add the activity to registry.Default, implement Service, then register the handler in cmd/recommendation-worker/main.go.")
}

func generate(act registry.Activity, outputDir string, force bool) (string, error) {
	d, err := time.ParseDuration(act.Timeout)
	if err != nil || d <= 0 {
		d = 10 * time.Second
	}

	data := templateData{
		WorkerData: WorkerData{
			Name:         act.DisplayName,
			PackageName:  strings.ReplaceAll(act.TaskType, "-", ""),
			TaskType:     act.TaskType,
			InputSchema:  act.InputSchema,
			OutputSchema: act.OutputSchema,
			ErrorCodes:   act.ErrorCodes,
			Description:  act.Description,
			Category:     strings.ToLower(act.Category),
			Timeout:      durationExpr(d),
			NeedsTime: strings.Contains(generateStructFields(parseSchema(act.InputSchema)), "time.Time") ||
				strings.Contains(generateStructFields(parseSchema(act.OutputSchema)), "time.Time"),
		},
		TimeoutMillis: d.Milliseconds(),
	}

	workerDir := filepath.Join(outputDir, data.Category, act.TaskType)
	if _, err := os.Stat(workerDir); err == nil && !force {
		return "", fmt.Errorf("%s already exists, use -force to overwrite", workerDir)
	}
	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	funcMap := template.FuncMap{
		"parseSchema":          parseSchema,
		"goTypeFromJSONType":   goTypeFromJSONType,
		"generateStructFields": generateStructFields,
		"index": func(m interface{}, key string) interface{} {
			if mm, ok := m.(map[string]interface{}); ok {
				return mm[key]
			}
			return nil
		},
	}

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, filename := range names {
		tmpl, err := template.New(filename).Funcs(funcMap).Parse(templates[filename])
		if err != nil {
			return "", fmt.Errorf("parse template %s: %w", filename, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("render %s: %w", filename, err)
		}

		content := buf.Bytes()
		if strings.HasSuffix(filename, ".go") {
			if content, err = format.Source(content); err != nil {
				return "", fmt.Errorf("format %s: %w", filename, err)
			}
		}

		path := filepath.Join(workerDir, filename)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("Generated %s\n", path)
	}
	return workerDir, nil
}

// durationExpr renders d as Go source, e.g. 15 * time.Second.
func durationExpr(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d * time.Second", d/time.Second)
	}
	return fmt.Sprintf("%d * time.Millisecond", d/time.Millisecond)
}
