// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"welfare-recommender/internal/common/validation"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes the registry as indented JSON.
func (r *ActivityRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Find returns the activity bound to taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// InputSchema returns the input schema for taskType and panics when the task
// type is unknown. Workers call it once at construction.
func (r *ActivityRegistry) InputSchema(taskType string) map[string]interface{} {
	a, ok := r.Find(taskType)
	if !ok {
		panic(fmt.Sprintf("registry: unknown task type %q", taskType))
	}
	return a.InputSchema
}

// Validate checks ids and task types are unique and that every schema compiles.
func (r *ActivityRegistry) Validate() []error {
	var errs []error
	ids := map[string]bool{}
	taskTypes := map[string]bool{}

	for _, a := range r.Activities {
		if a.ID == "" || a.TaskType == "" {
			errs = append(errs, fmt.Errorf("activity %q: id and taskType are required", a.DisplayName))
			continue
		}
		if ids[a.ID] {
			errs = append(errs, fmt.Errorf("activity %s: duplicate id", a.ID))
		}
		if taskTypes[a.TaskType] {
			errs = append(errs, fmt.Errorf("activity %s: duplicate taskType %s", a.ID, a.TaskType))
		}
		ids[a.ID] = true
		taskTypes[a.TaskType] = true

		if len(a.InputSchema) > 0 {
			if _, err := validation.Compile(a.InputSchema); err != nil {
				errs = append(errs, fmt.Errorf("activity %s: input schema: %w", a.ID, err))
			}
		}
		if len(a.OutputSchema) > 0 {
			if _, err := validation.Compile(a.OutputSchema); err != nil {
				errs = append(errs, fmt.Errorf("activity %s: output schema: %w", a.ID, err))
			}
		}
	}
	return errs
}

// Diff lists the task types present in only one of the two registries.
func Diff(a, b *ActivityRegistry) (onlyA, onlyB []string) {
	inA := map[string]bool{}
	for _, act := range a.Activities {
		inA[act.TaskType] = true
	}
	inB := map[string]bool{}
	for _, act := range b.Activities {
		inB[act.TaskType] = true
		if !inA[act.TaskType] {
			onlyB = append(onlyB, act.TaskType)
		}
	}
	for t := range inA {
		if !inB[t] {
			onlyA = append(onlyA, t)
		}
	}
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return onlyA, onlyB
}
