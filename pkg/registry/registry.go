// pkg/registry/registry.go

// Package registry reads the activity registry that documents the job types,
// their input contract and the BPMN error codes they can raise.
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"listing-workers/internal/common/validation"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Validate checks that every activity has a unique task type and an input
// schema that compiles.
func (r *ActivityRegistry) Validate() error {
	seen := make(map[string]bool)
	for _, a := range r.Activities {
		if a.TaskType == "" {
			return fmt.Errorf("activity %q has no taskType", a.ID)
		}
		if seen[a.TaskType] {
			return fmt.Errorf("duplicate taskType %q", a.TaskType)
		}
		seen[a.TaskType] = true

		if _, err := a.Schema(); err != nil {
			return fmt.Errorf("activity %q: %w", a.TaskType, err)
		}
	}
	return nil
}

// Schema compiles the activity's input schema. An activity without one
// accepts any object.
func (a *Activity) Schema() (*validation.Schema, error) {
	doc := a.InputSchema
	if doc == nil {
		doc = map[string]interface{}{"type": "object"}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return validation.NewSchema(string(b))
}

// ValidateInput checks decoded job variables against the activity's schema.
func (a *Activity) ValidateInput(vars map[string]interface{}) (*validation.ValidationResult, error) {
	s, err := a.Schema()
	if err != nil {
		return nil, err
	}
	return s.Validate(vars), nil
}
