package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"iotml/internal/engine"
)

var modelIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// newValidator registers the domain rules used by CreateJobRequest.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("model_kind", func(fl validator.FieldLevel) bool {
		return engine.Kind(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("model_id", func(fl validator.FieldLevel) bool {
		return modelIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// validateRequest converts validator failures into a *ValidationError naming
// the first offending field.
func (o *Orchestrator) validateRequest(req *CreateJobRequest) error {
	err := o.validate.Struct(req)
	if err == nil {
		return validateConfig(req.Config)
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := jsonFieldName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "gt":
		return &ValidationError{Field: field, Message: "must be greater than " + fe.Param()}
	case "model_kind":
		return &ValidationError{Field: field, Message: fmt.Sprintf("unsupported model type %q", fe.Value())}
	case "model_id":
		return &ValidationError{Field: field, Message: "may only contain letters, digits, '.', '_' and '-'"}
	case "max":
		return &ValidationError{Field: field, Message: "must be at most " + fe.Param() + " characters"}
	}
	return &ValidationError{Field: field, Message: "failed " + fe.Tag() + " check"}
}

func jsonFieldName(structField string) string {
	switch structField {
	case "ModelID":
		return "model_id"
	case "OrganizationID":
		return "organization_id"
	case "ModelType":
		return "model_type"
	case "JobType":
		return "job_type"
	case "TriggeredBy":
		return "triggered_by"
	}
	return strings.ToLower(structField)
}

// validateConfig checks config values that must be well formed at creation
// time. Range checks on n_samples happen when the job runs.
func validateConfig(cfg map[string]any) error {
	if _, ok := cfg["n_samples"]; ok {
		if _, err := sampleCount(cfg); err != nil {
			return err
		}
	}
	if hp, ok := cfg["hyperparameters"]; ok && hp != nil {
		if _, ok := hp.(map[string]any); !ok {
			return &ValidationError{Field: "hyperparameters", Message: "must be an object"}
		}
	}
	if src, ok := cfg["data_source"]; ok {
		s, _ := src.(string)
		if s != sourceSynthetic && s != sourceTelemetry {
			return &ValidationError{Field: "data_source", Message: fmt.Sprintf("must be %q or %q", sourceSynthetic, sourceTelemetry)}
		}
	}
	return nil
}

// sampleCount reads config["n_samples"], defaulting to 1000.
func sampleCount(cfg map[string]any) (int, error) {
	raw, ok := cfg["n_samples"]
	if !ok || raw == nil {
		return defaultSamples, nil
	}
	var f float64
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		f = v
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, &ValidationError{Field: "n_samples", Message: "must be an integer"}
		}
		f = n
	default:
		return 0, &ValidationError{Field: "n_samples", Message: "must be an integer"}
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, &ValidationError{Field: "n_samples", Message: "must be an integer"}
	}
	return int(f), nil
}

func hyperparameters(cfg map[string]any) map[string]any {
	hp, _ := cfg["hyperparameters"].(map[string]any)
	return hp
}

func intOption(cfg map[string]any, key string, def int64) int64 {
	switch v := cfg[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return def
}
