package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kanbo/internal/automation"
	"kanbo/internal/models"
)

// maxAutomationSteps bounds the action chain. The ceiling keeps executor
// latency and placeholder-resolution complexity predictable.
const maxAutomationSteps = 3

// ValidationResult is a first-class value, never an error: callers branch
// on IsValid.
type ValidationResult struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message,omitempty"`
}

// StepValidationRequest validates one step in isolation.
type StepValidationRequest struct {
	Tag          string                 `json:"tag"`
	Value        string                 `json:"value"`
	Data         map[string]interface{} `json:"data"`
	AutomationID uuid.UUID              `json:"automation_id"`
}

// ValidationService checks an automation (or a single step) is runnable
// against the registry's live field schemas. A handler can tighten its
// requirements after an automation was saved; previously-valid automations
// must be caught here before they run, so nothing is cached.
type ValidationService struct {
	automations *AutomationService
	registry    *automation.Registry
	logger      *logrus.Logger
}

func NewValidationService(automations *AutomationService, registry *automation.Registry, logger *logrus.Logger) *ValidationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ValidationService{automations: automations, registry: registry, logger: logger}
}

// ValidateAutomationBeforeRun fails closed: any load error or structural
// problem yields invalid, not an exception.
func (s *ValidationService) ValidateAutomationBeforeRun(ctx context.Context, id uuid.UUID) ValidationResult {
	am, err := s.automations.FindOne(ctx, id)
	if err != nil {
		return ValidationResult{IsValid: false, Message: fmt.Sprintf("automation not loadable: %v", err)}
	}

	if am.TriggerStep == nil || am.TriggerStep.Value == nil || *am.TriggerStep.Value == "" {
		return ValidationResult{IsValid: false, Message: "Automation trigger is empty"}
	}
	if len(am.Steps) > maxAutomationSteps {
		return ValidationResult{
			IsValid: false,
			Message: fmt.Sprintf("Automation cannot have more than %d steps", maxAutomationSteps),
		}
	}

	if res := s.ValidateStep(ctx, StepValidationRequest{
		Tag:          models.StepTagTrigger,
		Value:        *am.TriggerStep.Value,
		Data:         automation.DecodeData(am.TriggerStep.Data),
		AutomationID: am.ID,
	}); !res.IsValid {
		return res
	}

	for i := range am.Steps {
		step := am.Steps[i]
		value := ""
		if step.Value != nil {
			value = *step.Value
		}
		if res := s.ValidateStep(ctx, StepValidationRequest{
			Tag:          step.Tag,
			Value:        value,
			Data:         automation.DecodeData(step.Data),
			AutomationID: am.ID,
		}); !res.IsValid {
			return res
		}
	}
	return ValidationResult{IsValid: true}
}

// ValidateStep checks the step's kind is set and registered and that every
// field its handler currently marks required is populated.
func (s *ValidationService) ValidateStep(ctx context.Context, req StepValidationRequest) ValidationResult {
	if req.Value == "" {
		return ValidationResult{IsValid: false, Message: "Step kind is empty"}
	}

	var (
		fields []automation.Field
		err    error
	)
	fieldsReq := automation.FieldsRequest{AutomationID: req.AutomationID, Data: req.Data}
	switch req.Tag {
	case models.StepTagTrigger:
		h, ok := s.registry.Trigger(req.Value)
		if !ok {
			return ValidationResult{IsValid: false, Message: fmt.Sprintf("No trigger handler registered for %q", req.Value)}
		}
		fields, err = h.Fields(ctx, fieldsReq)
	default:
		h, ok := s.registry.Action(req.Value)
		if !ok {
			return ValidationResult{IsValid: false, Message: fmt.Sprintf("No action handler registered for %q", req.Value)}
		}
		fields, err = h.Fields(ctx, fieldsReq)
	}
	if err != nil {
		return ValidationResult{IsValid: false, Message: fmt.Sprintf("field schema unavailable: %v", err)}
	}

	for _, f := range fields {
		if !f.Required {
			continue
		}
		if isEmptyValue(req.Data[f.ID]) {
			return ValidationResult{
				IsValid: false,
				Message: fmt.Sprintf("Required field %q is empty", f.Title),
			}
		}
	}
	return ValidationResult{IsValid: true}
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}
