// Package handlers contains the built-in trigger and action handlers and
// their startup registration. Each handler owns its field schema, sample
// payload and execution semantics; shared entity lookups go through the
// automation.Toolbox.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kanbo/internal/auth"
	"kanbo/internal/automation"
)

var errNotSystem = errors.New("automation action requires the system principal")

// requireSystem guards entity mutations: action handlers run with no
// authenticated user and must only write under the explicit system bypass
// set by the executor.
func requireSystem(ctx context.Context) error {
	if !auth.IsSystem(ctx) {
		return errNotSystem
	}
	return nil
}

// dataString reads a string-valued config entry.
func dataString(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

// dataUUID reads a uuid-valued config entry, tolerating absence.
func dataUUID(data map[string]interface{}, key string) (uuid.UUID, bool) {
	s := dataString(data, key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// dataStringSet reads a []string config entry (JSON arrays decode to
// []interface{}) into a membership set. An absent or empty entry yields an
// empty set, which callers treat as "match anything".
func dataStringSet(data map[string]interface{}, key string) map[string]struct{} {
	out := map[string]struct{}{}
	if data == nil {
		return out
	}
	arr, _ := data[key].([]interface{})
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// stageOptions builds select options from the stages of the automation's
// lists.
func stageOptions(ctx context.Context, tb *automation.Toolbox, automationID uuid.UUID) ([]automation.FieldOption, error) {
	stages, err := tb.ListStages(ctx, automationID)
	if err != nil {
		return nil, err
	}
	opts := make([]automation.FieldOption, 0, len(stages))
	for _, s := range stages {
		opts = append(opts, automation.FieldOption{ID: s.ID.String(), Title: s.Name})
	}
	return opts, nil
}

// userOptions builds select options from the members of the automation's
// lists.
func userOptions(ctx context.Context, tb *automation.Toolbox, automationID uuid.UUID) ([]automation.FieldOption, error) {
	lists, err := tb.AutomationLists(ctx, automationID)
	if err != nil {
		return nil, err
	}
	listIDs := make([]uuid.UUID, 0, len(lists))
	for _, l := range lists {
		listIDs = append(listIDs, l.ID)
	}
	users, err := tb.ListUsers(ctx, listIDs)
	if err != nil {
		return nil, err
	}
	opts := make([]automation.FieldOption, 0, len(users))
	for _, u := range users {
		opts = append(opts, automation.FieldOption{ID: fmt.Sprintf("%d", u.ID), Title: u.Name})
	}
	return opts, nil
}

// fieldOptions builds select options from the custom field definitions of
// the automation's lists.
func fieldOptions(ctx context.Context, tb *automation.Toolbox, automationID uuid.UUID) ([]automation.FieldOption, error) {
	fields, err := tb.CardFields(ctx, automationID)
	if err != nil {
		return nil, err
	}
	opts := make([]automation.FieldOption, 0, len(fields))
	for _, f := range fields {
		opts = append(opts, automation.FieldOption{ID: f.ID.String(), Title: f.Title})
	}
	return opts, nil
}
