// Package forms holds the data model shared by the submission queue, the
// draft synchronizer and the submission orchestrator.
package forms

import (
	"fmt"
	"reflect"
)

// Condition operators supported on submission events.
const (
	OperatorEquals    = "EQUALS"
	OperatorNotEquals = "NOT_EQUALS"
	OperatorHasValue  = "HAS_VALUE"
)

// Form is a form definition as served by the forms platform.
type Form struct {
	ID                    int64             `json:"id"`
	Name                  string            `json:"name"`
	FormsAppEnvironmentID int64             `json:"formsAppEnvironmentId,omitempty"`
	IsAuthenticated       bool              `json:"isAuthenticated"`
	Elements              []Element         `json:"elements,omitempty"`
	PaymentEvents         []SubmissionEvent `json:"paymentEvents,omitempty"`
	SchedulingEvents      []SubmissionEvent `json:"schedulingEvents,omitempty"`
}

// Element is the subset of a form element the engine needs.
type Element struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SubmissionEvent is a side effect configured on a form (payment, booking).
type SubmissionEvent struct {
	Type                    string           `json:"type"`
	Configuration           map[string]any   `json:"configuration,omitempty"`
	ConditionallyExecute    bool             `json:"conditionallyExecute,omitempty"`
	RequiresAllConditionals bool             `json:"requiresAllConditionals,omitempty"`
	Conditions              []EventCondition `json:"conditions,omitempty"`
}

// EventCondition tests one submission value.
type EventCondition struct {
	ElementName string `json:"elementName"`
	Operator    string `json:"operator"`
	Value       any    `json:"value,omitempty"`
}

// Matches reports whether the event applies to the submission data.
func (e SubmissionEvent) Matches(submission map[string]any) bool {
	if !e.ConditionallyExecute || len(e.Conditions) == 0 {
		return true
	}
	for _, c := range e.Conditions {
		ok := c.Holds(submission)
		if e.RequiresAllConditionals && !ok {
			return false
		}
		if !e.RequiresAllConditionals && ok {
			return true
		}
	}
	return e.RequiresAllConditionals
}

// Holds evaluates the condition against the submission data. Unknown
// operators never hold.
func (c EventCondition) Holds(submission map[string]any) bool {
	v, present := submission[c.ElementName]
	switch c.Operator {
	case OperatorHasValue:
		return present && hasValue(v)
	case OperatorEquals:
		return present && valueMatches(v, c.Value)
	case OperatorNotEquals:
		return !present || !valueMatches(v, c.Value)
	default:
		return false
	}
}

func hasValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

// valueMatches compares loosely so that 1 (int) and 1.0 (decoded JSON)
// are equal, and a multi-select value matches when it contains expected.
func valueMatches(actual, expected any) bool {
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if valueMatches(item, expected) {
				return true
			}
		}
		return false
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// PaymentEvent returns the first payment event matching the submission.
func (f Form) PaymentEvent(submission map[string]any) *SubmissionEvent {
	return firstMatching(f.PaymentEvents, submission)
}

// SchedulingEvent returns the first scheduling event matching the submission.
func (f Form) SchedulingEvent(submission map[string]any) *SubmissionEvent {
	return firstMatching(f.SchedulingEvents, submission)
}

func firstMatching(events []SubmissionEvent, submission map[string]any) *SubmissionEvent {
	for i := range events {
		if events[i].Matches(submission) {
			return &events[i]
		}
	}
	return nil
}
