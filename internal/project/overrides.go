package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Override names as they appear in flags, JSON and audit records.
const (
	OverrideAllowStaleApproval     = "allow_stale_approval"
	OverrideSkipMinTaskValidation  = "skip_min_task_validation"
	OverrideAllowPartialCompletion = "allow_partial_completion"
	OverrideSkipSignoff            = "skip_signoff"
	OverrideMinTasksPerPhase       = "min_tasks_per_phase"
)

// ErrUnknownOverride is returned for override keys that do not exist.
var ErrUnknownOverride = errors.New("unknown override")

// ErrInvalidOverride is returned for a known override with a bad value.
var ErrInvalidOverride = errors.New("invalid override value")

// Overrides is the closed set of validator bypasses. Each boolean silences
// exactly one violation category. MinTasksPerPhase replaces the built-in
// per-phase minimum when positive.
type Overrides struct {
	AllowStaleApproval     bool `json:"allow_stale_approval,omitempty"`
	SkipMinTaskValidation  bool `json:"skip_min_task_validation,omitempty"`
	AllowPartialCompletion bool `json:"allow_partial_completion,omitempty"`
	SkipSignoff            bool `json:"skip_signoff,omitempty"`
	MinTasksPerPhase       int  `json:"min_tasks_per_phase,omitempty"`
}

// OverrideNames lists the boolean override names in validation order.
func OverrideNames() []string {
	return []string{
		OverrideAllowStaleApproval,
		OverrideSkipMinTaskValidation,
		OverrideAllowPartialCompletion,
		OverrideSkipSignoff,
	}
}

// UnmarshalJSON rejects unknown keys so that a typo never silently turns
// into a missing override.
func (o *Overrides) UnmarshalJSON(data []byte) error {
	type plain Overrides
	var v plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return fmt.Errorf("%w: %v", ErrUnknownOverride, err)
		}
		return err
	}
	if v.MinTasksPerPhase < 0 {
		return fmt.Errorf("%s must not be negative", OverrideMinTasksPerPhase)
	}
	*o = Overrides(v)
	return nil
}

// Enabled reports whether the named boolean override is set.
func (o Overrides) Enabled(name string) bool {
	switch name {
	case OverrideAllowStaleApproval:
		return o.AllowStaleApproval
	case OverrideSkipMinTaskValidation:
		return o.SkipMinTaskValidation
	case OverrideAllowPartialCompletion:
		return o.AllowPartialCompletion
	case OverrideSkipSignoff:
		return o.SkipSignoff
	}
	return false
}

// Merge returns o with every override set in other also set.
func (o Overrides) Merge(other Overrides) Overrides {
	o.AllowStaleApproval = o.AllowStaleApproval || other.AllowStaleApproval
	o.SkipMinTaskValidation = o.SkipMinTaskValidation || other.SkipMinTaskValidation
	o.AllowPartialCompletion = o.AllowPartialCompletion || other.AllowPartialCompletion
	o.SkipSignoff = o.SkipSignoff || other.SkipSignoff
	if other.MinTasksPerPhase > 0 {
		o.MinTasksPerPhase = other.MinTasksPerPhase
	}
	return o
}

// ParseOverrideFlags turns "name" or "name=value" strings into Overrides.
// A bare name enables a boolean override.
func ParseOverrideFlags(flags []string) (Overrides, error) {
	var o Overrides
	for _, raw := range flags {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, value, hasValue := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if name == OverrideMinTasksPerPhase {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return Overrides{}, fmt.Errorf("%w: %s needs a non-negative integer, got %q", ErrInvalidOverride, name, value)
			}
			o.MinTasksPerPhase = n
			continue
		}

		on := true
		if hasValue {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Overrides{}, fmt.Errorf("%w: %s needs a boolean, got %q", ErrInvalidOverride, name, value)
			}
			on = b
		}
		switch name {
		case OverrideAllowStaleApproval:
			o.AllowStaleApproval = on
		case OverrideSkipMinTaskValidation:
			o.SkipMinTaskValidation = on
		case OverrideAllowPartialCompletion:
			o.AllowPartialCompletion = on
		case OverrideSkipSignoff:
			o.SkipSignoff = on
		default:
			return Overrides{}, fmt.Errorf("%w %q: must be one of: %s, %s",
				ErrUnknownOverride, name, strings.Join(OverrideNames(), ", "), OverrideMinTasksPerPhase)
		}
	}
	return o, nil
}
