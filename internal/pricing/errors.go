package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidNumber indicates a numeric field could not be parsed under the strict policy.
	ErrInvalidNumber = errors.New("pricing: invalid number")
	// ErrLineNotFound indicates an action referenced a missing product row.
	ErrLineNotFound = errors.New("pricing: line not found")
	// ErrUnknownTaxOption indicates the selected tax option is not available for the draft.
	ErrUnknownTaxOption = errors.New("pricing: unknown tax option")
	// ErrConfirmationRequired guards recomputations that would discard an installment schedule.
	ErrConfirmationRequired = errors.New("pricing: confirmation required to replace installment schedule")
	// ErrInvalidInstallmentCount indicates an EMI plan with a count outside 1..MaxInstallments.
	ErrInvalidInstallmentCount = fmt.Errorf("pricing: installment count must be between 1 and %d", MaxInstallments)
	// ErrInvalidFrequency indicates an unsupported EMI frequency.
	ErrInvalidFrequency = errors.New("pricing: invalid emi frequency")
	// ErrNegativeInterest indicates a negative EMI interest rate.
	ErrNegativeInterest = errors.New("pricing: interest rate must not be negative")
	// ErrNoSchedule indicates an installment action on a draft without EMI.
	ErrNoSchedule = errors.New("pricing: no installment schedule")
	// ErrInstallmentNotFound indicates an installment index outside the schedule.
	ErrInstallmentNotFound = errors.New("pricing: installment not found")
	// ErrAlreadyPaid indicates an attempt to pay an installment twice.
	ErrAlreadyPaid = errors.New("pricing: installment already paid")
	// ErrInvalidAction indicates an action whose payload or arguments cannot be applied.
	ErrInvalidAction = errors.New("pricing: invalid action")
	// ErrUnknownAction indicates an action envelope with an unsupported type.
	ErrUnknownAction = errors.New("pricing: unknown action")
	// ErrValidation is wrapped by ValidationErrors.
	ErrValidation = errors.New("pricing: validation failed")
)

// NumberError reports the field and raw value rejected by the numeric policy.
// Err is set when the value parsed but falls outside the supported range,
// which is rejected under every policy.
type NumberError struct {
	Field string
	Value string
	Err   error
}

func (e *NumberError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pricing: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("pricing: invalid number for %s: %q", e.Field, e.Value)
}

// Unwrap allows errors.Is(err, ErrInvalidNumber) and matching the range error.
func (e *NumberError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidNumber, e.Err}
	}
	return []error{ErrInvalidNumber}
}

// Message is the per-field text shown to the user.
func (e *NumberError) Message() string {
	if e.Err != nil {
		return "is too large"
	}
	return "must be a number"
}

// ValidationErrors maps field paths (e.g. "products[0].quantity") to messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+v[k])
	}
	return "pricing: validation failed: " + strings.Join(parts, "; ")
}

// Unwrap allows errors.Is(err, ErrValidation).
func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}
