package store

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/headline-goat/adlift/internal/stats"
)

var validate = validator.New()

// ErrInvalidTest wraps every NewTest validation failure.
var ErrInvalidTest = errors.New("invalid test")

// Validate checks the field rules plus the cross-field invariants:
// a supported confidence level and exactly one control variant.
func (nt NewTest) Validate() error {
	if err := validate.Struct(nt); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTest, err)
	}

	if _, err := stats.ParseConfidenceLevel(nt.ConfidenceLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTest, err)
	}

	if nt.EndDate != nil && nt.EndDate.Before(nt.StartDate) {
		return fmt.Errorf("%w: end date is before start date", ErrInvalidTest)
	}

	controls := 0
	names := make(map[string]bool, len(nt.Variants))
	for _, v := range nt.Variants {
		if v.IsControl {
			controls++
		}
		if names[v.Name] {
			return fmt.Errorf("%w: duplicate variant name %q", ErrInvalidTest, v.Name)
		}
		names[v.Name] = true
	}
	if controls != 1 {
		return fmt.Errorf("%w: need exactly one control variant, got %d", ErrInvalidTest, controls)
	}

	return nil
}
