package enums

import (
	"fmt"
	"strings"
)

// ConversionStatus is the canonical approval state reported by a source.
type ConversionStatus string

const (
	ConversionStatusPending   ConversionStatus = "pending"
	ConversionStatusApproved  ConversionStatus = "approved"
	ConversionStatusCancelled ConversionStatus = "cancelled"
)

var validConversionStatuses = []ConversionStatus{
	ConversionStatusPending,
	ConversionStatusApproved,
	ConversionStatusCancelled,
}

// String implements fmt.Stringer.
func (s ConversionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical status enum.
func (s ConversionStatus) IsValid() bool {
	for _, candidate := range validConversionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseConversionStatus converts raw input into ConversionStatus. Matching is
// case-insensitive.
func ParseConversionStatus(value string) (ConversionStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validConversionStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid conversion status %q", value)
}
