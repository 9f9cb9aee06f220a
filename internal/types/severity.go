// SPDX-License-Identifier: MIT

package types

// Severity classifies a validation finding. Errors block publication,
// warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid checks whether the severity is one of the defined constants.
func (s Severity) IsValid() bool {
	return s == SeverityError || s == SeverityWarning
}

// IncentiveStatus represents the lifecycle state of a promotional incentive.
type IncentiveStatus string

const (
	IncentiveActive  IncentiveStatus = "active"
	IncentiveExpired IncentiveStatus = "expired"
)

// String returns the string representation of the incentive status.
func (s IncentiveStatus) String() string {
	return string(s)
}
