package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

var impactPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ImpactID represents a classification code for ticket impact
type ImpactID string

// Validate checks if the ImpactID is valid
func (i ImpactID) Validate() error {
	if i == "" {
		return goerr.New("impact ID cannot be empty")
	}
	if !impactPattern.MatchString(string(i)) {
		return goerr.New("impact ID must be lowercase alphanumeric with hyphens", goerr.V("id", i))
	}
	return nil
}

// String returns the string representation of ImpactID
func (i ImpactID) String() string {
	return string(i)
}
