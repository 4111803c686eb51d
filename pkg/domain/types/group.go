package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// GroupTag identifies the group a record belongs to (e.g. a vendor such as "ovh")
type GroupTag string

var groupPattern = regexp.MustCompile(`^[a-z0-9]+([_-][a-z0-9]+)*$`)

// Validate checks if the GroupTag is valid
func (g GroupTag) Validate() error {
	if g == "" {
		return goerr.New("group tag cannot be empty")
	}
	if !groupPattern.MatchString(string(g)) {
		return goerr.New("group tag must be lowercase alphanumeric with hyphens or underscores", goerr.V("group", g))
	}
	return nil
}

// String returns the string representation of GroupTag
func (g GroupTag) String() string {
	return string(g)
}
