package domain

import (
	"regexp"
	"strings"
)

var (
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)
	regionRegex     = regexp.MustCompile(`^[a-z]{2}(-[a-z0-9]+)*$`)
)

// CreateRequest is the inbound payload that opens a permission request.
type CreateRequest struct {
	ConnectionID string `json:"connectionId"`
	DataNeedID   string `json:"dataNeedId"`
	RegionID     string `json:"regionId"`
}

// ValidateIdentifier checks an opaque identifier and returns a message on failure.
func ValidateIdentifier(name, value string) *AttributeError {
	if strings.TrimSpace(value) == "" {
		return &AttributeError{Name: name, Message: "must not be blank"}
	}
	if !identifierRegex.MatchString(value) {
		return &AttributeError{Name: name, Message: "contains invalid characters"}
	}
	return nil
}

// Validate returns every attribute error found in the request.
func (r CreateRequest) Validate() []AttributeError {
	var errs []AttributeError
	if e := ValidateIdentifier("connectionId", r.ConnectionID); e != nil {
		errs = append(errs, *e)
	}
	if e := ValidateIdentifier("dataNeedId", r.DataNeedID); e != nil {
		errs = append(errs, *e)
	}
	if r.RegionID != "" && !regionRegex.MatchString(r.RegionID) {
		errs = append(errs, AttributeError{Name: "regionId", Message: "must be a lowercase region identifier such as \"at-eda\""})
	}
	return errs
}
