package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrOwnershipMismatch is returned when a fetched record belongs to a
// different tenant than the one expected. Surfaced as access denied,
// never silently ignored.
var ErrOwnershipMismatch = errors.New("record belongs to another tenant")

// ErrTenantRequired is returned when the context carries no tenant id.
var ErrTenantRequired = errors.New("tenant id is required")

// ErrTenantInactive is returned for operations against a deactivated tenant.
var ErrTenantInactive = errors.New("tenant is deactivated")
