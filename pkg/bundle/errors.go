package bundle

import "errors"

var (
	// ErrTenantMismatch is returned when a request's tenant disagrees
	// with the bundle's tenant (or project, when the bundle pins one).
	ErrTenantMismatch = errors.New("bundle: request tenant/project disagrees with bundle")

	// ErrTooManyRequests is returned when a bundle exceeds MaxRequests.
	ErrTooManyRequests = errors.New("bundle: exceeds maximum requests per bundle")
)
