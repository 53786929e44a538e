package types

import "context"

// Permission is the action a caller wants to perform on a case.
type Permission string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
)

// AccessOracle answers whether a caller may act on a case. Deployments
// plug their authorization service in here; a nil oracle allows all
// callers that present a matching case identity.
type AccessOracle interface {
	CanAccess(ctx context.Context, caseName, userID string, perm Permission) bool
}
