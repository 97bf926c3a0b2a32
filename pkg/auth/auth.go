package auth

import (
	"context"
)

// Identity headers set by the upstream gateway after token verification.
// The service trusts them; token issuance and checking live outside this repo.
const (
	XUserIDHeader   = "X-User-Id"
	XUserNameHeader = "X-User-Name"
	XUserRoleHeader = "X-User-Role"

	RoleLibrarian = "LIBRARIAN"
	RoleUser      = "USER"
)

type ctxKey int

const identityKey ctxKey = 1

type Identity struct {
	UserID int
	Name   string
	Role   string
}

func SetAuthContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func IsLibrarian(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	return ok && id.Role == RoleLibrarian
}
