package store

import "context"

type contextKey string

const (
	accessTokenKey contextKey = "access_token"
	ownerKey       contextKey = "owner"
)

// WithAccessToken attaches the caller's access token. The hosted REST backend
// forwards it so row-level security applies.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the token set by WithAccessToken.
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey).(string)
	return token, ok && token != ""
}

// WithOwner attaches the id of the user on whose behalf the call runs. SQL
// and memory backends scope every statement to it.
func WithOwner(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ownerKey, userID)
}

// Owner returns the id set by WithOwner.
func Owner(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey).(string)
	return id, ok && id != ""
}

// Scoped returns filters with the owner condition appended when ctx carries
// an owner.
func Scoped(ctx context.Context, filters []Filter) []Filter {
	owner, ok := Owner(ctx)
	if !ok {
		return filters
	}
	out := make([]Filter, 0, len(filters)+1)
	out = append(out, filters...)
	return append(out, Eq(OwnerColumn, owner))
}

// Owned returns a copy of row carrying the owner column when ctx has one.
func Owned(ctx context.Context, row Row) Row {
	out := make(Row, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	if owner, ok := Owner(ctx); ok {
		out[OwnerColumn] = owner
	}
	return out
}
