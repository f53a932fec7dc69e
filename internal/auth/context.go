package auth

import (
	"context"

	"github.com/starford/ansuz/internal/models"
)

type accountCtxKey struct{}

// WithAccount stores acct in ctx.
func WithAccount(ctx context.Context, acct models.Account) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, acct)
}

// AccountFromContext returns the account stored by WithAccount.
func AccountFromContext(ctx context.Context) (models.Account, bool) {
	acct, ok := ctx.Value(accountCtxKey{}).(models.Account)
	return acct, ok
}
