package auth

import (
	"context"
)

// Principal is the resolved identity of a request: exactly one of a user or
// an application.
type Principal struct {
	UserName string
	FullName string
	God      bool
	AppName  string
}

func (p *Principal) IsApp() bool { return p != nil && p.AppName != "" }

// Owner is the audit owner name for this principal.
func (p *Principal) Owner() string {
	if p == nil {
		return ""
	}
	if p.IsApp() {
		return p.AppName
	}
	return p.UserName
}

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}
