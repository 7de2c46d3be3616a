package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/domain"
)

const (
	// HeaderInitData carries the signed payload on API calls.
	HeaderInitData = "X-Telegram-Init-Data"
	// QueryInitData is the query-parameter fallback used by page loads.
	QueryInitData = "_auth"
)

// Resolver turns the init data attached to a request into an identity.
type Resolver struct {
	validator       *Validator
	allowUnverified bool
	log             zerolog.Logger
}

// NewResolver builds a resolver. With an empty botToken and allowUnverified
// set, payloads are trusted without verification; a configured token always
// enforces the signature.
func NewResolver(botToken string, allowUnverified bool, log zerolog.Logger) *Resolver {
	r := &Resolver{log: log}
	if botToken != "" {
		r.validator = NewValidator(botToken)
	} else {
		r.allowUnverified = allowUnverified
	}
	return r
}

// Relaxed reports whether unsigned payloads are accepted.
func (r *Resolver) Relaxed() bool {
	return r.allowUnverified
}

// InitData extracts the raw payload from the header or the query string.
func InitData(req *http.Request) string {
	if v := req.Header.Get(HeaderInitData); v != "" {
		return v
	}
	return req.URL.Query().Get(QueryInitData)
}

// Resolve returns (nil, nil) for a request without init data. A payload that
// fails verification yields an error wrapping domain.ErrUnauthenticated.
func (r *Resolver) Resolve(req *http.Request) (*domain.Identity, error) {
	initData := InitData(req)
	if initData == "" {
		return nil, nil
	}
	return r.ResolveString(initData)
}

// ResolveString verifies a raw payload.
func (r *Resolver) ResolveString(initData string) (*domain.Identity, error) {
	if r.validator != nil {
		return r.validator.Validate(initData)
	}

	if !r.allowUnverified {
		return nil, domain.ErrUnauthenticated
	}

	id, err := ParseUnverified(initData)
	if err != nil {
		return nil, err
	}
	r.log.Warn().Int64("user_id", id.UserID).Msg("Accepted unverified init data")
	return id, nil
}

type identityKey struct{}

// WithIdentity stores the resolved identity in ctx.
func WithIdentity(ctx context.Context, id *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity, if any.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*domain.Identity)
	return id, ok && id != nil
}
