// Package onboarding derives whether a user finished registration.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

// Status is the derived registration state. It is never stored.
type Status string

const (
	StatusIncomplete Status = "INCOMPLETE"
	StatusComplete   Status = "COMPLETE"
)

// Complete reports whether s is StatusComplete.
func (s Status) Complete() bool {
	return s == StatusComplete
}

// sentinels are placeholder values the registration flow writes before the
// user supplies a real one.
var sentinels = map[string]struct{}{
	"xojayin": {},
	"none":    {},
	"null":    {},
	"unknown": {},
}

// Gate evaluates registration status from the store.
type Gate struct {
	users store.UserReader
}

// NewGate creates a Gate reading from users.
func NewGate(users store.UserReader) *Gate {
	return &Gate{users: users}
}

// Status recomputes the registration state of userID. A user without a
// profile yields domain.ErrNotFound.
func (g *Gate) Status(ctx context.Context, userID int64) (Status, error) {
	u, err := g.users.User(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StatusIncomplete, err
		}
		return StatusIncomplete, fmt.Errorf("Gate.Status: loading user: %w", storeErr(err))
	}

	if !profileFilled(u) {
		return StatusIncomplete, nil
	}
	if filled(u.Phone) {
		return StatusComplete, nil
	}

	marker, err := g.users.HasInitialBalanceMarker(ctx, userID)
	if err != nil {
		return StatusIncomplete, fmt.Errorf("Gate.Status: checking initial balance: %w", storeErr(err))
	}
	return Evaluate(u, marker), nil
}

// Evaluate is the registration predicate. Name, source and account type must
// hold real values, and the user must have either a phone number or an
// initial-balance transaction.
func Evaluate(u *domain.User, hasInitialBalance bool) Status {
	if u == nil || !profileFilled(u) {
		return StatusIncomplete
	}
	if filled(u.Phone) || hasInitialBalance {
		return StatusComplete
	}
	return StatusIncomplete
}

func profileFilled(u *domain.User) bool {
	return filled(u.Name) && filled(u.Source) && filled(u.AccountType)
}

func filled(v *string) bool {
	if v == nil {
		return false
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return false
	}
	_, placeholder := sentinels[strings.ToLower(s)]
	return !placeholder
}

func storeErr(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
