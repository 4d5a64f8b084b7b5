// Package session owns the credential lifecycle: performing provider
// operations under a credential pair and transparently renewing the access
// token once when the provider reports it expired.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/pkg/cryptox"
	"github.com/stackguard/authgate/pkg/slogx"
)

// ErrNoCredentials is returned when an operation requires an access token and
// the pair has none.
var ErrNoCredentials = errors.New("session: no access token")

// ErrExpired is returned when the access token expired and no renewal path
// remained: either the pair carried no renewal token, or the renewal exchange
// itself failed. Callers should treat the session as terminated.
var ErrExpired = errors.New("session: credentials expired")

// Renewer exchanges a renewal token for a fresh provider session. Satisfied
// by provider.API.
type Renewer interface {
	RefreshSession(ctx context.Context, refreshToken string) (*provider.Session, error)
}

// Manager wraps provider operations with the renew-and-retry policy.
type Manager struct {
	renewer Renewer
}

func NewManager(r Renewer) *Manager {
	return &Manager{renewer: r}
}

// Op is a provider call made with a concrete access token.
type Op[T any] func(ctx context.Context, accessToken string) (T, error)

// Perform runs op with the pair's access token. If the provider rejects the
// token as expired and the pair carries a renewal token, the manager renews
// exactly once and retries op exactly once with the new token; the retry's
// outcome is final. The returned pair is the one the caller must persist:
// unchanged on the no-renewal paths, the renewed pair after a successful
// exchange. Renewal keeps the prior renewal token when the provider does not
// rotate it.
func Perform[T any](ctx context.Context, m *Manager, pair domain.CredentialPair, op Op[T]) (T, domain.CredentialPair, error) {
	var zero T

	if !pair.HasAccess() {
		return zero, pair, ErrNoCredentials
	}

	res, err := op(ctx, pair.AccessToken)
	if err == nil {
		return res, pair, nil
	}
	if !provider.IsExpired(err) {
		return zero, pair, err
	}

	if !pair.HasRefresh() {
		return zero, pair, fmt.Errorf("%w: no renewal token: %w", ErrExpired, err)
	}

	log := slogx.FromContext(ctx)
	log.Debug("access token expired, renewing session",
		slog.String("token_fp", cryptox.FingerprintToken(pair.AccessToken)))

	renewed, rerr := m.renewer.RefreshSession(ctx, pair.RefreshToken)
	if rerr != nil {
		log.Warn("session renewal failed", slog.Any("error", rerr))
		return zero, pair, fmt.Errorf("%w: renewal rejected: %w", ErrExpired, err)
	}

	next := pair.Merge(domain.CredentialPair{
		AccessToken:  renewed.AccessToken,
		RefreshToken: renewed.RefreshToken,
	})

	res, err = op(ctx, next.AccessToken)
	if err != nil {
		// Retried exactly once; the renewed pair is still the freshest
		// credential state and must reach the caller's cookies.
		return zero, next, err
	}
	return res, next, nil
}

// Renew exchanges the pair's renewal token directly, without running an
// operation first. Used by flows that want a fresh session up front.
func (m *Manager) Renew(ctx context.Context, pair domain.CredentialPair) (domain.CredentialPair, *provider.Session, error) {
	if !pair.HasRefresh() {
		return pair, nil, fmt.Errorf("%w: no renewal token", ErrExpired)
	}
	sess, err := m.renewer.RefreshSession(ctx, pair.RefreshToken)
	if err != nil {
		return pair, nil, fmt.Errorf("%w: renewal rejected: %w", ErrExpired, err)
	}
	next := pair.Merge(domain.CredentialPair{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	})
	return next, sess, nil
}
