package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/internal/gateway/session"
	"github.com/stackguard/authgate/internal/gateway/store"
	"github.com/stackguard/authgate/pkg/slogx"
)

// AuthService fronts the provider's password flows and decides where a fresh
// sign-in goes next: MFA verification when the user has a verified factor,
// enrollment otherwise.
type AuthService struct {
	Provider provider.API
	Sessions *session.Manager
	Store    store.Store
}

type SignInResult struct {
	Pair        domain.CredentialPair
	User        domain.User
	MFARequired bool
}

type SignUpResult struct {
	Pair                 domain.CredentialPair
	User                 domain.User
	ConfirmationRequired bool
}

// SignIn performs the password grant. Any provider rejection becomes
// ErrInvalidCredentials; the caller never learns which part was wrong.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	sess, err := s.Provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		slogx.FromContext(ctx).Info("sign-in rejected by provider", slog.Any("error", err))
		return SignInResult{}, ErrInvalidCredentials
	}

	pair := domain.CredentialPair{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	}

	enrolled, err := s.isEnrolled(ctx, pair, sess.User.ID)
	if err != nil {
		// Routing must not block a successful sign-in. Send the user to
		// enrollment; verification still guards the protected surface.
		slogx.FromContext(ctx).Warn("enrollment lookup failed, routing to enrollment",
			slog.String("user_id", sess.User.ID), slog.Any("error", err))
		enrolled = false
	}

	return SignInResult{Pair: pair, User: sess.User, MFARequired: enrolled}, nil
}

// SignUp registers the account. When the provider withholds the session
// pending email confirmation, ConfirmationRequired is set and Pair is empty.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (SignUpResult, error) {
	res, err := s.Provider.SignUp(ctx, email, password)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("sign up: %w", err)
	}

	out := SignUpResult{User: res.User}
	if res.Session == nil {
		out.ConfirmationRequired = true
		return out, nil
	}
	out.Pair = domain.CredentialPair{
		AccessToken:  res.Session.AccessToken,
		RefreshToken: res.Session.RefreshToken,
	}
	return out, nil
}

// isEnrolled consults the local enrollment record first and falls back to the
// provider's factor list on a miss, repopulating the record best-effort.
func (s *AuthService) isEnrolled(ctx context.Context, pair domain.CredentialPair, userID string) (bool, error) {
	st, err := s.Store.Enrollments().GetByUserID(ctx, userID)
	if err == nil {
		return st.Enrolled, nil
	}

	factors, _, err := session.Perform(ctx, s.Sessions, pair,
		func(ctx context.Context, token string) ([]domain.Factor, error) {
			return s.Provider.ListFactors(ctx, token)
		})
	if err != nil {
		return false, err
	}

	enrolled := hasVerifiedTOTP(factors)
	record := domain.EnrollmentStatus{UserID: userID, Enrolled: enrolled}
	if enrolled {
		record.EnrolledAt = time.Now().UTC()
	}
	if err := s.Store.Enrollments().Upsert(ctx, record); err != nil {
		slogx.FromContext(ctx).Warn("enrollment record sync failed",
			slog.String("user_id", userID), slog.Any("error", err))
	}
	return enrolled, nil
}

func hasVerifiedTOTP(factors []domain.Factor) bool {
	for _, f := range factors {
		if f.Type == "totp" && f.Status == "verified" {
			return true
		}
	}
	return false
}
