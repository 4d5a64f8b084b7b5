package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/internal/gateway/session"
	"github.com/stackguard/authgate/internal/gateway/store"
	"github.com/stackguard/authgate/pkg/slogx"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// MFAService drives TOTP enrollment and verification against the provider.
// Every provider call runs under the session manager so an expired access
// token is renewed and retried once; callers persist the returned pair.
type MFAService struct {
	Provider provider.API
	Sessions *session.Manager
	Store    store.Store
}

// EnrollResult mirrors the provider's enrollment payload: the factor id and
// type at the top level, provisioning material nested under totp.
type EnrollResult struct {
	ID   string                    `json:"id"`
	Type string                    `json:"type"`
	TOTP provider.TOTPProvisioning `json:"totp"`
}

type ChallengeResult struct {
	ID       string `json:"id"`
	FactorID string `json:"factorId"`
}

type CheckResult struct {
	HasMFA      bool   `json:"hasMFA"`
	FactorID    string `json:"factorId,omitempty"`
	ChallengeID string `json:"challengeId,omitempty"`
}

type VerifyResult struct {
	User domain.User
}

// Enroll starts TOTP enrollment. A user with a verified factor gets
// ErrAlreadyEnrolled. The provisioning payload passes through verbatim and is
// never persisted or logged here.
func (s *MFAService) Enroll(ctx context.Context, pair domain.CredentialPair, friendlyName string) (EnrollResult, domain.CredentialPair, error) {
	if friendlyName == "" {
		friendlyName = "Authenticator"
	}

	factors, pair, err := s.listFactors(ctx, pair)
	if err != nil {
		return EnrollResult{}, pair, err
	}
	if hasVerifiedTOTP(factors) {
		return EnrollResult{}, pair, ErrAlreadyEnrolled
	}

	enrolled, pair, err := session.Perform(ctx, s.Sessions, pair,
		func(ctx context.Context, token string) (*provider.EnrollResult, error) {
			return s.Provider.EnrollFactor(ctx, token, "totp", friendlyName)
		})
	if err != nil {
		return EnrollResult{}, pair, fmt.Errorf("enroll factor: %w", err)
	}

	kind := enrolled.Type
	if kind == "" {
		kind = "totp"
	}
	return EnrollResult{ID: enrolled.ID, Type: kind, TOTP: enrolled.TOTP}, pair, nil
}

// Challenge mints a fresh challenge for the given factor, resolving the
// factor from the provider's list when factorID is empty.
func (s *MFAService) Challenge(ctx context.Context, pair domain.CredentialPair, factorID string) (ChallengeResult, domain.CredentialPair, error) {
	if factorID == "" {
		var err error
		factorID, pair, err = s.resolveFactor(ctx, pair)
		if err != nil {
			return ChallengeResult{}, pair, err
		}
	}

	ch, pair, err := session.Perform(ctx, s.Sessions, pair,
		func(ctx context.Context, token string) (*domain.Challenge, error) {
			return s.Provider.CreateChallenge(ctx, token, factorID)
		})
	if err != nil {
		return ChallengeResult{}, pair, fmt.Errorf("create challenge: %w", err)
	}

	return ChallengeResult{ID: ch.ID, FactorID: ch.FactorID}, pair, nil
}

// Verify checks a six digit code against the factor's active challenge. On
// success the provider issues an MFA-upgraded session, which replaces the
// caller's credentials, and the local enrollment record is updated
// best-effort. Missing factor or challenge ids are resolved first, so a
// client may call verify with nothing but the code.
func (s *MFAService) Verify(ctx context.Context, pair domain.CredentialPair, factorID, challengeID, code string) (VerifyResult, domain.CredentialPair, error) {
	if !codePattern.MatchString(code) {
		return VerifyResult{}, pair, ErrInvalidCode
	}

	if factorID == "" {
		var err error
		factorID, pair, err = s.resolveFactor(ctx, pair)
		if err != nil {
			return VerifyResult{}, pair, err
		}
	}

	if challengeID == "" {
		ch, next, err := s.Challenge(ctx, pair, factorID)
		if err != nil {
			return VerifyResult{}, next, err
		}
		pair, challengeID = next, ch.ID
	}

	sess, pair, err := session.Perform(ctx, s.Sessions, pair,
		func(ctx context.Context, token string) (*provider.Session, error) {
			return s.Provider.VerifyChallenge(ctx, token, provider.VerifyParams{
				FactorID:    factorID,
				ChallengeID: challengeID,
				Code:        code,
			})
		})
	if err != nil {
		return VerifyResult{}, pair, fmt.Errorf("verify challenge: %w", err)
	}

	pair = pair.Merge(domain.CredentialPair{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	})

	user := sess.User
	if user.ID != "" {
		if err := s.Store.Enrollments().Upsert(ctx, domain.EnrollmentStatus{
			UserID:     user.ID,
			Enrolled:   true,
			EnrolledAt: time.Now().UTC(),
		}); err != nil {
			slogx.FromContext(ctx).Warn("enrollment record update failed",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	return VerifyResult{User: user}, pair, nil
}

// Check reports whether the user has a verified factor and, if so, opens a
// fresh challenge so the client can go straight to code entry.
func (s *MFAService) Check(ctx context.Context, pair domain.CredentialPair) (CheckResult, domain.CredentialPair, error) {
	factors, pair, err := s.listFactors(ctx, pair)
	if err != nil {
		return CheckResult{}, pair, err
	}

	factorID := pickFactor(factors)
	if factorID == "" || !hasVerifiedTOTP(factors) {
		return CheckResult{HasMFA: false}, pair, nil
	}

	ch, pair, err := s.Challenge(ctx, pair, factorID)
	if err != nil {
		return CheckResult{}, pair, err
	}
	return CheckResult{HasMFA: true, FactorID: ch.FactorID, ChallengeID: ch.ID}, pair, nil
}

func (s *MFAService) listFactors(ctx context.Context, pair domain.CredentialPair) ([]domain.Factor, domain.CredentialPair, error) {
	factors, pair, err := session.Perform(ctx, s.Sessions, pair,
		func(ctx context.Context, token string) ([]domain.Factor, error) {
			return s.Provider.ListFactors(ctx, token)
		})
	if err != nil {
		return nil, pair, fmt.Errorf("list factors: %w", err)
	}
	return factors, pair, nil
}

func (s *MFAService) resolveFactor(ctx context.Context, pair domain.CredentialPair) (string, domain.CredentialPair, error) {
	factors, pair, err := s.listFactors(ctx, pair)
	if err != nil {
		return "", pair, err
	}
	id := pickFactor(factors)
	if id == "" {
		return "", pair, ErrNoFactor
	}
	return id, pair, nil
}

// pickFactor prefers a verified TOTP factor, falling back to an unverified
// one mid-enrollment.
func pickFactor(factors []domain.Factor) string {
	var unverified string
	for _, f := range factors {
		if f.Type != "totp" {
			continue
		}
		if f.Status == "verified" {
			return f.ID
		}
		if unverified == "" {
			unverified = f.ID
		}
	}
	return unverified
}
