package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackguard/authgate/internal/gateway/domain"
	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/internal/gateway/provider/providertest"
	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/internal/gateway/session"
	"github.com/stackguard/authgate/internal/gateway/store"
	"github.com/stackguard/authgate/internal/gateway/store/drivers/sqlite"
)

type fixture struct {
	fake  *providertest.Server
	store *sqlite.Store
	auth  *service.AuthService
	mfa   *service.MFAService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := providertest.New()
	t.Cleanup(fake.Close)

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "authgate_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	client := provider.NewClient(fake.URL(), "anon-key")
	mgr := session.NewManager(client)

	return &fixture{
		fake:  fake,
		store: st,
		auth:  &service.AuthService{Provider: client, Sessions: mgr, Store: st},
		mfa:   &service.MFAService{Provider: client, Sessions: mgr, Store: st},
	}
}

func TestAuthService_SignIn(t *testing.T) {
	t.Run("new user routes to enrollment", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.AddUser("alice@example.com", "hunter22")

		res, err := fx.auth.SignIn(context.Background(), "alice@example.com", "hunter22")
		require.NoError(t, err)
		require.False(t, res.MFARequired)
		require.True(t, res.Pair.HasAccess())
		require.True(t, res.Pair.HasRefresh())
		require.Equal(t, "alice@example.com", res.User.Email)
	})

	t.Run("enrolled user routes to verification", func(t *testing.T) {
		fx := newFixture(t)
		userID := fx.fake.AddUser("bob@example.com", "hunter22")
		fx.fake.EnrollVerifiedFactor(userID)

		res, err := fx.auth.SignIn(context.Background(), "bob@example.com", "hunter22")
		require.NoError(t, err)
		require.True(t, res.MFARequired)
	})

	t.Run("wrong password is uniform", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.AddUser("carol@example.com", "hunter22")

		_, err := fx.auth.SignIn(context.Background(), "carol@example.com", "wrong")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("unknown email is uniform", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.auth.SignIn(context.Background(), "ghost@example.com", "hunter22")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("local record wins over provider lookup", func(t *testing.T) {
		fx := newFixture(t)
		userID := fx.fake.AddUser("dave@example.com", "hunter22")
		require.NoError(t, fx.store.Enrollments().Upsert(context.Background(), domain.EnrollmentStatus{
			UserID: userID, Enrolled: true, EnrolledAt: time.Now().UTC(),
		}))

		res, err := fx.auth.SignIn(context.Background(), "dave@example.com", "hunter22")
		require.NoError(t, err)
		require.True(t, res.MFARequired)
		require.Zero(t, fx.fake.Calls("list_factors"), "no provider round trip on a cache hit")
	})

	t.Run("cache miss syncs record from provider", func(t *testing.T) {
		fx := newFixture(t)
		userID := fx.fake.AddUser("erin@example.com", "hunter22")
		fx.fake.EnrollVerifiedFactor(userID)

		_, err := fx.auth.SignIn(context.Background(), "erin@example.com", "hunter22")
		require.NoError(t, err)

		st, err := fx.store.Enrollments().GetByUserID(context.Background(), userID)
		require.NoError(t, err)
		require.True(t, st.Enrolled)
	})
}

func TestAuthService_SignUp(t *testing.T) {
	t.Run("session issued immediately", func(t *testing.T) {
		fx := newFixture(t)

		res, err := fx.auth.SignUp(context.Background(), "frank@example.com", "hunter22")
		require.NoError(t, err)
		require.False(t, res.ConfirmationRequired)
		require.True(t, res.Pair.HasAccess())
	})

	t.Run("confirmation pending", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.RequireConfirmation = true

		res, err := fx.auth.SignUp(context.Background(), "gail@example.com", "hunter22")
		require.NoError(t, err)
		require.True(t, res.ConfirmationRequired)
		require.False(t, res.Pair.HasAccess())
		require.Equal(t, "gail@example.com", res.User.Email)
	})

	t.Run("duplicate email surfaces provider error", func(t *testing.T) {
		fx := newFixture(t)
		fx.fake.AddUser("henry@example.com", "hunter22")

		_, err := fx.auth.SignUp(context.Background(), "henry@example.com", "hunter22")
		require.Error(t, err)

		var perr *provider.Error
		require.ErrorAs(t, err, &perr)
	})
}

func TestAuthService_SignIn_StoreFailureDoesNotBlock(t *testing.T) {
	fx := newFixture(t)
	fx.fake.AddUser("iris@example.com", "hunter22")

	// Closing the store makes every enrollment lookup fail.
	require.NoError(t, fx.store.Close())

	res, err := fx.auth.SignIn(context.Background(), "iris@example.com", "hunter22")
	require.NoError(t, err)
	require.False(t, res.MFARequired, "failure falls back to the enrollment route")
}

var _ store.Store = (*sqlite.Store)(nil)
