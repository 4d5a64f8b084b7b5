package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/internal/gateway/store"
	"github.com/stackguard/authgate/pkg/httpx"
	"github.com/stackguard/authgate/pkg/ratex"
	"github.com/stackguard/authgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	governor     *ratex.Governor

	store       store.Store
	AuthService *service.AuthService
	MFAService  *service.MFAService
}

func NewRouter(
	buildVersion string,
	st store.Store,
	governor *ratex.Governor,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		governor:     governor,
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerDashboard()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	r.Mux.Handle("POST /api/auth/signin",
		httpx.Chain(&SignInHandler{Auth: r.AuthService},
			httpx.Govern(r.governor, "signin", ratex.SignInBudget),
		),
	)

	r.Mux.Handle("POST /api/auth/signup",
		httpx.Chain(&SignUpHandler{Auth: r.AuthService},
			httpx.Govern(r.governor, "signup", ratex.SignUpBudget),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFA: r.MFAService}
	gate := RequireCredentials("")

	r.Mux.Handle("POST /api/mfa/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll), gate))

	r.Mux.Handle("POST /api/mfa/challenge",
		httpx.Chain(http.HandlerFunc(h.HandleChallenge), gate))

	// Verify carries its own budget: it is the brute-force surface.
	r.Mux.Handle("POST /api/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			gate,
			httpx.Govern(r.governor, "verify", ratex.VerifyBudget),
		),
	)

	r.Mux.Handle("POST /api/mfa/check",
		httpx.Chain(http.HandlerFunc(h.HandleCheck), gate))
}

func (r *Router) registerDashboard() {
	dash := &DashboardHandler{
		Provider: r.AuthService.Provider,
		Sessions: r.AuthService.Sessions,
	}
	r.Mux.Handle("GET /dashboard",
		httpx.Chain(dash, RequireCredentials("/signin")))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
