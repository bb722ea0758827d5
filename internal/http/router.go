package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gestaozabele/academico/internal/auth"
	"github.com/gestaozabele/academico/internal/config"
	httpmiddleware "github.com/gestaozabele/academico/internal/http/middleware"
	"github.com/gestaozabele/academico/internal/identity"
	"github.com/gestaozabele/academico/internal/reference"
	"github.com/gestaozabele/academico/internal/service"
)

// AuthAPI é o ciclo de vida de credenciais exposto pelas rotas /auth.
type AuthAPI interface {
	Login(ctx context.Context, publicID, password string) (*service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ChangePassword(ctx context.Context, identityID uuid.UUID, oldPassword, newPassword string) error
	ForgotPassword(ctx context.Context, publicID string) error
	ResetPassword(ctx context.Context, publicID, newPassword, token string) error
}

// IdentityAPI cobre criação, leitura, alteração e remoção de perfis.
type IdentityAPI interface {
	Provision(ctx context.Context, role identity.Role, in identity.ProfileInput, cred identity.IdentityInput) (*identity.Identity, error)
	Get(ctx context.Context, publicID string) (*identity.Identity, error)
	UpdateProfile(ctx context.Context, role identity.Role, publicID string, patch identity.ProfilePatch) (*identity.Profile, error)
	DeleteProfile(ctx context.Context, role identity.Role, publicID string) error
}

// ReferenceAPI grava entidades de referência no serviço dono e publica eventos.
type ReferenceAPI interface {
	Create(ctx context.Context, kind reference.Kind, in reference.SourceInput) (*reference.Entity, error)
	Update(ctx context.Context, kind reference.Kind, syncID string, in reference.SourceInput) (*reference.Entity, error)
	Delete(ctx context.Context, kind reference.Kind, syncID string) error
}

// Checker verifica uma dependência externa para o /ready.
type Checker func(ctx context.Context) error

// Options reúne as dependências do roteador.
type Options struct {
	Config     *config.Config
	Tokens     *auth.TokenManager
	Auth       AuthAPI
	Identities IdentityAPI
	References ReferenceAPI
	Checks     map[string]Checker
	Metrics    http.Handler
}

type Handler struct {
	cfg           *config.Config
	tokens        *auth.TokenManager
	auth          AuthAPI
	identities    IdentityAPI
	references    ReferenceAPI
	checks        map[string]Checker
	publicLimiter *httpmiddleware.Limiter
	credLimiter   *httpmiddleware.Limiter
	authLimiter   *httpmiddleware.Limiter
	devCookies    bool
}

// NewRouter devolve roteador configurado.
func NewRouter(opts Options) http.Handler {
	cfg := opts.Config
	origins := httpmiddleware.NewOriginPolicy(cfg.AllowOrigins)
	devCookies := !cfg.CookieSecure || origins.HasLocalOrigin()

	h := &Handler{
		cfg:           cfg,
		tokens:        opts.Tokens,
		auth:          opts.Auth,
		identities:    opts.Identities,
		references:    opts.References,
		checks:        opts.Checks,
		publicLimiter: httpmiddleware.NewLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		credLimiter:   httpmiddleware.NewLimiter(cfg.RateLimitCredential.RequestsPerSecond, cfg.RateLimitCredential.Burst),
		authLimiter:   httpmiddleware.NewLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(origins.Handler)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(public chi.Router) {
		public.Use(h.publicLimiter.Middleware(httpmiddleware.ByClientIP))

		public.Route("/auth", func(a chi.Router) {
			a.Post("/refresh-token", h.RefreshToken)
			a.Group(func(cred chi.Router) {
				cred.Use(h.credLimiter.Middleware(httpmiddleware.ByCredential))
				cred.Post("/login", h.Login)
				cred.Post("/forgot-password", h.ForgotPassword)
				cred.Post("/reset-password", h.ResetPassword)
			})
			a.With(httpmiddleware.Auth(h.tokens), h.authLimiter.Middleware(httpmiddleware.BySubject)).
				Post("/change-password", h.ChangePassword)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(h.tokens))
		private.Use(h.authLimiter.Middleware(httpmiddleware.BySubject))

		private.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireRoles(service.ProvisionerRoles...))
			admin.Route("/users", func(u chi.Router) {
				u.Post("/create-student", h.createUser(identity.RoleStudent))
				u.Post("/create-faculty", h.createUser(identity.RoleFaculty))
				u.Post("/create-admin", h.createUser(identity.RoleAdmin))
			})
			admin.Route("/reference/{kind}", func(ref chi.Router) {
				ref.Post("/", h.CreateReference)
				ref.Put("/{syncID}", h.UpdateReference)
				ref.Delete("/{syncID}", h.DeleteReference)
			})
		})

		mountProfiles(private, "/students", identity.RoleStudent, h)
		mountProfiles(private, "/faculties", identity.RoleFaculty, h)
		mountProfiles(private, "/admins", identity.RoleAdmin, h)
	})

	return r
}

func mountProfiles(r chi.Router, prefix string, role identity.Role, h *Handler) {
	r.Route(prefix, func(p chi.Router) {
		p.Get("/{id}", h.getProfile(role))
		p.Patch("/{id}", h.updateProfile(role))
		p.With(httpmiddleware.RequireRoles(string(identity.RoleAdmin))).Delete("/{id}", h.deleteProfile(role))
	})
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida as dependências registradas (Postgres, Redis).
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := make(map[string]any)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependências indisponíveis", failures)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
