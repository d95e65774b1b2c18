// Package server is the wiring layer: it assembles the database, services,
// handlers, and middleware, and owns the HTTP listener's lifecycle.
//
// The dependency chain is built in one place (the composition root):
//
//	sqlite.DB → services → handlers → routes
//
// main.go only reads configuration and calls New + Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/discussions/internal/auth"
	"github.com/sakif/discussions/internal/handler"
	"github.com/sakif/discussions/internal/mailer"
	"github.com/sakif/discussions/internal/middleware"
	"github.com/sakif/discussions/internal/model"
	sqliteRepo "github.com/sakif/discussions/internal/repository/sqlite"
	"github.com/sakif/discussions/internal/service"
)

// purgeInterval spaces out the expired session/token sweeps.
const purgeInterval = time.Hour

// Config holds everything the server needs, populated from the environment
// in main.go.
type Config struct {
	Port   int
	DBPath string

	// BaseURL is the externally visible origin, used in reset links.
	BaseURL string

	// StateSecret signs OAuth state tokens. At least 16 bytes.
	StateSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// SMTPAddr is host:port of the outgoing mail relay. When empty, reset
	// mails are logged instead of delivered (local development).
	SMTPAddr string
	SMTPFrom string

	// SecureCookies should be true everywhere except plain-HTTP local runs.
	SecureCookies bool
}

// Server owns the router, the database handle, and the background purge
// loop's lifecycle.
type Server struct {
	router      *chi.Mux
	config      Config
	logger      *slog.Logger
	db          *sqliteRepo.DB
	authSvc     *service.AuthService
	authLimiter *middleware.RateLimiter
}

// New opens the database and wires the full dependency chain.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes builds services and handlers and mounts every route.
//
// Route map:
//
//	POST   /auth/register               create account + sign in
//	POST   /auth/login                  password sign-in
//	POST   /auth/logout                 revoke current session
//	POST   /auth/logout-others          revoke all other sessions (auth)
//	POST   /auth/forgot-password        mail a reset link
//	POST   /auth/reset-password         consume token, set password
//	GET    /auth/github/login           start the OAuth flow
//	GET    /auth/github/callback        finish the OAuth flow
//	GET    /api/me                      current user (auth)
//	POST   /api/me/password             change password (auth)
//	GET    /api/discussions             list threads
//	POST   /api/discussions             create thread (auth)
//	GET    /api/discussions/{id}        one thread with score
//	PUT    /api/discussions/{id}        edit thread (auth, author)
//	DELETE /api/discussions/{id}        delete thread (auth, author)
//	GET    /api/discussions/{id}/comments
//	POST   /api/discussions/{id}/comments  reply (auth)
//	DELETE /api/comments/{id}           delete reply (auth, author)
//	PUT    /api/{discussions,comments}/{id}/vote    cast vote (auth)
//	DELETE /api/{discussions,comments}/{id}/vote    withdraw vote (auth)
func (s *Server) setupRoutes() error {
	state, err := auth.NewStateService(s.config.StateSecret)
	if err != nil {
		return fmt.Errorf("creating state service: %w", err)
	}
	provider := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)

	var mail mailer.Mailer
	if s.config.SMTPAddr != "" {
		mail = mailer.NewSMTP(s.config.SMTPAddr, s.config.SMTPFrom)
	} else {
		s.logger.Warn("SMTP not configured, reset mails will only be logged")
		mail = mailer.NewLog(s.logger)
	}

	s.authSvc = service.NewAuthService(
		s.db.Users(), s.db.Accounts(), s.db.Sessions(), s.db.Tokens(),
		auth.NewPasswordHasher(), mail, s.logger,
		s.config.BaseURL,
	)
	forumSvc := service.NewDiscussionService(
		s.db.Discussions(), s.db.Comments(), s.db.Votes(), s.logger)

	authHandler := handler.NewAuthHandler(s.authSvc, provider, state, s.logger, s.config.SecureCookies)
	forumHandler := handler.NewDiscussionHandler(forumSvc, s.logger)

	// Global middleware, order matters: request id first so the logger can
	// pick it up, recoverer last so panics in other middleware are caught.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// Session resolution runs everywhere; most routes just ignore it.
	s.router.Use(auth.WithUser(s.authSvc))

	// Auth endpoints are the credential-stuffing surface; throttle per IP.
	s.authLimiter = middleware.NewRateLimiter(2, 10)

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(s.authLimiter.Limit)

		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Post("/forgot-password", authHandler.HandleForgotPassword)
		r.Post("/reset-password", authHandler.HandleResetPassword)
		r.Get("/github/login", authHandler.HandleOAuthLogin)
		r.Get("/github/callback", authHandler.HandleOAuthCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(""))
			r.Post("/logout-others", authHandler.HandleLogoutOthers)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/discussions", forumHandler.HandleList)
		r.Get("/discussions/{id}", forumHandler.HandleGet)
		r.Get("/discussions/{id}/comments", forumHandler.HandleListComments)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(""))

			r.Get("/me", authHandler.HandleMe)
			r.Post("/me/password", authHandler.HandleChangePassword)

			r.Post("/discussions", forumHandler.HandleCreate)
			r.Put("/discussions/{id}", forumHandler.HandleUpdate)
			r.Delete("/discussions/{id}", forumHandler.HandleDelete)
			r.Post("/discussions/{id}/comments", forumHandler.HandleAddComment)
			r.Delete("/comments/{id}", forumHandler.HandleDeleteComment)

			r.Put("/discussions/{id}/vote", forumHandler.HandleVote(model.VoteTargetDiscussion))
			r.Delete("/discussions/{id}/vote", forumHandler.HandleUnvote(model.VoteTargetDiscussion))
			r.Put("/comments/{id}/vote", forumHandler.HandleVote(model.VoteTargetComment))
			r.Delete("/comments/{id}/vote", forumHandler.HandleUnvote(model.VoteTargetComment))
		})
	})

	return nil
}

// purgeLoop sweeps expired sessions and tokens until ctx is cancelled.
// Expired rows are already invisible to lookups; the sweep only keeps the
// tables from growing forever.
func (s *Server) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.authSvc.PurgeExpired(ctx)
		}
	}
}

// Start runs the listener and blocks until SIGINT/SIGTERM or a listen
// error. Shutdown drains in-flight requests, stops the purge loop, and
// closes the database.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.authLimiter.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	defer stopPurge()
	go s.purgeLoop(purgeCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
