package app

import (
	"context"
	"net/http"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/beep-industries/admin/internal/auth/handler"
	"github.com/beep-industries/admin/internal/auth/oidcclient"
	"github.com/beep-industries/admin/internal/auth/provider/keycloak"
	"github.com/beep-industries/admin/internal/auth/registry"
	"github.com/beep-industries/admin/internal/config"
	"github.com/beep-industries/admin/internal/dashboard"
	"github.com/beep-industries/admin/internal/directory"
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/metrics"
	"github.com/beep-industries/admin/internal/middleware"
	"github.com/beep-industries/admin/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	keycloakProvider, err := keycloak.New(ctx, keycloak.Config{
		Authority:     cfg.KeycloakAuthority,
		ClientID:      cfg.KeycloakClientID,
		ClientSecret:  cfg.KeycloakClientSecret,
		RedirectURL:   cfg.RedirectURL(),
		PostLogoutURL: cfg.RedirectURL(),
	})
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	mapper := auth.NewMapper(cfg.KeycloakRoleClientID)
	gateMetrics := metrics.New(nil)

	registryOpts := []registry.Option{
		registry.WithClientOptions(oidcclient.WithSessionTTL(cfg.SessionTTL)),
		registry.WithGateOptions(
			gate.WithObserver(gateMetrics),
			gate.WithLogger(logger.L()),
		),
		registry.OnUserLoaded(gateMetrics.UserLoaded),
	}

	var dir directory.Directory
	if infra.DB != nil {
		dir = directory.NewPostgresDirectory(infra.DB)
		registryOpts = append(registryOpts,
			registry.OnUserLoaded(directory.NewRecorder(dir, mapper, gate.AdminRole)))
	}

	sessions := registry.New(keycloakProvider, infra.SessionStore(), mapper, registryOpts...)
	gateMetrics.TrackActiveSessions(sessions.Len)

	templates := dashboard.Templates()
	authMiddleware := middleware.NewAuthMiddleware(
		sessions,
		session.CookieOptions{
			Secure:   cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		},
		cfg.SessionTTL,
		dashboard.NewScreens(templates),
	)

	authHandler := handler.NewHandler(authMiddleware)
	dashboardHandler := dashboard.NewHandler(authMiddleware, dir)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(templates)

	// ----------------------------
	// Public Routes
	// ----------------------------

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler.RegisterRoutes(router)

	// ----------------------------
	// Gated pages and API
	// ----------------------------

	dashboardHandler.RegisterRoutes(router)

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		sessions.Close()
		return infra.Close()
	}, nil
}
