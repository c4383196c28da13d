package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/configs"
	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/infrastructure/db"
	"github.com/torrecontrole/sentinela/internal/infrastructure/email"
	"github.com/torrecontrole/sentinela/internal/infrastructure/health"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver"
	"github.com/torrecontrole/sentinela/internal/infrastructure/memcache"
	"github.com/torrecontrole/sentinela/internal/infrastructure/metrics"
	"github.com/torrecontrole/sentinela/internal/infrastructure/redis"
	"github.com/torrecontrole/sentinela/internal/infrastructure/repositories"
	"github.com/torrecontrole/sentinela/internal/infrastructure/sharepoint"
	"github.com/torrecontrole/sentinela/internal/infrastructure/teams"
)

// app holds everything serve starts and later has to stop.
type app struct {
	server        *httpserver.Server
	sessions      *services.SessionService
	notifications *services.NotificationService
	sweeper       *services.StatusSweeper
	local         *memcache.Cache[desvio.Rows]
	closers       []func() error
	logger        *logrus.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("failed to release resource")
		}
	}
}

func sharePointConfig(cfg *configs.Config) sharepoint.Config {
	return sharepoint.Config{
		SiteURL:        cfg.SharePoint.SiteURL,
		TenantID:       cfg.SharePoint.TenantID,
		ClientID:       cfg.SharePoint.ClientID,
		ClientSecret:   cfg.SharePoint.ClientSecret,
		Timeout:        cfg.SharePoint.Timeout,
		RetryMax:       cfg.SharePoint.RetryMax,
		RetryWaitMin:   cfg.SharePoint.RetryWaitMin,
		RetryWaitMax:   cfg.SharePoint.RetryWaitMax,
		RequestsPerSec: cfg.SharePoint.RequestsPerSec,
		PageLimit:      cfg.SharePoint.PageLimit,
	}
}

func buildApp(cfg *configs.Config, logger *logrus.Logger) (*app, error) {
	a := &app{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := sharepoint.NewClient(sharePointConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("sharepoint client: %w", err)
	}

	local, err := memcache.New[desvio.Rows](memcache.Config{
		DefaultTTL: cfg.Cache.DefaultTTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}, memcache.WithObserver(m.CacheObserver()))
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.local = local

	checkers := []ports.HealthChecker{health.NewSharePointHealthChecker(store)}

	var (
		shared    ports.Cache
		tokenRepo ports.TokenRepository
		limiter   ports.RateLimiterService
	)
	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		shared = redis.NewRedisCache(client, cfg.Redis.KeyPrefix)
		tokenRepo = repositories.NewTokenRedisRepository(client, logger)
		limiter = services.NewRateLimiterService(repositories.NewRateLimitRedisRepository(client), &services.RateLimiterConfig{
			DefaultRequestsPerMinute: cfg.RateLimit.DefaultRequestsPerMinute,
			BurstMultiplier:          cfg.RateLimit.BurstMultiplier,
			Window:                   cfg.RateLimit.Window,
			KeyPrefix:                cfg.RateLimit.KeyPrefix,
		}, logger)
		checkers = append(checkers, health.NewRedisHealthChecker(client))
		logger.Info("Redis enabled: shared cache, token blacklist and rate limiting")
	} else {
		mem, err := repositories.NewTokenMemoryRepository(cfg.Cache.MaxEntries)
		if err != nil {
			return nil, err
		}
		tokenRepo = mem
		logger.Info("Redis disabled: single instance cache, rate limiting off")
	}

	data := repositories.NewCachingDataSource(store, local, shared, cfg.Cache.TTLFor, logger,
		repositories.WithLoadTimeout(cfg.Refresh.FetchTimeout))

	var auditSvc ports.AuditService
	database, err := db.NewDatabaseWithConfig(&cfg.Database)
	if err != nil {
		logger.WithError(err).Warn("audit database unavailable, audit log disabled")
	} else {
		a.closers = append(a.closers, database.Close)
		auditSvc = services.NewAuditService(repositories.NewAuditRepository(database, logger), logger)
		checkers = append(checkers, health.NewDBHealthChecker(database))
	}

	notifiers, err := buildNotifiers(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.notifications = services.NewNotificationService(notifiers, cfg.Teams.Timeout, logger)

	authSvc := services.NewAuthService(data, cfg.SharePoint.UsuariosList, tokenRepo, &cfg.JWT, logger)
	desvioCfg := services.DesvioConfig{
		Dataset:  cfg.SharePoint.DesviosList,
		Location: cfg.Location(),
	}
	desvioSvc := services.NewDesvioService(data, desvioCfg, auditSvc, a.notifications, logger)
	a.sweeper = services.NewStatusSweeper(data, desvioCfg, cfg.AutoStatus.Limit, auditSvc, a.notifications, logger)

	a.sessions = services.NewSessionService(services.RefreshConfig{
		Interval:              cfg.Refresh.Interval,
		TypingTimeout:         cfg.Refresh.TypingTimeout,
		FetchTimeout:          cfg.Refresh.FetchTimeout,
		FailureAlertThreshold: cfg.Refresh.FailureAlertThreshold,
		Datasets:              []desvio.Query{{Dataset: cfg.SharePoint.DesviosList}},
		Observer:              m,
	}, data, a.notifications, logger)
	m.RegisterSessionGauge(reg, a.sessions.Count)

	a.server = httpserver.NewServer(&httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Environment:    cfg.Server.Environment,
		DesviosDataset: cfg.SharePoint.DesviosList,
	}, logger, httpserver.ServerDeps{
		AuthService:        authSvc,
		AuditService:       auditSvc,
		DesvioService:      desvioSvc,
		SessionService:     a.sessions,
		DataSource:         data,
		RateLimiterService: limiter,
		Metrics:            m,
		HealthCheckers:     checkers,
	})

	ok = true
	return a, nil
}

func buildNotifiers(cfg *configs.Config, logger *logrus.Logger) ([]ports.Notifier, error) {
	var notifiers []ports.Notifier
	if cfg.Teams.WebhookURL != "" {
		notifiers = append(notifiers, teams.NewNotifier(cfg.Teams.WebhookURL, cfg.Teams.Timeout, logger))
	}
	if cfg.Email.SendGridAPIKey != "" && len(cfg.Email.AlertTo) > 0 {
		minSeverity, err := notification.ParseSeverity(cfg.Email.MinSeverity)
		if err != nil {
			return nil, err
		}
		emailSvc, err := email.NewEmailService(&email.EmailConfig{
			SendGridAPIKey: cfg.Email.SendGridAPIKey,
			FromEmail:      cfg.Email.FromEmail,
			FromName:       cfg.Email.FromName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("email service: %w", err)
		}
		notifiers = append(notifiers, email.NewAlertNotifier(emailSvc, cfg.Email.AlertTo, minSeverity))
	}
	if len(notifiers) == 0 {
		logger.Warn("no alert channel configured, refresh failure alerts are only logged")
	}
	return notifiers, nil
}
