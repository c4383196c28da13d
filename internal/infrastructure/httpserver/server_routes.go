package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	auth := api.Group("/auth")
	auth.POST("/login", s.login)

	protected := api.Group("")
	protected.Use(s.middleware.JWT.RequireJWT())
	protected.Use(s.middleware.RateLimit.Handler())

	protected.POST("/auth/logout", s.logout)

	protected.GET("/datasets/:name", s.listDataset)

	desvios := protected.Group("/desvios")
	desvios.GET("/:id/motivos", s.getMotivos)
	desvios.POST("/:id/tratativa", s.submitTratativa)
	desvios.POST("/review", s.reviewDesvios, s.middleware.Role.RequireReviewer())

	sessions := protected.Group("/sessions")
	sessions.POST("", s.createSession)
	owned := sessions.Group("/:id", s.middleware.Session.PreloadSession())
	owned.DELETE("", s.closeSession)
	owned.GET("/refresh", s.getRefreshStatus)
	owned.PUT("/refresh", s.setAutoRefresh)
	owned.POST("/refresh", s.forceRefresh)
	owned.POST("/fields", s.recordFieldEvent)
	owned.GET("/events", s.streamEvents)

	cache := protected.Group("/cache", s.middleware.Role.RequireAdmin())
	cache.GET("/stats", s.getCacheStats)
	cache.DELETE("", s.clearCache)
	cache.DELETE("/:dataset", s.invalidateDataset)

	audit := protected.Group("/audit", s.middleware.Role.RequireAdmin())
	audit.GET("/logs", s.getAuditLogs)
	audit.GET("/desvios/:id", s.getItemHistory)
}
