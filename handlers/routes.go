package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API on router. Routes after authRequired need a
// signed-in user.
func (h *Handlers) RegisterRoutes(router gin.IRouter, authRequired gin.HandlerFunc) {
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api/v3")
	{
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		api.GET("/images/:bucket/*key", h.GetImage)
	}

	protected := api.Group("")
	protected.Use(authRequired)
	{
		protected.POST("/auth/logout", h.Logout)
		protected.GET("/users/me", h.Me)

		protected.GET("/reports", h.GetReports)
		protected.POST("/reports/refresh", h.RefreshReports)
		protected.GET("/reports/geojson", h.ReportsGeoJSON)
		protected.GET("/reports/listen", h.ListenReports)

		protected.GET("/form", h.GetForm)
		protected.POST("/form/open", h.OpenForm)
		protected.POST("/form/close", h.CloseForm)
		protected.PUT("/form/draft", h.UpdateDraft)
		protected.POST("/form/submit", h.SubmitForm)

		protected.GET("/connection-test", h.ConnectionTest)
	}
}
