package api

import "github.com/gin-gonic/gin"

// RegisterRoutes configures all API routes on the given router
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/", a.handleRoot)

	v1 := router.Group("/v1")
	{
		v1.GET("/", a.handleVersion)
		v1.GET("/health", a.handleHealth)
		v1.GET("/version", a.handleVersion)

		v1.GET("/session", a.handleGetSession)
		v1.GET("/drives", a.handleListDrives)
		v1.GET("/events", a.handleEvents)

		operations := v1.Group("/operations")
		{
			operations.GET("", a.handleListOperations)
			operations.GET("/active", a.handleListActive)
			operations.GET("/:id", a.handleGetOperation)
		}

		// Mutating routes (requires a bearer token)
		write := v1.Group("")
		write.Use(a.writeAccessRequired())
		{
			write.POST("/build", a.handleBuild)
			write.POST("/clean", a.handleClean)
			write.POST("/flash", a.handleFlash)
			write.POST("/deploy", a.handleDeploy)
		}
	}
}
