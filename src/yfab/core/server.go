package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitswalk/yfab/src/yfab/api"
	_ "github.com/bitswalk/yfab/src/yfab/api/docs"
	"github.com/bitswalk/yfab/src/yfab/auth"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP control API",
	Long: `Serves the yfab REST API for the configured build tree. Builds, flashes
and deploys triggered over HTTP run with the same one-per-kind gating as
the CLI, and their output is streamed at /v1/events. Mutating endpoints
require a token from yfab token. API docs are served at /swagger/index.html.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8765, "Port to listen on")
	serveCmd.Flags().StringP("bind", "b", "127.0.0.1", "Address to bind to")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
}

// Server holds the HTTP server instance and configuration
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	controller  *operation.Controller
	broadcaster *api.Broadcaster
}

// NewServer creates the router over a and starts the event broadcaster
func NewServer(a *app, jwtService *auth.JWTService) *Server {
	// Set Gin mode based on log level
	if viper.GetString("log.level") == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(ginLogger())

	broadcaster := api.NewBroadcaster()
	broadcaster.OnEvent = func(e operation.Event) {
		if e.Type == operation.EventFinished && e.Result != nil && !e.Result.Succeeded {
			log.Warn("Operation failed", "id", e.OperationID, "kind", e.Kind, "error", e.Result.ErrorText)
		}
	}
	go broadcaster.Run(a.controller.Events())

	api.SetVersionInfo(VersionInfo)
	apiInstance := api.New(api.Config{
		Workspace:   a.workspace,
		Controller:  a.controller,
		History:     a.history,
		JWTService:  jwtService,
		Broadcaster: broadcaster,
	})
	apiInstance.RegisterRoutes(router)

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return &Server{
		router:      router,
		controller:  a.controller,
		broadcaster: broadcaster,
	}
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM
func (s *Server) Run() error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	addr := fmt.Sprintf("%s:%d", bind, port)

	// No write timeout: /v1/events holds its response open
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting yfab server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("Received signal, shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the event streams first so Shutdown does not wait on them
	if active := s.controller.Active(); len(active) > 0 {
		log.Warn("Waiting for running operations", "count", len(active))
	}
	s.controller.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}

// corsMiddleware returns a gin middleware for handling CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Subject-Token")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger returns a gin middleware for logging requests
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("HTTP request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// runServer is called by the serve command
func runServer() error {
	log.Info("yfab server starting",
		"version", VersionInfo.Version,
		"build_date", VersionInfo.BuildDate,
		"log_output", log.Output(),
	)

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.database.Shutdown(); err != nil {
			log.Error("Failed to persist database", "error", err)
		}
	}()

	// Operations still marked running were cut short by a previous exit
	if n, err := a.history.MarkInterrupted(); err != nil {
		log.Warn("Failed to update interrupted operations", "error", err)
	} else if n > 0 {
		log.Info("Marked interrupted operations as failed", "count", n)
	}

	jwtService, err := auth.NewJWTService(auth.DefaultJWTConfig(), a.database)
	if err != nil {
		return err
	}

	return NewServer(a, jwtService).Run()
}
