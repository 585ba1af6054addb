package approuters

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"LegalWise/internal/configuration"
)

// StartServer runs the app server (durable read/write surface) and the
// socket server (push channel), and blocks until shutdown.
func StartServer(container *configuration.Container) {
	h := container.Hub
	logger := container.Logger

	// Push-channel handshake: the identity token rides as a query parameter
	// because the browser websocket API cannot set headers. The token is
	// verified here, before the upgrade, so no frame is ever routed for an
	// unauthenticated connection.
	socketMux := http.NewServeMux()
	socketMux.HandleFunc("/"+container.Config.Server.SocketRoute, func(w http.ResponseWriter, r *http.Request) {
		ident, err := container.Verifier.Verify(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		h.ServeWS(w, r, ident)
	})

	socketServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", container.Config.Server.SocketPort),
		Handler:      socketMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	appServer := createAppServer(container)

	serverErrors := make(chan error, 2)

	go func() {
		logger.Info("socket server starting", zap.Int("port", container.Config.Server.SocketPort))
		if err := socketServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("socket server error: %w", err)
		}
	}()

	go func() {
		logger.Info("application server starting", zap.Int("port", container.Config.Server.AppPort))
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("app server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("stopping hub and closing all push connections")
	h.Stop()

	if err := socketServer.Shutdown(ctx); err != nil {
		logger.Error("socket server shutdown error", zap.Error(err))
	}

	if err := appServer.Shutdown(ctx); err != nil {
		logger.Error("app server shutdown error", zap.Error(err))
	}

	logger.Info("graceful shutdown complete")
}

func createAppServer(container *configuration.Container) *http.Server {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:4200", "https://www.legalwise.app"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "LegalWise consultation messaging service",
		})
	})

	ChatRouters(router, container)
	MonitorRouters(router, container)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", container.Config.Server.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
