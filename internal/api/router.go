// api/router.go
package api

import (
	"context"
	"net/http"
	"time"

	"fieldsync/internal/logging"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func NewRouter(storage *Storage) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logging.Package("api")))

	r.GET("/healthz", HealthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(storage.gatherer(), promhttp.HandlerOpts{})))

	apiGroup := r.Group("/api")
	{
		// статические "служебные" маршруты — СНАЧАЛА
		apiGroup.GET("/meta", MetaListHandler(storage))
		apiGroup.GET("/meta/:collection", MetaEntityHandler(storage))
		apiGroup.GET("/catalog", CatalogHandler(storage))
		apiGroup.GET("/catalog/lint", CatalogLintHandler(storage))
		apiGroup.POST("/lifecycle/:hook", LifecycleHandler(storage))
		apiGroup.POST("/admin/reload", AdminReloadHandler(storage))

		// чтение коллекций
		apiGroup.GET("/:collection", ListHandler(storage))
		apiGroup.GET("/:collection/:id", GetOneHandler(storage))
	}
	return r
}

// RunServer обслуживает запросы до отмены ctx, затем даёт 5с на завершение
func RunServer(ctx context.Context, addr string, storage *Storage) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(storage),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
