package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/engine"
	"github.com/goliatone/go-job/store"
)

// longPollMargin is kept free between a long poll and the write deadline.
const longPollMargin = time.Second

// Engine is the part of *engine.Engine the gateway drives.
type Engine interface {
	Submit(ctx context.Context, cmd job.Command) (engine.Response, error)
	View(ctx context.Context, fn func(store.Reader) error) error
	Health() engine.Health
	OnJobsAvailable(fn func(jobType string))
}

// Server exposes the engine over HTTP.
type Server struct {
	engine          Engine
	logger          engine.Logger
	waiters         *notifier
	longPollTimeout time.Duration
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	http            *http.Server
}

type Option func(*Server)

func WithLogger(logger engine.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLongPollTimeout sets how long an empty activation waits for jobs when
// the request does not ask for a timeout of its own.
func WithLongPollTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.longPollTimeout = d
	}
}

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

func New(eng Engine, opts ...Option) *Server {
	s := &Server{
		engine:          eng,
		logger:          engine.NewFmtLogger(nil),
		waiters:         newNotifier(),
		longPollTimeout: 30 * time.Second,
		addr:            ":8080",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	eng.OnJobsAvailable(s.waiters.Notify)
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(s.logger))

	r.GET("/healthz", s.Healthz)

	v1 := r.Group("/v1")
	{
		v1.GET("/status", s.Status)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", s.CreateJob)
			jobs.POST("/activation", s.ActivateJobs)
			jobs.GET("/:key", s.GetJob)
			jobs.PATCH("/:key", s.UpdateJob)
			jobs.POST("/:key/completion", s.CompleteJob)
			jobs.POST("/:key/failure", s.FailJob)
			jobs.POST("/:key/error", s.ThrowError)
			jobs.POST("/:key/yield", s.YieldJob)
			jobs.POST("/:key/cancellation", s.CancelJob)
		}
	}
	return r
}

// ListenAndServe blocks until ctx is done or the listener fails, then shuts
// down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	s.http = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening on %s", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("gateway shutting down")
	return s.http.Shutdown(shutdownCtx)
}
