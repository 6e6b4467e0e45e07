package page

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/betafish-inc/dualthread"
)

const shutdownTimeout = 5 * time.Second

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>dualthread</title></head>
<body>
<button id="button">update</button>
<script>
document.getElementById("button").onclick = () => fetch("/button", {method: "POST"});
</script>
</body>
</html>
`

// Server is the HTTP face of the page: one button that activates the Controller trigger.
type Server struct {
	Addr       string
	controller *Controller
	metrics    http.Handler
	log        log.Interface
}

// NewServer creates a Server listening on addr. metrics may be nil.
func NewServer(addr string, c *Controller, metrics *dualthread.Metrics, logger log.Interface) *Server {
	s := &Server{Addr: addr, controller: c, log: logger}
	if metrics != nil {
		s.metrics = metrics.Handler()
	}
	return s
}

// Router returns the HTTP routes of the page.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	r.Post("/button", func(w http.ResponseWriter, r *http.Request) {
		if err := s.controller.OnTriggerActivated(r.Context()); err != nil {
			s.log.WithError(err).Error("trigger failed")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Start implements dualthread.Worker. The server is shut down gracefully when ctx is done.
func (s *Server) Start(ctx context.Context, h *dualthread.Host) {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.Addr).Info("page listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("page server failed")
			h.Stop()
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("graceful shutdown did not complete")
			_ = srv.Close()
		}
	}
}
