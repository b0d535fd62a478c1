package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/queuekit/queuekit-connector-bull/internal/server/http/controllers"
	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// Deps are the read-only views the admin API serves.
type Deps struct {
	Health  controllers.HealthChecker
	Status  controllers.StatusSource
	Queues  controllers.QueueSource
	Journal controllers.JournalSource // nil disables /v1/journal
	Info    controllers.Info
}

// Server is the admin HTTP server.
type Server struct {
	srv    *http.Server
	lis    net.Listener
	logger log.Logger
}

// New builds the router and server.
func New(deps Deps, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{logger: logger}
	s.srv = &http.Server{Handler: s.routes(deps), ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) routes(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors)

	controllers.NewGeneralController(deps.Health, deps.Status, deps.Queues, deps.Info).RegisterRoutes(r)
	controllers.NewQueuesController(deps.Queues).RegisterRoutes(r)
	controllers.NewJournalController(deps.Journal).RegisterRoutes(r)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("admin HTTP listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close closes the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			log.Str("method", r.Method),
			log.Str("path", r.URL.Path),
			log.Int("status", ww.Status()),
			log.Dur("took", time.Since(start)),
			log.Str("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
