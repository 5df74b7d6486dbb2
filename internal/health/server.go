// Package health serves the liveness endpoint orchestration probes hit.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	logx "vidbot/pkg/logx"
)

const livenessBody = "Video Editor Bot Running! 🎬"

type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(port int, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}

	r := mux.NewRouter()
	handler := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, livenessBody)
	}
	r.HandleFunc("/", handler).Methods(http.MethodGet)
	r.HandleFunc("/health", handler).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
		log: log,
	}
}

// Run blocks serving until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("health server listening", logx.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
