package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/example/reservationd/internal/auth"
	"github.com/example/reservationd/internal/reservation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (int64, error)
}

type Server struct {
	Auth         *auth.Store
	Users        Authenticator
	Reservations *reservation.Manager
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Route("/restaurants/{rid}", func(r chi.Router) {
			r.Get("/reservations", s.handleRestaurantReservations)
			r.Get("/availability", s.handleAvailability)
			r.Get("/tables/available", s.handleAvailableTables)
			r.Get("/slots/active", s.handleActiveCount)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.Auth.RequireAuth)
			r.Get("/me/reservations", s.handleMyReservations)
			r.Post("/reservations", s.handleCreate)
			r.Get("/reservations/{id}", s.handleGet)
			r.Put("/reservations/{id}", s.handleUpdate)
			r.Patch("/reservations/{id}/status", s.handleStatus)
			r.Post("/reservations/{id}/cancel", s.handleCancel)
		})
	})

	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Printf("web: %s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}

func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("web: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
