package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewHandler mounts the gateway and a liveness probe on a chi router.
func NewHandler(gateway *Gateway) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": gateway.tracker.Len(),
		})
	})
	r.Method(http.MethodGet, "/ws", gateway)
	return r
}

// NewServer builds the realtime listener. Write timeouts are left unset since
// upgraded connections are long lived.
func NewServer(addr string, gateway *Gateway) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(gateway),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
