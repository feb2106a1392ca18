package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mirage-backend/internal/handlers"
	"mirage-backend/internal/middleware"
	"mirage-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	chatHandler *handlers.ChatHandler,
	historyHandler *handlers.HistoryHandler,
	wsHub *websocket.Hub,
	frontendURL string,
	staticDir string,
	ipLimit int,
	ipWindow time.Duration,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Outer per-IP limiter; the per-user quota lives in Postgres.
	apiLimiter := middleware.NewIPRateLimiter(ipLimit, ipWindow)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLimiter.Middleware)
		r.Use(jwtAuth.Middleware)

		// ──── Chat Routes ────
		r.Get("/chats", chatHandler.List)
		r.Post("/configure-chat", chatHandler.Configure)
		r.Post("/send-message", chatHandler.SendMessage)
		r.Delete("/delete-chat", chatHandler.Delete)
		r.Get("/get-data", chatHandler.GetData)

		// ──── History Routes ────
		r.Get("/history", historyHandler.List)
		r.Delete("/history", historyHandler.Clear)
		r.Get("/current-chat", historyHandler.GetCurrent)
		r.Put("/current-chat", historyHandler.SetCurrent)
		r.Delete("/current-chat", historyHandler.ClearCurrent)

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	// Static frontend with index.html fallback for client-side routes.
	r.NotFound(spaHandler(staticDir))

	return r
}

// spaHandler serves files out of staticDir, rewriting unknown paths to
// index.html so browser-side routing keeps working on refresh.
func spaHandler(staticDir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(staticDir))

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}
