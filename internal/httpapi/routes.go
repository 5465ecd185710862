package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tug-of-war-backend/internal/hub"
	"github.com/DoyleJ11/tug-of-war-backend/internal/logging"
	"github.com/DoyleJ11/tug-of-war-backend/internal/session"
	"github.com/DoyleJ11/tug-of-war-backend/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	Binder         *session.Binder
	Logger         *zap.Logger
	AllowedOrigins []string
	PublicURL      string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type", AdminCodeHeader},
		MaxAge:         300,
	}))

	// Public routes
	r.Get("/", Root)
	r.Get("/healthz", Healthz)
	r.Get("/api/room/{roomId}", GetRoom(d.Hub, d.Binder, d.Logger))
	r.Get("/api/room/{roomId}/qr", JoinQR(d.Hub.Tokens(), d.PublicURL))
	r.Get("/ws", ws.Handler(d.Binder, ws.Options{
		Logger:         d.Logger,
		OriginPatterns: wsOrigins(origins),
		PublicURL:      d.PublicURL,
	}))
	return r
}

// wsOrigins converts CORS origins (scheme://host) into the host patterns
// websocket.Accept matches against.
func wsOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}
