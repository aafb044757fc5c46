package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/yclients-mcp/internal/http/middleware"
	"github.com/wolfman30/yclients-mcp/internal/mcp"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

const (
	ssePath      = "/sse"
	messagesPath = "/messages"
	healthPath   = "/health"
	wsPath       = "/ws"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Server             *mcp.Server
	SSE                *mcp.SSEHandler
	DisplayName        string
	Version            string
	ToolNames          []string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	Limiter            httpmiddleware.Limiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Probes
	r.Get(healthPath, health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Protocol endpoints
	r.Group(func(proto chi.Router) {
		if cfg.Limiter != nil {
			proto.Use(httpmiddleware.RateLimit(cfg.Limiter))
		}
		proto.Get("/", info(cfg))
		if cfg.SSE != nil {
			proto.Get(ssePath, cfg.SSE.HandleStream)
			proto.Post(messagesPath, cfg.SSE.HandleMessage)
		}
		if cfg.Server != nil {
			proto.Get(wsPath, cfg.Server.HandleWebSocket)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"service":  "yclients-mcp-server",
		"endpoint": ssePath,
	})
}

type serverInfo struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
	Tools     []string          `json:"tools"`
}

func info(cfg *Config) http.HandlerFunc {
	name := cfg.DisplayName
	if name == "" {
		name = "YClients MCP Server"
	}
	body := serverInfo{
		Name:    name,
		Version: cfg.Version,
		Endpoints: map[string]string{
			"sse":       ssePath,
			"messages":  messagesPath,
			"health":    healthPath,
			"websocket": wsPath,
		},
		Tools: cfg.ToolNames,
	}
	if body.Tools == nil {
		body.Tools = []string{}
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
