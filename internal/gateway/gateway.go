// Package gateway implements the §6 web gateway: the Bearer-authenticated
// HTTP surface that fronts the web channel (internal/channels.Web) and the
// conversation store for a browser-based client — REST history, chat send,
// an SSE event stream, a log event stream, a WebSocket chat stream, and
// sandboxed project file serving. Grounded on the teacher's
// internal/gateway package: a single http.ServeMux-backed Server type
// assembled once in New and served behind net/http, no web framework.
package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

// Config configures the gateway's auth secret and project sandbox root.
type Config struct {
	// AuthToken is the single Bearer secret every request (other than the
	// query-token exception below) must present.
	AuthToken string
	// ProjectsDir is the sandbox base directory project file requests are
	// confined to (SPEC_FULL.md §6).
	ProjectsDir string
}

// Server is the web gateway. One Server instance owns one AuthToken, one
// web channel, and one store; route dispatch happens through an internal
// http.ServeMux, matching the teacher's Server.mux pattern.
type Server struct {
	cfg    Config
	web    *channels.Web
	store  store.Store
	logger *slog.Logger
	logs   *LogBus
	mux    *http.ServeMux
}

// New assembles a gateway Server. logs may be nil, in which case
// /api/logs/events reports 503 rather than panicking.
func New(cfg Config, web *channels.Web, storeDB store.Store, logs *LogBus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, web: web, store: storeDB, logs: logs, logger: logger}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("/api/chat/events", s.auth(true, http.HandlerFunc(s.handleChatEvents)))
	s.mux.Handle("/api/logs/events", s.auth(true, http.HandlerFunc(s.handleLogEvents)))
	s.mux.Handle("/api/chat/ws", s.auth(true, http.HandlerFunc(s.handleChatWS)))
	s.mux.Handle("/api/chat/history", s.auth(false, http.HandlerFunc(s.handleChatHistory)))
	s.mux.Handle("/api/chat/send", s.auth(false, http.HandlerFunc(s.handleChatSend)))
	s.mux.Handle("/projects/", s.auth(false, http.HandlerFunc(s.handleProjectFile)))
}

// auth wraps next with Bearer token authentication. allowQueryToken permits
// the SSE/WebSocket exception of also accepting ?token=... (S5): a browser
// EventSource/WebSocket client cannot set request headers, so those three
// endpoints alone fall back to the query string.
func (s *Server) auth(allowQueryToken bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := bearerToken(r)
		if presented == "" && allowQueryToken {
			presented = r.URL.Query().Get("token")
		}
		if !constantTimeEqual(presented, s.cfg.AuthToken) {
			http.Error(w, "Invalid or missing auth token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// constantTimeEqual reports whether presented equals want, refusing the
// comparison entirely (not just in constant time) when want is empty so an
// unconfigured gateway authenticates nothing.
func constantTimeEqual(presented, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(want)) == 1
}
