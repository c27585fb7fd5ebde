package runtime

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
)

type routeView struct {
	Name  string             `json:"name"`
	Topic string             `json:"topic"`
	Stats RouteStatsSnapshot `json:"stats"`
}

// StartAPIServer mounts the runtime endpoints. Start calls it; plugins add
// their own endpoints with RegisterAPIHandler beforehand.
func (s *Service) StartAPIServer() {
	if s.Conf.MetricsEnabled && s.Conf.MetricsPort > 0 {
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if !s.Conf.APIEnabled {
		return
	}
	s.RegisterAPIHandler("/api/handlers", http.HandlerFunc(s.handleGetHandlers))
}

// RegisterAPIHandler mounts handler on the API port with CORS applied.
func (s *Service) RegisterAPIHandler(pattern string, handler http.Handler) {
	s.RegisterHTTPHandler(s.apiPort(), pattern, s.withCORS(handler))
}

// APIHandler returns the mux serving the API port, or nil when nothing is mounted.
func (s *Service) APIHandler() http.Handler {
	return s.HTTPHandler(s.apiPort())
}

func (s *Service) apiPort() int {
	if s.Conf == nil || s.Conf.APIPort == 0 {
		return 8081
	}
	return s.Conf.APIPort
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, r *http.Request) {
	routes := s.Routes()
	views := make([]routeView, 0, len(routes))
	for _, route := range routes {
		views = append(views, routeView{
			Name:  route.Name,
			Topic: route.Topic,
			Stats: route.Stats.Snapshot(),
		})
	}

	if err := WriteJSON(w, http.StatusOK, views); err != nil {
		s.Logger.Error("Failed to encode handlers", err, nil)
	}
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Conf != nil && len(s.Conf.APICORSAllowedOrigins) > 0 {
			allowedOrigin := s.getAllowedCORSOrigin(r.Header.Get("Origin"))
			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for requestOrigin.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.APICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, v); err != nil {
		return err
	}
	return nil
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, msg string) {
	_ = WriteJSON(w, status, map[string]string{"error": msg})
}
