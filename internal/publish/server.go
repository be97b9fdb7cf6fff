package publish

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatgate/internal/domain"
	"chatgate/internal/metrics"
)

const maxPublishBody = 1 << 20 // 1MB

// Server exposes the outbound publish endpoint: callers name rooms and
// contacts, the server resolves them through the active channel and fans
// the message out.
type Server struct {
	host    string
	port    int
	token   string
	secret  string
	channel domain.Channel
	roster  *RosterStore
	logger  *slog.Logger
	server  *http.Server

	metricsEnabled  bool
	metricsEndpoint string
}

type ServerConfig struct {
	Host            string
	Port            int
	Token           string // bearer token; empty disables auth
	Secret          string // HMAC-SHA256 body signature secret; empty disables
	Channel         domain.Channel
	Roster          *RosterStore // optional persistence of resolutions
	Logger          *slog.Logger
	MetricsEnabled  bool
	MetricsEndpoint string
}

// publishRequest is the expected JSON body.
type publishRequest struct {
	Content string   `json:"content"`
	Rooms   []string `json:"rooms,omitempty"`
	Friends []string `json:"friends,omitempty"`
}

// publishResult partitions the requested names by delivery outcome.
// Names that resolve to nothing appear in none of the lists.
type publishResult struct {
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
	Ignore  []string `json:"ignore"`
}

type publishResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Result  publishResult `json:"result"`
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = 9898
	}
	if cfg.MetricsEndpoint == "" {
		cfg.MetricsEndpoint = "/metrics"
	}
	return &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		token:           cfg.Token,
		secret:          cfg.Secret,
		channel:         cfg.Channel,
		roster:          cfg.Roster,
		logger:          cfg.Logger,
		metricsEnabled:  cfg.MetricsEnabled,
		metricsEndpoint: cfg.MetricsEndpoint,
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/publish", s.handlePublish)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metricsEnabled {
		mux.Handle(s.metricsEndpoint, metrics.Handler())
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("publish server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("publish server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("publish server: %w", err)
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if s.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, s.secret, sig) {
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	var req publishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if len(req.Rooms) == 0 && len(req.Friends) == 0 {
		// empty target lists mean "everyone we know": the roster
		// supplies the default recipient set
		if !s.loadRosterDefaults(r.Context(), &req) {
			http.Error(w, "at least one room or friend is required", http.StatusBadRequest)
			return
		}
	}

	reqID := uuid.NewString()
	result := s.fanOut(r.Context(), &req)

	if s.roster != nil {
		if err := s.roster.RecordPublish(r.Context(), len(req.Content),
			len(result.Success), len(result.Failed), len(result.Ignore)); err != nil {
			s.logger.Warn("publish audit write failed", "err", err)
		}
	}

	s.logger.Info("publish handled",
		"request", reqID,
		"success", len(result.Success), "failed", len(result.Failed), "ignore", len(result.Ignore))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(publishResponse{
		Status:  "ok",
		Message: fmt.Sprintf("delivered to %d target(s)", len(result.Success)),
		Result:  result,
	})
}

// fanOut resolves every requested name and sends the content once per
// distinct target. A name repeated in the request, or resolving to a
// target already delivered, lands in Ignore. Unresolvable names appear
// in no list at all.
func (s *Server) fanOut(ctx context.Context, req *publishRequest) publishResult {
	result := publishResult{
		Success: []string{},
		Failed:  []string{},
		Ignore:  []string{},
	}
	reply := domain.TextReply(req.Content)
	delivered := make(map[string]bool) // target id -> already handled

	send := func(name string, target domain.Target, kind string) {
		if delivered[target.ID] {
			result.Ignore = append(result.Ignore, name)
			return
		}
		delivered[target.ID] = true

		if s.roster != nil {
			if err := s.roster.Remember(ctx, kind, strings.ToLower(name), target); err != nil {
				s.logger.Warn("roster remember failed", "name", name, "err", err)
			}
		}

		if err := s.channel.Send(reply, domain.Route{Receiver: target.ID}); err != nil {
			s.logger.Warn("publish send failed", "name", name, "target", target.ID, "err", err)
			result.Failed = append(result.Failed, name)
			return
		}
		result.Success = append(result.Success, name)
	}

	for _, name := range req.Rooms {
		target, ok := s.resolve(ctx, "group", name)
		if !ok {
			s.logger.Warn("publish room not found", "name", name)
			continue
		}
		send(name, target, "group")
	}
	for _, name := range req.Friends {
		target, ok := s.resolve(ctx, "contact", name)
		if !ok {
			s.logger.Warn("publish friend not found", "name", name)
			continue
		}
		send(name, target, "contact")
	}
	return result
}

// resolve asks the live channel first, then falls back to the roster.
func (s *Server) resolve(ctx context.Context, kind, name string) (domain.Target, bool) {
	var hits []domain.Target
	if kind == "group" {
		hits = s.channel.SearchGroups(name)
	} else {
		hits = s.channel.SearchContacts(name)
	}
	if len(hits) > 0 {
		return hits[0], true
	}
	if s.roster != nil {
		if t, ok := s.roster.Lookup(ctx, kind, strings.ToLower(name)); ok {
			return t, true
		}
	}
	return domain.Target{}, false
}

// loadRosterDefaults fills the request's target lists from the roster.
// Reports false when there is no roster or it is empty.
func (s *Server) loadRosterDefaults(ctx context.Context, req *publishRequest) bool {
	if s.roster == nil {
		return false
	}
	entries, err := s.roster.All(ctx)
	if err != nil {
		s.logger.Warn("roster default load failed", "err", err)
		return false
	}
	for _, e := range entries {
		if e.Kind == "group" {
			req.Rooms = append(req.Rooms, e.Name)
		} else {
			req.Friends = append(req.Friends, e.Name)
		}
	}
	return len(req.Rooms) > 0 || len(req.Friends) > 0
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	want := "Bearer " + s.token
	return subtle.ConstantTimeCompare([]byte(auth), []byte(want)) == 1
}

// verifyHMAC checks the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
