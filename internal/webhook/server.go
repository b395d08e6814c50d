package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ndemidov/payment-webhook/internal/auth"
	"github.com/ndemidov/payment-webhook/internal/config"
	"github.com/ndemidov/payment-webhook/internal/event"
	"github.com/ndemidov/payment-webhook/internal/notifier"
	"github.com/ndemidov/payment-webhook/internal/storage"
	"github.com/ndemidov/payment-webhook/internal/task"
)

const (
	maxBodySize = 10 << 20 // provider payloads are capped at 10MB

	defaultAdminLimit = 20
	maxAdminLimit     = 200

	sideEffectTimeout = 30 * time.Second
)

// Server receives provider webhooks and serves the admin/health surface.
// The store may be nil: persistence is then disabled and admin queries
// report the storage as unavailable.
type Server struct {
	cfg    *config.Config
	auth   *auth.Authenticator
	store  *storage.Storage
	notify *notifier.Notifier
	tasks  *task.Runner
	log    *slog.Logger

	started time.Time
	server  *http.Server
}

// NewServer creates a new webhook server
func NewServer(cfg *config.Config, store *storage.Storage, notify *notifier.Notifier, log *slog.Logger) *Server {
	return &Server{
		cfg: cfg,
		auth: auth.New(auth.Config{
			AllowedIPs: cfg.AllowedIPs,
			Secret:     cfg.WebhookSecret,
			APIKey:     cfg.APIKey,
			MerchantID: cfg.MerchantID,
		}),
		store:   store,
		notify:  notify,
		tasks:   task.NewRunner(log),
		log:     log,
		started: time.Now(),
	}
}

// Router builds the HTTP routing table
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(secureHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodySize))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"*"},
	}))

	r.Post("/webhook/payment", s.handlePayment)
	r.Post("/webhook", s.handlePayment)
	r.Get("/webhook/info", s.handleInfo)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleRoot)

	r.Get("/admin/payments", s.handleAdminList)
	r.Get("/admin/payments/{id}", s.handleAdminGet)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "Endpoint not found")
	})

	return r
}

// Start starts the webhook server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting webhook server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

// Wait blocks until detached persistence/notification tasks have drained.
func (s *Server) Wait() {
	s.tasks.Wait()
}

// --- Webhook ---

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.log.Warn("read webhook body", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	err = s.auth.Verify(auth.Request{
		Body:       body,
		Signature:  headerFirst(r, "X-Signature", "Signature"),
		APIKey:     headerFirst(r, "X-ApiKey", "X-Api-Key", "X-Secret"),
		MerchantID: headerFirst(r, "X-MerchantId", "X-Merchant-Id"),
		RemoteIP:   clientIP(r),
	})
	if err != nil {
		s.rejectAuth(w, r, err)
		return
	}

	payload, err := decodePayload(body)
	if err != nil {
		// The original service collapses malformed JSON into a generic 500,
		// and providers retry on any non-200 status.
		s.log.Warn("parse webhook payload", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ev := event.Normalize(payload)
	s.log.Info("payment event received",
		"kind", ev.Kind.String(),
		"payment_id", ev.ID,
		"request_id", middleware.GetReqID(r.Context()),
	)

	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "Webhook received successfully",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	// The response is out; durability and delivery run as detached tasks
	// whose failures are only ever logged. If persistence fails here the
	// event is lost for this delivery, since the provider already saw 200.
	if s.store != nil {
		s.tasks.Go("persist payment", func() error {
			return s.persist(ev)
		})
	}
	s.tasks.Go("notify admin", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		return s.notify.Notify(ctx, ev)
	})
}

func (s *Server) persist(ev event.Event) error {
	if ev.ID == "" {
		s.log.Info("event has no id, skipping persistence", "event_type", ev.Type)
		return nil
	}

	raw, err := json.Marshal(ev.Raw)
	if err != nil {
		return fmt.Errorf("marshal raw payload: %w", err)
	}

	eventType := ev.Type
	if eventType == "" && ev.Kind != event.Unknown {
		eventType = ev.Kind.String()
	}

	rec := &storage.Record{
		ID:             ev.ID,
		Amount:         ev.Amount,
		Currency:       ev.Currency,
		ProviderStatus: ev.ProviderStatus,
		EventType:      eventType,
		Raw:            raw,
	}

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	created, err := s.store.SavePayment(ctx, rec)
	if err != nil {
		return fmt.Errorf("save payment %s: %w", ev.ID, err)
	}
	if !created {
		s.log.Info("duplicate delivery, payment already stored", "payment_id", ev.ID)
	}
	return nil
}

func (s *Server) rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Warn("webhook rejected", "reason", err, "remote_ip", clientIP(r))

	switch {
	case errors.Is(err, auth.ErrIPNotAllowed):
		s.respondError(w, http.StatusForbidden, "Forbidden: IP not allowed")
	case errors.Is(err, auth.ErrInvalidSignature):
		s.respondError(w, http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, auth.ErrInvalidAPIKey):
		s.respondError(w, http.StatusUnauthorized, "Invalid API key")
	case errors.Is(err, auth.ErrInvalidMerchantID):
		s.respondError(w, http.StatusUnauthorized, "Invalid merchant ID")
	default:
		s.respondError(w, http.StatusUnauthorized, "Unauthorized")
	}
}

// --- Service endpoints ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service":     "Payment Webhook Service",
		"version":     "1.0.0",
		"webhook_url": fmt.Sprintf("%s://%s/webhook/payment", scheme, r.Host),
		"endpoints": map[string]string{
			"webhook": "/webhook/payment (POST)",
			"health":  "/health (GET)",
			"info":    "/webhook/info (GET)",
		},
	})
}

// --- Admin ---

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		s.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Storage not configured")
		return
	}

	limit := defaultAdminLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxAdminLimit {
		limit = maxAdminLimit
	}

	records, err := s.store.ListPayments(r.Context(), limit)
	if err != nil {
		s.log.Error("list payments", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if records == nil {
		records = []storage.Record{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(records),
		"payments": records,
	})
}

func (s *Server) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		s.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Storage not configured")
		return
	}

	rec, err := s.store.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		s.log.Error("get payment", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) adminAuthorized(r *http.Request) bool {
	return s.cfg.AdminKey != "" && r.URL.Query().Get("key") == s.cfg.AdminKey
}

// --- Helpers ---

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("write response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	// Numbers stay as json.Number so amounts survive without float loss.
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		// A valid JSON body that is not an object (array, number, string)
		// carries no recognizable fields; it classifies as Unknown like an
		// object missing every field, rather than failing the request.
		if json.Valid(body) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

func headerFirst(r *http.Request, keys ...string) string {
	for _, key := range keys {
		if v := r.Header.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// secureHeaders sets baseline security response headers.
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from the socket address. Forwarded headers
// (X-Real-IP, X-Forwarded-For) are client-controlled and deliberately not
// consulted: the allow-list trusts only the peer the connection came from.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
