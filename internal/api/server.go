package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/webposture/internal/api/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/webposture/internal/progress"
	"github.com/khanhnv2901/webposture/internal/safety"
	"github.com/khanhnv2901/webposture/internal/scan"
	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
	"github.com/khanhnv2901/webposture/internal/store"
)

// ScanRequest is the flat request body for starting a scan.
type ScanRequest struct {
	URL                 string `json:"url"`
	ConfirmedPermission bool   `json:"confirmed_permission"`
	OwnerConfirmation   bool   `json:"owner_confirmation"`
	LegalResponsibility bool   `json:"legal_responsibility"`
}

// ScanService runs scans and exposes their progress and history.
type ScanService interface {
	Run(ctx context.Context, req scan.Request) (*scan.Report, error)
	Progress(id string) (progress.Snapshot, error)
	Cancel(id string) error
	History(ctx context.Context, limit int) ([]store.ScanRecord, error)
	Details(ctx context.Context, id string) (store.ScanRecord, error)
}

type Config struct {
	Scans       ScanService
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Apply middleware chain: RequestID -> Logging -> RateLimit -> CORS -> Handler
	handler := middleware.RequestID(s.withLogging(s.withRateLimit(s.withCORS(s.mux))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Version 1 API routes (primary)
	s.mux.Handle("/api/v1/health", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("/api/v1/disclaimer", http.HandlerFunc(s.handleDisclaimer))
	s.mux.Handle("/api/v1/scan", s.withAuth(http.HandlerFunc(s.handleScan)))
	s.mux.Handle("/api/v1/scan-history", s.withAuth(http.HandlerFunc(s.handleScanHistory)))
	s.mux.Handle("/api/v1/scan-details/", s.withAuth(http.HandlerFunc(s.handleScanDetails)))
	s.mux.Handle("/api/v1/scan-progress/", s.withAuth(http.HandlerFunc(s.handleScanProgress)))

	// Unversioned aliases for backward compatibility
	s.mux.Handle("/api/health", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("/api/disclaimer", http.HandlerFunc(s.handleDisclaimer))
	s.mux.Handle("/api/scan", s.withAuth(http.HandlerFunc(s.handleScan)))
	s.mux.Handle("/api/scan-history", s.withAuth(http.HandlerFunc(s.handleScanHistory)))
	s.mux.Handle("/api/scan-details/", s.withAuth(http.HandlerFunc(s.handleScanDetails)))
	s.mux.Handle("/api/scan-progress/", s.withAuth(http.HandlerFunc(s.handleScanProgress)))
}

// pathID strips the route prefix (versioned or not) from a request path.
func pathID(path, route string) string {
	id := strings.TrimPrefix(path, "/api/v1/"+route+"/")
	return strings.TrimPrefix(id, "/api/"+route+"/")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDisclaimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, safety.LegalDisclaimer())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576) // 1MB limit
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	report, err := s.cfg.Scans.Run(r.Context(), scan.Request{
		URL:      req.URL,
		ClientIP: clientIP(r),
		Attestations: safety.Attestations{
			Acknowledged:     req.ConfirmedPermission,
			OwnerConfirmed:   req.OwnerConfirmation,
			AcceptsLiability: req.LegalResponsibility,
		},
	})
	if err != nil {
		s.writeScanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}

	limit := 10
	if q := r.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.cfg.Scans.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"scans": records,
	})
}

func (s *Server) handleScanDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := pathID(r.URL.Path, "scan-details")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	rec, err := s.cfg.Scans.Details(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrScanNotFound) {
			s.writeError(w, r, http.StatusNotFound, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleScanProgress serves both the progress snapshot and cancellation,
// distinguished by a "/cancel" path suffix.
func (s *Server) handleScanProgress(w http.ResponseWriter, r *http.Request) {
	path := pathID(r.URL.Path, "scan-progress")
	if path == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}

	if id, ok := strings.CutSuffix(path, "/cancel"); ok {
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w, r)
			return
		}
		if err := s.cfg.Scans.Cancel(id); err != nil {
			if errors.Is(err, apperrors.ErrSessionNotFound) {
				s.writeError(w, r, http.StatusNotFound, err)
				return
			}
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Scan cancelled successfully",
			"scan_id": id,
		})
		return
	}

	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	snap, err := s.cfg.Scans.Progress(path)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionNotFound) {
			s.writeError(w, r, http.StatusNotFound, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeScanError maps pipeline errors onto HTTP statuses. Safety gate
// rejections carry their own classification.
func (s *Server) writeScanError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *safety.Rejection
	if errors.As(err, &rej) {
		switch rej.Kind {
		case safety.RejectRateLimit:
			w.Header().Set("Retry-After", strconv.Itoa(int(rej.RetryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":               rej.Error(),
				"retry_after_seconds": int(rej.RetryAfter.Seconds()),
			})
		case safety.RejectInvalidURL:
			s.writeError(w, r, http.StatusBadRequest, rej)
		default:
			s.writeError(w, r, http.StatusForbidden, rej)
		}
		return
	}
	if errors.Is(err, apperrors.ErrScanCancelled) {
		s.writeError(w, r, http.StatusConflict, err)
		return
	}
	s.writeError(w, r, http.StatusInternalServerError, err)
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip rate limiting if disabled
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		limiter := s.limiters.getLimiter(ip, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			if s.cfg.Logger != nil {
				logger := s.requestLogger(r)
				logger.Warn("rate_limit_exceeded",
					zap.String("client_ip", ip),
				)
			}
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, honoring X-Forwarded-For for
// proxied requests.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// Use first IP in X-Forwarded-For chain
		if idx := strings.Index(forwarded, ","); idx > 0 {
			ip = strings.TrimSpace(forwarded[:idx])
		} else {
			ip = strings.TrimSpace(forwarded)
		}
	}
	// Remove port if present
	if idx := strings.LastIndex(ip, ":"); idx > 0 {
		ip = ip[:idx]
	}
	return ip
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Determine if origin is allowed
		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowed := false
			for _, allowedOrigin := range s.cfg.CORSOrigins {
				if allowedOrigin == origin {
					allowed = true
					allowOrigin = origin
					break
				}
			}
			if !allowed {
				allowOrigin = ""
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		if s.cfg.Logger != nil {
			requestID := middleware.GetRequestID(r.Context())
			s.cfg.Logger.Info("http_request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", duration),
				zap.Int64("bytes", lrw.bytesWritten),
			)
		}
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	// Sanitize error messages to prevent information disclosure
	msg := err.Error()

	// For 5xx errors, return generic message and log details server-side
	if status >= 500 {
		if s.cfg.Logger != nil {
			logger := s.requestLogger(r)
			logger.Error("internal_server_error",
				zap.Error(err),
				zap.Int("status", status),
			)
		}
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}

	requestID := middleware.GetRequestID(r.Context())
	return s.cfg.Logger.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// rateLimiterMap manages per-IP rate limiters with automatic cleanup
type rateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{
		limiters: make(map[string]*ipLimiter),
	}
	// Start cleanup goroutine to remove stale limiters
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, exists := m.limiters[ip]
	if !exists {
		limiter = &ipLimiter{
			limiter:  rate.NewLimiter(rate.Limit(rps), burst),
			lastSeen: time.Now(),
		}
		m.limiters[ip] = limiter
	} else {
		limiter.lastSeen = time.Now()
	}

	return limiter.limiter
}

// cleanupLoop removes limiters that haven't been used in 5 minutes
func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		for ip, limiter := range m.limiters {
			if time.Since(limiter.lastSeen) > 5*time.Minute {
				delete(m.limiters, ip)
			}
		}
		m.mu.Unlock()
	}
}
