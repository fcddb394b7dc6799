package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/cspgen/internal/api/middleware"
	cspapp "github.com/khanhnv2901/cspgen/internal/application/csp"
	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/domain/violation"
	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/resource"
	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
	"github.com/khanhnv2901/cspgen/internal/shared/security"
)

const maxRequestBytes = 1 << 20

// ScanRequest is the body of POST /api/v1/scans.
type ScanRequest struct {
	Directory  string   `json:"directory" validate:"required"`
	Host       string   `json:"host" validate:"omitempty,hostname_rfc1123|hostname_port"`
	Workers    int      `json:"workers" validate:"gte=0,lte=64"`
	Extensions []string `json:"extensions" validate:"omitempty,dive,startswith=."`
	// Save defaults to true.
	Save *bool `json:"save"`
}

// PolicyRequest is the body of POST /api/v1/policies. Either ScanID or
// Directory selects the references.
type PolicyRequest struct {
	ScanID        string              `json:"scan_id" validate:"omitempty,uuid"`
	Directory     string              `json:"directory" validate:"required_without=ScanID"`
	Host          string              `json:"host" validate:"omitempty,hostname_rfc1123|hostname_port"`
	Allow         map[string][]string `json:"allow"`
	Selection     string              `json:"selection" validate:"omitempty,oneof=local external all none"`
	Dialect       string              `json:"dialect" validate:"omitempty,oneof=apache nginx meta"`
	StrictSources *bool               `json:"strict_sources"`
	ReportURI     string              `json:"report_uri" validate:"omitempty,max=2048"`
}

// SnapshotResponse is the JSON form of a stored scan.
type SnapshotResponse struct {
	ID        string              `json:"id"`
	Root      string              `json:"root"`
	Host      string              `json:"host"`
	CreatedAt time.Time           `json:"created_at"`
	Resources resource.Collection `json:"resources"`
	Stats     resource.Stats      `json:"stats"`
	Saved     bool                `json:"saved"`
}

// PolicyResponse is the JSON form of a generated policy.
type PolicyResponse struct {
	Policy   string                  `json:"policy"`
	Header   string                  `json:"header"`
	Snippet  string                  `json:"snippet"`
	Filename string                  `json:"filename"`
	Dialect  policy.Dialect          `json:"dialect"`
	Lint     policy.Analysis         `json:"lint"`
	Rejected []policy.RejectedSource `json:"rejected"`
}

// CSPService is the application surface the API needs.
type CSPService interface {
	Scan(ctx context.Context, req cspapp.ScanRequest) (*snapshot.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*snapshot.Snapshot, error)
	Generate(c resource.Collection, req cspapp.GenerateRequest) (*cspapp.Generated, error)
	RecordViolation(ctx context.Context, record violation.Record) error
	ListViolations(ctx context.Context, limit int) ([]violation.Record, error)
}

type HealthService interface {
	Check(ctx context.Context) error
	Ready(ctx context.Context) error
}

type Config struct {
	CSP       CSPService
	Health    HealthService
	AuthToken string
	Logger    *zap.Logger
	// RootDir confines scanned directories. Empty allows any directory.
	RootDir        string
	DefaultHost    string
	Malformed      resource.MalformedPolicy
	StrictSources  bool
	ReportURI      string
	ViolationLimit int
	CORSOrigins    []string // Allowed CORS origins (empty = allow all)
	RateLimit      int      // Requests per second per IP (0 = disabled)
	RateBurst      int      // Burst size for rate limiter
	// TrustedProxies are the peers whose X-Forwarded-For header is honored.
	// Empty means the header is ignored.
	TrustedProxies []netip.Prefix
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
	validate *validator.Validate
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
		validate: validator.New(),
	}
	srv.routes()
	return srv
}

// Close stops background maintenance goroutines.
func (s *Server) Close() {
	s.limiters.stop()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Apply middleware chain: RequestID -> Logging -> RateLimit -> CORS -> Auth -> Handler
	handler := middleware.RequestID(s.withLogging(s.withRateLimit(s.withCORS(s.mux))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("/api/v1/health", s.withAuth(http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("/api/v1/ready", s.withAuth(http.HandlerFunc(s.handleReady)))
	s.mux.Handle("/api/v1/scans", s.withAuth(http.HandlerFunc(s.handleScans)))
	s.mux.Handle("/api/v1/scans/", s.withAuth(http.HandlerFunc(s.handleScanByID)))
	s.mux.Handle("/api/v1/policies", s.withAuth(http.HandlerFunc(s.handlePolicies)))
	s.mux.Handle("/api/v1/violations", s.withAuth(http.HandlerFunc(s.handleViolations)))

	// Browsers cannot authenticate violation reports.
	s.mux.HandleFunc(policy.DefaultReportURI, s.handleReport)
	if uri := s.cfg.ReportURI; strings.HasPrefix(uri, "/") && uri != policy.DefaultReportURI {
		s.mux.HandleFunc(uri, s.handleReport)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Check(r.Context()); err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Ready(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}

	var req ScanRequest
	if err := s.decodeAndValidate(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	root, err := s.resolveDirectory(req.Directory)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	save := req.Save == nil || *req.Save
	snap, err := s.cfg.CSP.Scan(r.Context(), cspapp.ScanRequest{
		Root:       root,
		Host:       s.host(req.Host),
		Workers:    req.Workers,
		Extensions: req.Extensions,
		Malformed:  s.cfg.Malformed,
		Save:       save,
	})
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, toSnapshotResponse(snap, save))
}

func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/scans/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	snap, err := s.cfg.CSP.GetSnapshot(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap, true))
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}

	var req PolicyRequest
	if err := s.decodeAndValidate(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	collection, err := s.policyCollection(r.Context(), req)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	genReq := cspapp.GenerateRequest{
		Selection:     policy.Selection(req.Selection),
		Dialect:       policy.Dialect(req.Dialect),
		ReportURI:     req.ReportURI,
		StrictSources: s.cfg.StrictSources,
	}
	if genReq.ReportURI == "" {
		genReq.ReportURI = s.cfg.ReportURI
	}
	if req.StrictSources != nil {
		genReq.StrictSources = *req.StrictSources
	}
	if req.Allow != nil {
		allow, err := policy.FromMap(req.Allow)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		genReq.Allow = allow
	}

	gen, err := s.cfg.CSP.Generate(collection, genReq)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gen.Snippet.Filename))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(gen.Snippet.Content)); err != nil {
			s.requestLogger(r).Error("failed to write snippet", zap.Error(err))
		}
		return
	}

	rejected := gen.Policy.Rejected
	if rejected == nil {
		rejected = []policy.RejectedSource{}
	}
	writeJSON(w, http.StatusOK, PolicyResponse{
		Policy:   gen.Text,
		Header:   gen.Header,
		Snippet:  gen.Snippet.Content,
		Filename: gen.Snippet.Filename,
		Dialect:  gen.Snippet.Dialect,
		Lint:     gen.Lint,
		Rejected: rejected,
	})
}

func (s *Server) policyCollection(ctx context.Context, req PolicyRequest) (resource.Collection, error) {
	if req.ScanID != "" {
		snap, err := s.cfg.CSP.GetSnapshot(ctx, req.ScanID)
		if err != nil {
			return nil, err
		}
		return snap.Collection(), nil
	}

	root, err := s.resolveDirectory(req.Directory)
	if err != nil {
		return nil, err
	}
	snap, err := s.cfg.CSP.Scan(ctx, cspapp.ScanRequest{
		Root:      root,
		Host:      s.host(req.Host),
		Malformed: s.cfg.Malformed,
	})
	if err != nil {
		return nil, err
	}
	return snap.Collection(), nil
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	limit := s.cfg.ViolationLimit
	if limit <= 0 {
		limit = 50
	}
	if q := r.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.cfg.CSP.ListViolations(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}

	report, err := violation.Decode(r.Body)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	record := violation.Record{
		ReceivedAt: time.Now().UTC(),
		RemoteAddr: s.clientIP(r),
		UserAgent:  r.UserAgent(),
		Report:     report,
	}
	if err := s.cfg.CSP.RecordViolation(r.Context(), record); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrInvalidInput, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return extractValidationError(err)
	}
	return nil
}

// extractValidationError reports the first failing field.
func extractValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		ve := validationErrors[0]
		if strings.HasPrefix(ve.Tag(), "required") {
			return fmt.Errorf("%w: %s - %s (%w)", sharedErrors.ErrValidation, ve.Field(), ve.Tag(), sharedErrors.ErrMissingRequired)
		}
		return fmt.Errorf("%w: %s - %s", sharedErrors.ErrValidation, ve.Field(), ve.Tag())
	}
	return fmt.Errorf("%w: %v", sharedErrors.ErrValidation, err)
}

func (s *Server) resolveDirectory(dir string) (string, error) {
	if s.cfg.RootDir == "" {
		return dir, nil
	}
	return security.ResolveWithin(s.cfg.RootDir, dir)
}

func (s *Server) host(requested string) string {
	if requested != "" {
		return requested
	}
	return s.cfg.DefaultHost
}

func toSnapshotResponse(snap *snapshot.Snapshot, saved bool) SnapshotResponse {
	return SnapshotResponse{
		ID:        snap.ID(),
		Root:      snap.Root(),
		Host:      snap.Host(),
		CreatedAt: snap.CreatedAt(),
		Resources: snap.Collection(),
		Stats:     snap.Stats(),
		Saved:     saved,
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sharedErrors.ErrScanNotFound):
		return http.StatusNotFound
	case errors.Is(err, sharedErrors.ErrInvalidScanID),
		errors.Is(err, sharedErrors.ErrRootNotFound),
		errors.Is(err, sharedErrors.ErrNotADirectory),
		errors.Is(err, sharedErrors.ErrUnknownDialect),
		errors.Is(err, sharedErrors.ErrUnknownSelection),
		errors.Is(err, sharedErrors.ErrInvalidAllowList),
		errors.Is(err, sharedErrors.ErrUnknownType),
		errors.Is(err, sharedErrors.ErrInvalidReport),
		errors.Is(err, sharedErrors.ErrValidation),
		errors.Is(err, sharedErrors.ErrInvalidInput),
		errors.Is(err, security.ErrPathEscape):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ParseTrustedProxies accepts CIDR ranges or single addresses.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("%w: trusted proxy %q: %v", sharedErrors.ErrInvalidInput, v, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("%w: trusted proxy %q: %v", sharedErrors.ErrInvalidInput, v, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

func (s *Server) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.cfg.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address without its port. X-Forwarded-For is only
// read when the peer is a trusted proxy; it is walked right to left and the
// first untrusted hop wins.
func (s *Server) clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if !s.trusted(ip) {
		return ip
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			return ip
		}
		ip = hop
		if !s.trusted(hop) {
			return hop
		}
	}
	return ip
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := s.clientIP(r)
		limiter := s.limiters.getLimiter(ip, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_ip", ip))
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Determine if origin is allowed
		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowedOrigin := range s.cfg.CORSOrigins {
				if allowedOrigin == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
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

		if s.cfg.Logger != nil {
			s.cfg.Logger.Info("http_request",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", time.Since(start)),
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
	msg := err.Error()

	// For 5xx errors, return generic message and log details server-side
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = http.StatusText(status)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}

	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// rateLimiterMap manages per-IP rate limiters with automatic cleanup
type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	done     chan struct{}
	stopOnce sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{
		limiters: make(map[string]*ipLimiter),
		done:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, exists := m.limiters[ip]
	if !exists {
		limiter = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[ip] = limiter
	}
	limiter.lastSeen = time.Now()

	return limiter.limiter
}

// cleanupLoop removes limiters that haven't been used in 5 minutes
func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			for ip, limiter := range m.limiters {
				if time.Since(limiter.lastSeen) > 5*time.Minute {
					delete(m.limiters, ip)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *rateLimiterMap) stop() {
	m.stopOnce.Do(func() { close(m.done) })
}
