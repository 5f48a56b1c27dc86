package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"creditchain/core/events"
	"creditchain/native/pricing"
	"creditchain/native/registry"
	"creditchain/native/score"
	"creditchain/native/token"
	"creditchain/native/vault"
	"creditchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the credit modules over JSON-RPC 2.0. Mutating methods are
// serialised by a single mutex, mirroring one-transaction-at-a-time execution:
// a call either fully commits or leaves state untouched.
type Server struct {
	mu sync.Mutex

	registry *registry.Engine
	scores   *score.Oracle
	vault    *vault.Engine
	tokens   *token.Ledger
	feed     *pricing.ManualFeed
	emitter  *events.MemoryEmitter

	bearerToken string
	jwtSecret   []byte
	limiter     *rateLimiter
	logger      *slog.Logger
	metrics     interface {
		Observe(module, method string, status int, duration time.Duration)
	}
	credit interface {
		RecordLoanOpened(tier string)
		RecordLiquidationOutcome(outcome string)
		RecordScore(caller string, overall int)
	}
}

// Options carries the collaborators and credentials the server needs.
type Options struct {
	Registry    *registry.Engine
	Scores      *score.Oracle
	Vault       *vault.Engine
	Tokens      *token.Ledger
	Feed        *pricing.ManualFeed
	Emitter     *events.MemoryEmitter
	BearerToken string
	JWTSecret   string
	RateLimit   RateLimitConfig
	Logger      *slog.Logger
}

// NewServer constructs the RPC server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:    opts.Registry,
		scores:      opts.Scores,
		vault:       opts.Vault,
		tokens:      opts.Tokens,
		feed:        opts.Feed,
		emitter:     opts.Emitter,
		bearerToken: strings.TrimSpace(opts.BearerToken),
		jwtSecret:   []byte(strings.TrimSpace(opts.JWTSecret)),
		limiter:     newRateLimiter(opts.RateLimit),
		logger:      logger,
		metrics:     observability.ModuleMetrics(),
		credit:      observability.CreditMetrics(),
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint, for
// embedding into an existing mux.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Start serves RPC until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func methodModule(method string) string {
	if i := strings.IndexByte(method, '_'); i > 0 {
		return method[:i]
	}
	return "unknown"
}

// handle parses the envelope and routes to the method handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = recorder

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()
	correlationID := uuid.NewString()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Correlation-ID", correlationID)

	if !s.limiter.allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, codeServerError, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "failed to read request body", err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	s.dispatch(w, r, req)
	if s.metrics != nil {
		s.metrics.Observe(methodModule(req.Method), req.Method, recorder.status, time.Since(start))
	}
	s.logger.Debug("rpc request",
		"method", req.Method,
		"status", recorder.status,
		"durationMs", time.Since(start).Milliseconds(),
		"correlationId", correlationID,
	)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	type handler struct {
		fn      func(http.ResponseWriter, *RPCRequest)
		mutates bool
	}
	handlers := map[string]handler{
		"registry_stake":            {s.handleRegistryStake, true},
		"registry_unstake":          {s.handleRegistryUnstake, true},
		"registry_submitKYC":        {s.handleRegistrySubmitKYC, true},
		"registry_recordVote":       {s.handleRegistryRecordVote, true},
		"registry_recordProposal":   {s.handleRegistryRecordProposal, true},
		"registry_importScore":      {s.handleRegistryImportScore, true},
		"registry_registerIdentity": {s.handleRegistryRegisterIdentity, true},
		"registry_linkWallet":       {s.handleRegistryLinkWallet, true},
		"registry_getLoan":          {s.handleRegistryGetLoan, false},
		"registry_getProfile":       {s.handleRegistryGetProfile, false},
		"score_compute":             {s.handleScoreCompute, false},
		"vault_borrow":              {s.handleVaultBorrow, true},
		"vault_repay":               {s.handleVaultRepay, true},
		"vault_liquidate":           {s.handleVaultLiquidate, true},
		"vault_getLoan":             {s.handleVaultGetLoan, false},
		"vault_getDebt":             {s.handleVaultGetDebt, false},
		"token_getBalance":          {s.handleTokenGetBalance, false},
		"price_set":                 {s.handlePriceSet, true},
		"price_get":                 {s.handlePriceGet, false},
		"credit_getEvents":          {s.handleGetEvents, false},
	}

	h, ok := handlers[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if h.mutates {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	h.fn(w, req)
}

// requireAuth accepts either the static bearer token or an HS256 JWT signed
// with the configured secret.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.bearerToken == "" && len(s.jwtSecret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	credential := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if credential == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if s.bearerToken != "" && subtle.ConstantTimeCompare([]byte(credential), []byte(s.bearerToken)) == 1 {
		return nil
	}
	if len(s.jwtSecret) > 0 {
		if err := s.validateJWT(credential); err == nil {
			return nil
		}
	}
	return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
}

func (s *Server) validateJWT(tokenString string) error {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("token invalid")
	}
	return nil
}
