package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dinechain/core"
	"dinechain/indexer"
	"dinechain/observability"
	"dinechain/observability/logging"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	readHeaderTimeout      = 5 * time.Second
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
	codeNotFound       = -32004
)

// PaymentIndex serves paged payment history and registration lifecycles.
type PaymentIndex interface {
	ListPayments(ctx context.Context, restaurant string, limit, offset int) ([]indexer.Payment, int64, error)
	Registrations(ctx context.Context, restaurant string) ([]indexer.Registration, error)
}

// ServerConfig carries the HTTP surface settings.
type ServerConfig struct {
	MaxBodyBytes      int64
	RequestsPerSecond float64
	Burst             int
	AuthToken         string
	JWTSecret         string
	JWTIssuer         string
	// TrustedProxies holds addresses or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

type Server struct {
	node    *core.Node
	index   PaymentIndex
	logger  *slog.Logger
	cfg     ServerConfig
	auth    *authenticator
	limiter *clientLimiter
	proxies proxyTrust
	router  http.Handler
	httpSrv *http.Server
}

// NewServer wires the JSON-RPC handler, health, metrics and event stream
// endpoints. index may be nil when the indexer is disabled.
func NewServer(node *core.Node, index PaymentIndex, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	auth, err := newAuthenticator(cfg.AuthToken, cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	s := &Server{
		node:    node,
		index:   index,
		logger:  logger,
		cfg:     cfg,
		auth:    auth,
		limiter: newClientLimiter(cfg.RequestsPerSecond, cfg.Burst),
		proxies: proxies,
	}
	s.router = s.buildRouter()
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", s.limiter.middleware(s.proxies.clientSource, http.HandlerFunc(s.handle)).ServeHTTP)
	return otelhttp.NewHandler(r, "dined.rpc")
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("json-rpc server listening", slog.String("addr", ln.Addr().String()))
	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "time": s.node.Now()})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
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

type methodHandler func(r *http.Request, params []json.RawMessage) (interface{}, *RPCError)

func (s *Server) methods() map[string]methodHandler {
	return map[string]methodHandler{
		"dine_sendTransaction":        s.handleSendTransaction,
		"dine_getRestaurant":          s.handleGetRestaurant,
		"dine_getRestaurantByPlaceId": s.handleGetRestaurantByPlaceID,
		"dine_calculateCustomRatio":   s.handleCalculateCustomRatio,
		"dine_getRestaurantsByRatio":  s.handleRestaurantsByRatio,
		"dine_previewPayment":         s.handlePreviewPayment,
		"dine_getParams":              s.handleGetParams,
		"dine_getReceipt":             s.handleGetReceipt,
		"dine_getNonce":               s.handleGetNonce,
		"dine_listPayments":           s.handleListPayments,
		"dine_listRegistrations":      s.handleListRegistrations,
		"token_balanceOf":             s.handleBalanceOf,
		"token_allowance":             s.handleAllowance,
		"token_metadata":              s.handleTokenMetadata,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	method := "unknown"
	code := 0
	defer func() {
		observability.RPC().Observe(method, code, time.Since(start))
	}()

	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		code = codeInvalidRequest
		writeError(w, status, nil, code, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		code = codeInvalidRequest
		writeError(w, http.StatusBadRequest, nil, code, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		code = codeParseError
		writeError(w, http.StatusBadRequest, nil, code, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		code = codeInvalidRequest
		writeError(w, http.StatusBadRequest, req.ID, code, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		code = codeInvalidRequest
		writeError(w, http.StatusBadRequest, req.ID, code, "method required", nil)
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		code = codeMethodNotFound
		writeError(w, http.StatusNotFound, req.ID, code, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	method = req.Method
	if req.Method == "dine_sendTransaction" {
		if authErr := s.auth.authorize(r, scopeSendTx); authErr != nil {
			code = authErr.Code
			s.logger.Warn("rpc authorization rejected",
				slog.String("method", req.Method),
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("remote", r.RemoteAddr),
				slog.String("authorization", logging.MaskAuthorization(r.Header.Get("Authorization"))),
				slog.String("error", authErr.Message))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	result, rpcErr := handler(r, req.Params)
	if rpcErr != nil {
		code = rpcErr.Code
		status := http.StatusOK
		if rpcErr.Code == codeInvalidParams {
			status = http.StatusBadRequest
		}
		s.logger.Debug("rpc call failed",
			slog.String("method", req.Method),
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Int("code", rpcErr.Code),
			slog.String("error", rpcErr.Message))
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}
