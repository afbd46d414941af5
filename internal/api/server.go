package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenMCP-EVM/internal/auth"
	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/journal"
	"OpenMCP-EVM/internal/observability/metrics"
	"OpenMCP-EVM/internal/toolbox"
	"OpenMCP-EVM/internal/web3"
	"OpenMCP-EVM/internal/web3/ethereum"
	"OpenMCP-EVM/pkg/logger"
)

// maxBodyBytes 限制请求体大小。
const maxBodyBytes = 1 << 20

// Server 负责暴露工具箱的 REST 接口。
type Server struct {
	addr    string
	service *toolbox.Service
	metrics *metrics.Registry
	auth    *auth.Service
	logger  *slog.Logger
}

// Option 定制 Server。
type Option func(*Server)

// WithAuth 为工具接口启用 API Key 认证。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.auth = svc }
}

// NewServer 构造 API 服务实例。metrics 为空时不暴露 /metrics。
func NewServer(addr string, svc *toolbox.Service, reg *metrics.Registry, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		service: svc,
		metrics: reg,
		logger:  logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册好全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /balance", s.route("balance", s.handleBalance, auth.PermissionRead))
	mux.Handle("POST /code", s.route("code", s.handleCode, auth.PermissionRead))
	mux.Handle("POST /erc20_balance_of", s.route("erc20_balance_of", s.handleFungibleBalance, auth.PermissionRead))
	mux.Handle("POST /send", s.route("send", s.handleSend, auth.PermissionSend))
	mux.Handle("POST /api/v1/execute", s.route("execute", s.handleExecute, auth.PermissionRead))
	mux.Handle("GET /api/v1/transfers", s.route("transfers", s.handleListTransfers, auth.PermissionRead))
	mux.Handle("GET /api/v1/transfers/{id}", s.route("transfer_detail", s.handleTransferDetail, auth.PermissionRead))
	mux.Handle("GET /healthz", s.instrument("healthz", s.handleHealth))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("HTTP 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type balanceInput struct {
	Who string `json:"who"`
}

type codeInput struct {
	Addr string `json:"addr"`
}

type fungibleBalanceInput struct {
	Token  string `json:"token"`
	Holder string `json:"holder"`
}

type sendInput struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	AmountEth string  `json:"amount_eth"`
	Simulate  *bool   `json:"simulate,omitempty"`
	ForkBlock *uint64 `json:"fork_block,omitempty"`
}

type executeInput struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

type sendOutput struct {
	TransferID string  `json:"transfer_id"`
	TxHash     string  `json:"tx_hash"`
	GasUsed    *uint64 `json:"gas_used"`
	Status     *bool   `json:"status"`
	Success    bool    `json:"success"`
}

func (in balanceInput) request() (web3.BalanceRequest, error) {
	if strings.TrimSpace(in.Who) == "" {
		return web3.BalanceRequest{}, xerrors.New(xerrors.CodeInvalidArgument, "who 不能为空")
	}
	return web3.NewBalanceRequest(web3.ParseAddressOrName(in.Who)), nil
}

func (in codeInput) request() (web3.CodeRequest, error) {
	if strings.TrimSpace(in.Addr) == "" {
		return web3.CodeRequest{}, xerrors.New(xerrors.CodeInvalidArgument, "addr 不能为空")
	}
	return web3.NewCodeRequest(web3.Address(in.Addr)), nil
}

func (in fungibleBalanceInput) request() (web3.FungibleBalanceRequest, error) {
	if strings.TrimSpace(in.Token) == "" || strings.TrimSpace(in.Holder) == "" {
		return web3.FungibleBalanceRequest{}, xerrors.New(xerrors.CodeInvalidArgument, "token 与 holder 不能为空")
	}
	return web3.NewFungibleBalanceRequest(web3.Address(in.Token), web3.Address(in.Holder)), nil
}

func (in sendInput) request() (web3.TransferRequest, error) {
	builder := web3.NewTransferRequest().
		From(web3.Address(in.From)).
		To(web3.Address(in.To)).
		AmountEth(in.AmountEth)
	if in.Simulate != nil {
		builder.Simulate(*in.Simulate)
	}
	if in.ForkBlock != nil {
		builder.ForkBlock(*in.ForkBlock)
	}
	return builder.Build()
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	var in balanceInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := in.request()
	if err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.service.Balance(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance})
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	var in codeInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := in.request()
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.service.Code(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFungibleBalance(w http.ResponseWriter, r *http.Request) {
	var in fungibleBalanceInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := in.request()
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := s.service.FungibleBalance(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var in sendInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := in.request()
	if err != nil {
		s.writeError(w, err)
		return
	}
	sub, err := s.service.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendOutput{
		TransferID: sub.ID,
		TxHash:     sub.Result.Hash,
		GasUsed:    sub.Result.GasUsed,
		Status:     sub.Result.Status,
		Success:    sub.Result.Succeeded(),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var in executeInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := executeRequest(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Kind() == web3.KindTransfer && s.auth.Enabled() {
		if err := auth.SubjectFromContext(r.Context()).Authorize(auth.PermissionSend); err != nil {
			s.writeError(w, err)
			return
		}
	}
	resp, err := s.service.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// executeRequest 按工具名解析参数并构造请求。
func executeRequest(in executeInput) (web3.Request, error) {
	params := in.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	invalid := func(err error) error {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "参数解析失败")
	}
	switch web3.Kind(strings.TrimSpace(in.Tool)) {
	case web3.KindBalance:
		var p balanceInput
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalid(err)
		}
		req, err := p.request()
		if err != nil {
			return nil, err
		}
		return req, nil
	case web3.KindCode:
		var p codeInput
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalid(err)
		}
		req, err := p.request()
		if err != nil {
			return nil, err
		}
		return req, nil
	case web3.KindFungibleBalance:
		var p fungibleBalanceInput
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalid(err)
		}
		req, err := p.request()
		if err != nil {
			return nil, err
		}
		return req, nil
	case web3.KindTransfer:
		var p sendInput
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalid(err)
		}
		req, err := p.request()
		if err != nil {
			return nil, err
		}
		return req, nil
	}
	return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知工具: "+in.Tool)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var opts []journal.ListOption
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为正整数"))
			return
		}
		opts = append(opts, journal.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "offset 必须为非负整数"))
			return
		}
		opts = append(opts, journal.WithOffset(offset))
	}
	if raw := query.Get("state"); raw != "" {
		var states []journal.State
		for _, part := range strings.Split(raw, ",") {
			state, ok := journal.ParseState(part)
			if !ok {
				s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "未知状态: "+part))
				return
			}
			states = append(states, state)
		}
		opts = append(opts, journal.WithStates(states...))
	}
	if raw := query.Get("from"); raw != "" {
		opts = append(opts, journal.WithSender(raw))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, journal.WithSortOrder(journal.SortByCreatedAsc))
	}

	entries, err := s.service.Transfers(r.Context(), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": entries})
}

func (s *Server) handleTransferDetail(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.TransferByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.service.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  errorBody{Code: string(xerrors.CodeOf(err)), Message: err.Error(), Retryable: xerrors.RetryableError(err)},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "chain": snapshot})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return false
	}
	return true
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败", slog.String("code", string(code)), slog.Any("error", err))
	}
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: string(code), Message: err.Error(), Retryable: xerrors.RetryableError(err)},
	})
}

// statusOf 将错误码映射为 HTTP 状态码。
func statusOf(code xerrors.Code) int {
	switch code {
	case web3.CodeAddressFormat, ethereum.CodeAmountParse, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, journal.CodeTransferNotFound:
		return http.StatusNotFound
	case ethereum.CodeChainIDMismatch, xerrors.CodeConflict, journal.CodeTransferFinalized:
		return http.StatusConflict
	case ethereum.CodeGasCapExceeded, ethereum.CodeNameUnresolved:
		return http.StatusUnprocessableEntity
	case ethereum.CodeMissingLocalKey, auth.CodePermissionDenied:
		return http.StatusForbidden
	case auth.CodeUnauthenticated:
		return http.StatusUnauthorized
	case ethereum.CodeProvider:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// route 组合认证与指标中间件。
func (s *Server) route(name string, fn http.HandlerFunc, perms ...string) http.Handler {
	return s.instrument(name, s.auth.Middleware(name, perms...)(fn).ServeHTTP)
}

// instrument 记录每个请求的状态码与耗时。
func (s *Server) instrument(name string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		s.metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
