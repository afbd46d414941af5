package toolbox

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/events"
	"OpenMCP-EVM/internal/journal"
	"OpenMCP-EVM/internal/observability/alerting"
	"OpenMCP-EVM/internal/observability/metrics"
	"OpenMCP-EVM/internal/web3"
	"OpenMCP-EVM/pkg/logger"

	"github.com/google/uuid"
)

// Chain 是服务依赖的链适配器能力。
type Chain interface {
	web3.Toolbox
	Snapshot(ctx context.Context) (web3.ChainSnapshot, error)
}

// Submission 是一次转账的流水 ID 与链上结果。
type Submission struct {
	ID     string                 `json:"transfer_id"`
	Result web3.TransactionResult `json:"result"`
}

// Service 在链适配器之上补充流水、事件、串行化与指标。
type Service struct {
	chain     Chain
	journal   journal.Store
	publisher events.Publisher
	sequencer Sequencer
	metrics   *metrics.Registry
	alerts    alerting.Dispatcher
	logger    *slog.Logger
	newID     func() string
}

var _ web3.Toolbox = (*Service)(nil)

// Option 定制 Service。
type Option func(*Service)

// WithJournal 设置转账流水存储。
func WithJournal(store journal.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.journal = store
		}
	}
}

// WithPublisher 设置事件发布器。
func WithPublisher(pub events.Publisher) Option {
	return func(s *Service) {
		if pub != nil {
			s.publisher = pub
		}
	}
}

// WithSequencer 设置发送方串行器。
func WithSequencer(seq Sequencer) Option {
	return func(s *Service) {
		if seq != nil {
			s.sequencer = seq
		}
	}
}

// WithMetrics 设置指标注册表。
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Service) { s.metrics = reg }
}

// WithAlerts 设置告警分发器。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(s *Service) { s.alerts = d }
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator 替换流水 ID 生成函数。
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService 构造工具箱服务。未提供的依赖使用内存实现。
func NewService(chain Chain, opts ...Option) (*Service, error) {
	if chain == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "链适配器未初始化")
	}
	s := &Service{
		chain:     chain,
		journal:   journal.NewMemoryStore(),
		publisher: events.NopPublisher{},
		sequencer: NewMemorySequencer(),
		logger:    logger.Named("toolbox"),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Balance 查询原生币余额。
func (s *Service) Balance(ctx context.Context, req web3.BalanceRequest) (string, error) {
	start := time.Now()
	balance, err := s.chain.Balance(ctx, req)
	s.observe(ctx, string(web3.KindBalance), "", start, err)
	return balance, err
}

// Code 查询合约字节码信息。
func (s *Service) Code(ctx context.Context, req web3.CodeRequest) (web3.CodeInfo, error) {
	start := time.Now()
	info, err := s.chain.Code(ctx, req)
	s.observe(ctx, string(web3.KindCode), "", start, err)
	return info, err
}

// FungibleBalance 查询 ERC-20 余额。
func (s *Service) FungibleBalance(ctx context.Context, req web3.FungibleBalanceRequest) (string, error) {
	start := time.Now()
	balance, err := s.chain.FungibleBalance(ctx, req)
	s.observe(ctx, string(web3.KindFungibleBalance), "", start, err)
	return balance, err
}

// Transfer 实现 web3.Toolbox，丢弃流水 ID。
func (s *Service) Transfer(ctx context.Context, req web3.TransferRequest) (web3.TransactionResult, error) {
	sub, err := s.Submit(ctx, req)
	return sub.Result, err
}

// Submit 记录流水后执行转账，并在终态时发布事件。
// 链调用之后的流水或事件失败只记录日志，不影响返回结果。
func (s *Service) Submit(ctx context.Context, req web3.TransferRequest) (Submission, error) {
	start := time.Now()
	entry := &journal.Entry{
		ID:        s.newID(),
		From:      req.From().String(),
		To:        req.To().String(),
		AmountEth: req.AmountEth(),
		Simulate:  req.Simulate(),
		State:     journal.StatePending,
	}
	if block, ok := req.ForkBlock(); ok {
		entry.ForkBlock = &block
	}
	if err := s.journal.Create(ctx, entry); err != nil {
		return Submission{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录转账流水失败")
	}
	sub := Submission{ID: entry.ID}

	log := s.logger.With(slog.String("transfer_id", entry.ID), slog.String("from", entry.From))
	if entry.ForkBlock != nil {
		log.Info("fork block requested; executing against latest state", slog.Uint64("fork_block", *entry.ForkBlock))
	}

	if !req.Simulate() {
		release, err := s.sequencer.Acquire(ctx, req.From().Normalized())
		if err != nil {
			s.finish(ctx, entry, web3.TransactionResult{}, err)
			s.observe(ctx, string(web3.KindTransfer), entry.ID, start, err)
			return sub, err
		}
		defer release()
	}

	result, err := s.chain.Transfer(ctx, req)
	sub.Result = result
	s.finish(ctx, entry, result, err)
	s.observe(ctx, string(web3.KindTransfer), entry.ID, start, err)
	return sub, err
}

// finish journals the terminal state, publishes the event and writes the
// audit record. It never fails the caller.
func (s *Service) finish(ctx context.Context, entry *journal.Entry, result web3.TransactionResult, err error) {
	ctx = context.WithoutCancel(ctx)
	evt := events.Event{
		ID:         s.newID(),
		TransferID: entry.ID,
		From:       entry.From,
		To:         entry.To,
		AmountEth:  entry.AmountEth,
		Simulate:   entry.Simulate,
		TxHash:     result.Hash,
		GasUsed:    result.GasUsed,
		Status:     result.Status,
		OccurredAt: time.Now().UTC(),
	}

	var journalErr error
	if err != nil {
		failure := journal.Failure{
			Code:    xerrors.CodeOf(err),
			Stage:   xerrors.MetadataOf(err)["stage"],
			Message: err.Error(),
		}
		evt.Type = events.TransferFailed
		evt.ErrorCode = string(failure.Code)
		evt.Error = failure.Message
		journalErr = s.journal.Fail(ctx, entry.ID, failure)
	} else {
		state := stateOf(entry.Simulate, result)
		evt.Type = eventTypeOf(state)
		journalErr = s.journal.Complete(ctx, entry.ID, journal.Outcome{
			State:   state,
			TxHash:  result.Hash,
			GasUsed: result.GasUsed,
			Status:  result.Status,
		})
	}
	if journalErr != nil {
		s.logger.Error("更新转账流水失败", slog.String("transfer_id", entry.ID), slog.Any("error", journalErr))
	}
	if pubErr := s.publisher.Publish(ctx, evt); pubErr != nil {
		s.logger.Warn("发布转账事件失败", slog.String("transfer_id", entry.ID), slog.String("type", string(evt.Type)), slog.Any("error", pubErr))
	}

	attrs := []any{
		slog.String("transfer_id", entry.ID),
		slog.String("from", entry.From),
		slog.String("to", entry.To),
		slog.String("amount_eth", entry.AmountEth),
		slog.Bool("simulate", entry.Simulate),
	}
	if result.Hash != "" {
		attrs = append(attrs, slog.String("tx_hash", result.Hash))
	}
	if result.GasUsed != nil {
		attrs = append(attrs, slog.Uint64("gas_used", *result.GasUsed))
	}
	if err != nil {
		attrs = append(attrs, slog.String("code", string(xerrors.CodeOf(err))), slog.Any("error", err))
		logger.Audit().Warn("transfer failed", attrs...)
		return
	}
	logger.Audit().Info("transfer "+strings.TrimPrefix(string(evt.Type), "transfer."), attrs...)
}

func (s *Service) observe(ctx context.Context, operation, transferID string, start time.Time, err error) {
	s.metrics.ObserveChainOperation(operation, err, time.Since(start))
	if err == nil || s.alerts == nil || !xerrors.ShouldAlert(err) {
		return
	}
	if alertErr := s.alerts.Notify(context.WithoutCancel(ctx), alerting.FromError(operation, transferID, err)); alertErr != nil {
		s.logger.Warn("发送告警失败", slog.Any("error", alertErr))
	}
}

func stateOf(simulate bool, result web3.TransactionResult) journal.State {
	switch {
	case simulate:
		return journal.StateSimulated
	case result.Confirmed():
		return journal.StateConfirmed
	default:
		return journal.StateUnconfirmed
	}
}

func eventTypeOf(state journal.State) events.Type {
	switch state {
	case journal.StateSimulated:
		return events.TransferSimulated
	case journal.StateConfirmed:
		return events.TransferConfirmed
	case journal.StateUnconfirmed:
		return events.TransferUnconfirmed
	}
	return events.TransferFailed
}

// Execute 根据请求类型分派到对应操作。
func (s *Service) Execute(ctx context.Context, req web3.Request) (web3.Response, error) {
	switch r := req.(type) {
	case web3.BalanceRequest:
		balance, err := s.Balance(ctx, r)
		return web3.Response{Kind: r.Kind(), Balance: balance}, err
	case web3.CodeRequest:
		info, err := s.Code(ctx, r)
		if err != nil {
			return web3.Response{Kind: r.Kind()}, err
		}
		return web3.Response{Kind: r.Kind(), Code: &info}, nil
	case web3.FungibleBalanceRequest:
		balance, err := s.FungibleBalance(ctx, r)
		return web3.Response{Kind: r.Kind(), Balance: balance}, err
	case web3.TransferRequest:
		result, err := s.Transfer(ctx, r)
		if err != nil {
			return web3.Response{Kind: r.Kind()}, err
		}
		return web3.Response{Kind: r.Kind(), Transaction: &result}, nil
	case nil:
		return web3.Response{}, xerrors.New(xerrors.CodeInvalidArgument, "请求不能为空")
	}
	return web3.Response{}, xerrors.New(xerrors.CodeInvalidArgument, "不支持的请求类型: "+string(req.Kind()))
}

// Transfers 返回符合过滤条件的转账流水。
func (s *Service) Transfers(ctx context.Context, opts ...journal.ListOption) ([]*journal.Entry, error) {
	return s.journal.List(ctx, journal.NewListOptions(opts...))
}

// TransferByID 返回单条转账流水。
func (s *Service) TransferByID(ctx context.Context, id string) (*journal.Entry, error) {
	if strings.TrimSpace(id) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "流水 ID 不能为空")
	}
	return s.journal.Get(ctx, id)
}

// Snapshot 返回当前链的状态摘要。
func (s *Service) Snapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	return s.chain.Snapshot(ctx)
}
