package journal

import (
	"context"
	"strings"

	xerrors "OpenMCP-EVM/internal/errors"
)

// State 表示一次转账在流水中的状态。
type State string

const (
	StatePending     State = "pending"
	StateSimulated   State = "simulated"
	StateConfirmed   State = "confirmed"
	StateUnconfirmed State = "unconfirmed"
	StateFailed      State = "failed"
)

// IsValidState 判断状态是否受支持。
func IsValidState(s State) bool {
	switch s {
	case StatePending, StateSimulated, StateConfirmed, StateUnconfirmed, StateFailed:
		return true
	}
	return false
}

// ParseState 将外部输入转换为状态值。
func ParseState(raw string) (State, bool) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	return s, IsValidState(s)
}

// Entry 记录一次转账请求及其最终结果。
type Entry struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	AmountEth string  `json:"amount_eth"`
	Simulate  bool    `json:"simulate"`
	ForkBlock *uint64 `json:"fork_block,omitempty"`
	State     State   `json:"state"`
	TxHash    string  `json:"tx_hash,omitempty"`
	GasUsed   *uint64 `json:"gas_used,omitempty"`
	Status    *bool   `json:"status,omitempty"`
	ErrorCode string  `json:"error_code,omitempty"`
	Error     string  `json:"error,omitempty"`
	Stage     string  `json:"stage,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

// Outcome 描述成功结束的转账结果。
type Outcome struct {
	State   State
	TxHash  string
	GasUsed *uint64
	Status  *bool
}

// Failure 描述失败的转账。
type Failure struct {
	Code    xerrors.Code
	Stage   string
	Message string
}

// Store 抽象了转账流水的持久化接口。流水只能从 pending 迁移到终态一次。
type Store interface {
	Create(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	Complete(ctx context.Context, id string, outcome Outcome) error
	Fail(ctx context.Context, id string, failure Failure) error
	List(ctx context.Context, opts ListOptions) ([]*Entry, error)
	Close() error
}

const (
	CodeTransferNotFound  xerrors.Code = "TRANSFER_NOT_FOUND"
	CodeTransferFinalized xerrors.Code = "TRANSFER_FINALIZED"
)

var (
	// ErrNotFound 表示指定的转账流水不存在。
	ErrNotFound = xerrors.New(CodeTransferNotFound, "transfer not found")
	// ErrFinalized 表示流水已处于终态，不能再次更新。
	ErrFinalized = xerrors.New(CodeTransferFinalized, "transfer already finalized", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrConflict 表示流水 ID 已存在。
	ErrConflict = xerrors.New(xerrors.CodeConflict, "transfer already exists")
)

func init() {
	xerrors.Register(CodeTransferNotFound, xerrors.Attributes{
		Message:  "transfer not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTransferFinalized, xerrors.Attributes{
		Message:  "transfer already finalized",
		Severity: xerrors.SeverityWarning,
	})
}

// Validate 检查新流水的必填字段。
func (e *Entry) Validate() error {
	if e == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水不能为空")
	}
	if strings.TrimSpace(e.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水 ID 不能为空")
	}
	return nil
}

// Validate 检查结果状态是否为成功终态。
func (o Outcome) Validate() error {
	switch o.State {
	case StateSimulated, StateConfirmed, StateUnconfirmed:
		return nil
	}
	return xerrors.New(xerrors.CodeInvalidArgument, "无效的完成状态: "+string(o.State))
}

// Clone 返回流水的深拷贝。
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.ForkBlock = cloneUint64(e.ForkBlock)
	clone.GasUsed = cloneUint64(e.GasUsed)
	if e.Status != nil {
		status := *e.Status
		clone.Status = &status
	}
	return &clone
}

func cloneUint64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
