package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"OpenMCP-EVM/internal/web3"
	"OpenMCP-EVM/internal/web3/wallet"
	"OpenMCP-EVM/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const (
	// DefaultRPCURL points at a local development node.
	DefaultRPCURL = "http://127.0.0.1:8545"
	// DefaultGasCap bounds the gas a single transfer may be estimated at.
	DefaultGasCap uint64 = 30_000_000
	// DefaultReceiptPollInterval is the delay between receipt lookups.
	DefaultReceiptPollInterval = time.Second
	// DefaultReceiptTimeout bounds how long a broadcast waits for inclusion.
	DefaultReceiptTimeout = 2 * time.Minute
)

// Node is the subset of the JSON-RPC surface the adapter depends on. Both
// *ethclient.Client and the go-ethereum simulated backend client satisfy it.
type Node interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

var (
	_ Node         = (*ethclient.Client)(nil)
	_ web3.Toolbox = (*Adapter)(nil)
)

// Config describes how to dial an EVM node.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// Adapter executes toolbox requests against one EVM node. It holds no mutable
// state after construction; WithExpectedChainID and WithGasCap return copies.
type Adapter struct {
	name            string
	notes           string
	node            Node
	closer          func()
	gasCap          uint64
	expectedChainID *big.Int
	wallets         *wallet.Registry
	nameRegistry    common.Address
	receiptPoll     time.Duration
	receiptTimeout  time.Duration
	logger          *slog.Logger
}

// Option customises an Adapter at construction.
type Option func(*Adapter)

// WithWallets installs the signing keys used for broadcasts.
func WithWallets(reg *wallet.Registry) Option {
	return func(a *Adapter) {
		if reg != nil {
			a.wallets = reg
		}
	}
}

// WithNameRegistry overrides the ENS registry address.
func WithNameRegistry(addr common.Address) Option {
	return func(a *Adapter) {
		if addr != (common.Address{}) {
			a.nameRegistry = addr
		}
	}
}

// WithReceiptPolling sets the receipt lookup interval and the overall wait.
func WithReceiptPolling(interval, timeout time.Duration) Option {
	return func(a *Adapter) {
		if interval > 0 {
			a.receiptPoll = interval
		}
		if timeout > 0 {
			a.receiptTimeout = timeout
		}
	}
}

// WithLogger sets the logger used for stage transitions.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLabel attaches a chain name and free-form notes reported by Snapshot.
func WithLabel(name, notes string) Option {
	return func(a *Adapter) {
		a.name = name
		a.notes = notes
	}
}

// New wraps an already connected node.
func New(node Node, opts ...Option) *Adapter {
	a := &Adapter{
		node:           node,
		gasCap:         DefaultGasCap,
		wallets:        &wallet.Registry{},
		nameRegistry:   DefaultNameRegistry,
		receiptPoll:    DefaultReceiptPollInterval,
		receiptTimeout: DefaultReceiptTimeout,
		logger:         logger.Named("ethereum"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Dial connects to the configured RPC endpoint and returns an adapter that
// owns the connection.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Adapter, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	opts = append([]Option{WithLabel(cfg.Name, cfg.Notes)}, opts...)
	a := New(eth, opts...)
	a.closer = eth.Close
	return a, nil
}

// WithExpectedChainID returns a copy that refuses transfers on any other
// chain.
func (a *Adapter) WithExpectedChainID(id uint64) *Adapter {
	clone := *a
	clone.expectedChainID = new(big.Int).SetUint64(id)
	return &clone
}

// WithGasCap returns a copy with a different gas ceiling.
func (a *Adapter) WithGasCap(limit uint64) *Adapter {
	clone := *a
	clone.gasCap = limit
	return &clone
}

// GasCap reports the configured ceiling.
func (a *Adapter) GasCap() uint64 { return a.gasCap }

// ExpectedChainID reports the pinned chain id, if any.
func (a *Adapter) ExpectedChainID() (uint64, bool) {
	if a.expectedChainID == nil {
		return 0, false
	}
	return a.expectedChainID.Uint64(), true
}

// Close releases the connection when the adapter was created by Dial.
func (a *Adapter) Close() {
	if a != nil && a.closer != nil {
		a.closer()
	}
}

// Snapshot reports the live chain id and head block.
func (a *Adapter) Snapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if a == nil || a.node == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊适配器")
	}
	chainID, err := a.node.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, providerError("eth_chainId", err)
	}
	blockNumber, err := a.node.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, providerError("eth_blockNumber", err)
	}
	return web3.ChainSnapshot{
		Name:        a.name,
		ChainID:     chainID.Uint64(),
		BlockNumber: blockNumber,
		Notes:       a.notes,
	}, nil
}
