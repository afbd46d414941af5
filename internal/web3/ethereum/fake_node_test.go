package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// fakeNode records every RPC it receives and answers from canned values.
type fakeNode struct {
	mu sync.Mutex

	chainID     *big.Int
	estimate    uint64
	estimateErr error
	callErr     error
	callFn      func(msg gethcore.CallMsg) ([]byte, error)
	balances    map[common.Address]*big.Int
	code        map[common.Address][]byte
	receipt     *coretypes.Receipt
	sendErr     error

	calls map[string]int
	sent  []*coretypes.Transaction
}

var _ Node = (*fakeNode)(nil)

func newFakeNode() *fakeNode {
	return &fakeNode{
		chainID:  big.NewInt(31337),
		estimate: 21000,
		balances: map[common.Address]*big.Int{},
		code:     map[common.Address][]byte{},
		calls:    map[string]int{},
	}
}

func (f *fakeNode) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *fakeNode) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeNode) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeNode) ChainID(context.Context) (*big.Int, error) {
	f.record("eth_chainId")
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeNode) BlockNumber(context.Context) (uint64, error) {
	f.record("eth_blockNumber")
	return 42, nil
}

func (f *fakeNode) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.record("eth_getBalance")
	if bal, ok := f.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeNode) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.record("eth_getCode")
	return f.code[account], nil
}

func (f *fakeNode) CallContract(_ context.Context, msg gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	f.record("eth_call")
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.callFn != nil {
		return f.callFn(msg)
	}
	return nil, nil
}

func (f *fakeNode) EstimateGas(context.Context, gethcore.CallMsg) (uint64, error) {
	f.record("eth_estimateGas")
	return f.estimate, f.estimateErr
}

func (f *fakeNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.record("eth_getTransactionCount")
	return 7, nil
}

func (f *fakeNode) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.record("eth_gasPrice")
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeNode) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	f.record("eth_sendRawTransaction")
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	return nil
}

func (f *fakeNode) TransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	f.record("eth_getTransactionReceipt")
	if f.receipt == nil {
		return nil, gethcore.NotFound
	}
	return f.receipt, nil
}

var errNodeDown = errors.New("connection refused")
