package web3

import (
	"context"
	"strings"

	xerrors "OpenMCP-EVM/internal/errors"
)

// Kind names a toolbox operation. The values double as HTTP route and tool
// names.
type Kind string

const (
	KindBalance         Kind = "balance"
	KindCode            Kind = "code"
	KindFungibleBalance Kind = "erc20_balance_of"
	KindTransfer        Kind = "send"
)

// Request is the closed set of toolbox requests. Only the request types in
// this package implement it.
type Request interface {
	Kind() Kind
	sealed()
}

// BalanceRequest asks for the native balance of an address or name.
type BalanceRequest struct {
	who AddressOrName
}

// NewBalanceRequest builds a balance query.
func NewBalanceRequest(who AddressOrName) BalanceRequest {
	return BalanceRequest{who: who}
}

func (r BalanceRequest) Who() AddressOrName { return r.who }
func (BalanceRequest) Kind() Kind           { return KindBalance }
func (BalanceRequest) sealed()              {}

// CodeRequest asks whether bytecode is deployed at an address.
type CodeRequest struct {
	addr Address
}

// NewCodeRequest builds a code query.
func NewCodeRequest(addr Address) CodeRequest {
	return CodeRequest{addr: addr}
}

func (r CodeRequest) Address() Address { return r.addr }
func (CodeRequest) Kind() Kind         { return KindCode }
func (CodeRequest) sealed()            {}

// FungibleBalanceRequest asks a token contract for balanceOf(holder).
type FungibleBalanceRequest struct {
	token  Address
	holder Address
}

// NewFungibleBalanceRequest builds a token balance query.
func NewFungibleBalanceRequest(token, holder Address) FungibleBalanceRequest {
	return FungibleBalanceRequest{token: token, holder: holder}
}

func (r FungibleBalanceRequest) Token() Address  { return r.token }
func (r FungibleBalanceRequest) Holder() Address { return r.holder }
func (FungibleBalanceRequest) Kind() Kind        { return KindFungibleBalance }
func (FungibleBalanceRequest) sealed()           {}

// TransferRequest moves native value between two addresses. It is immutable;
// use NewTransferRequest to construct one.
type TransferRequest struct {
	from      Address
	to        Address
	amountEth string
	simulate  bool
	forkBlock *uint64
}

func (r TransferRequest) From() Address     { return r.from }
func (r TransferRequest) To() Address       { return r.to }
func (r TransferRequest) AmountEth() string { return r.amountEth }
func (r TransferRequest) Simulate() bool    { return r.simulate }
func (TransferRequest) Kind() Kind          { return KindTransfer }
func (TransferRequest) sealed()             {}

// ForkBlock returns the optional historical block pin.
func (r TransferRequest) ForkBlock() (uint64, bool) {
	if r.forkBlock == nil {
		return 0, false
	}
	return *r.forkBlock, true
}

// TransferRequestBuilder validates required fields before producing a
// TransferRequest. Simulation is on unless explicitly disabled.
type TransferRequestBuilder struct {
	from      string
	to        string
	amountEth string
	simulate  bool
	forkBlock *uint64
}

// NewTransferRequest starts a builder with simulate=true.
func NewTransferRequest() *TransferRequestBuilder {
	return &TransferRequestBuilder{simulate: true}
}

func (b *TransferRequestBuilder) From(addr Address) *TransferRequestBuilder {
	b.from = string(addr)
	return b
}

func (b *TransferRequestBuilder) To(addr Address) *TransferRequestBuilder {
	b.to = string(addr)
	return b
}

func (b *TransferRequestBuilder) AmountEth(amount string) *TransferRequestBuilder {
	b.amountEth = amount
	return b
}

func (b *TransferRequestBuilder) Simulate(simulate bool) *TransferRequestBuilder {
	b.simulate = simulate
	return b
}

func (b *TransferRequestBuilder) ForkBlock(block uint64) *TransferRequestBuilder {
	b.forkBlock = &block
	return b
}

// Build returns the request or an INVALID_ARGUMENT error naming the first
// missing field.
func (b *TransferRequestBuilder) Build() (TransferRequest, error) {
	switch {
	case strings.TrimSpace(b.from) == "":
		return TransferRequest{}, xerrors.New(xerrors.CodeInvalidArgument, "from required")
	case strings.TrimSpace(b.to) == "":
		return TransferRequest{}, xerrors.New(xerrors.CodeInvalidArgument, "to required")
	case strings.TrimSpace(b.amountEth) == "":
		return TransferRequest{}, xerrors.New(xerrors.CodeInvalidArgument, "amount_eth required")
	}
	req := TransferRequest{
		from:      Address(strings.TrimSpace(b.from)),
		to:        Address(strings.TrimSpace(b.to)),
		amountEth: strings.TrimSpace(b.amountEth),
		simulate:  b.simulate,
	}
	if b.forkBlock != nil {
		block := *b.forkBlock
		req.forkBlock = &block
	}
	return req, nil
}

// TransactionResult is the outcome of a transfer. Hash is empty for
// simulation-only runs and Status is nil whenever no receipt was observed.
type TransactionResult struct {
	Hash    string  `json:"tx_hash"`
	GasUsed *uint64 `json:"gas_used"`
	Status  *bool   `json:"status"`
}

// Simulated reports whether the transfer stopped after the dry run.
func (r TransactionResult) Simulated() bool { return r.Hash == "" }

// Confirmed reports whether a receipt was observed.
func (r TransactionResult) Confirmed() bool { return r.Status != nil }

// Succeeded reports a confirmed receipt with status 1.
func (r TransactionResult) Succeeded() bool { return r.Status != nil && *r.Status }

// CodeInfo describes the bytecode found at an address.
type CodeInfo struct {
	Deployed    bool   `json:"deployed"`
	BytecodeLen uint64 `json:"bytecode_len"`
}

// Response carries the result matching the Kind of the request that produced
// it. Only the field for that kind is meaningful.
type Response struct {
	Kind        Kind               `json:"kind"`
	Balance     string             `json:"balance,omitempty"`
	Code        *CodeInfo          `json:"code,omitempty"`
	Transaction *TransactionResult `json:"transaction,omitempty"`
}

// ChainSnapshot summarises the connected chain for health reporting.
type ChainSnapshot struct {
	Name        string `json:"name,omitempty"`
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Toolbox is the operation set exposed to callers. Balances are decimal
// strings in the smallest unit.
type Toolbox interface {
	Balance(ctx context.Context, req BalanceRequest) (string, error)
	Code(ctx context.Context, req CodeRequest) (CodeInfo, error)
	FungibleBalance(ctx context.Context, req FungibleBalanceRequest) (string, error)
	Transfer(ctx context.Context, req TransferRequest) (TransactionResult, error)
}
