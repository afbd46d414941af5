package ethereum

import (
	"fmt"
	"math/big"

	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/web3"
)

const (
	CodeChainIDMismatch xerrors.Code = "CHAIN_ID_MISMATCH"
	CodeGasCapExceeded  xerrors.Code = "GAS_CAP_EXCEEDED"
	CodeMissingLocalKey xerrors.Code = "MISSING_LOCAL_KEY"
	CodeAmountParse     xerrors.Code = "AMOUNT_PARSE"
	CodeNameUnresolved  xerrors.Code = "NAME_UNRESOLVED"
	CodeProvider        xerrors.Code = "PROVIDER_FAILURE"
)

func init() {
	xerrors.Register(CodeChainIDMismatch, xerrors.Attributes{
		Message:  "connected to an unexpected chain",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeGasCapExceeded, xerrors.Attributes{
		Message:  "gas estimate exceeds cap",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeMissingLocalKey, xerrors.Attributes{
		Message:  "no local key for sender",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeAmountParse, xerrors.Attributes{
		Message:  "invalid ether amount",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNameUnresolved, xerrors.Attributes{
		Message:  "name does not resolve",
		Severity: xerrors.SeverityInfo,
	})
	// Retryable is advice to callers; the adapter never retries by itself.
	xerrors.Register(CodeProvider, xerrors.Attributes{
		Message:   "node request failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// ChainIDMismatchError is returned when the node reports a chain other than
// the one the adapter was pinned to.
type ChainIDMismatchError struct {
	Got      *big.Int
	Expected *big.Int
}

func (e *ChainIDMismatchError) Error() string {
	return fmt.Sprintf("unexpected chain id: got %s expected %s", e.Got, e.Expected)
}

// GasCapExceededError is returned when a transfer would need more gas than
// the configured ceiling.
type GasCapExceededError struct {
	Estimated uint64
	Cap       uint64
}

func (e *GasCapExceededError) Error() string {
	return fmt.Sprintf("estimated gas %d exceeds cap %d", e.Estimated, e.Cap)
}

// MissingLocalKeyError is returned when a broadcast is requested for a sender
// the wallet registry holds no key for.
type MissingLocalKeyError struct {
	Address web3.Address
}

func (e *MissingLocalKeyError) Error() string {
	return fmt.Sprintf("no local key for from address %s", e.Address)
}

// AmountParseError reports an ether amount that is not a valid decimal.
type AmountParseError struct {
	Input  string
	Reason string
}

func (e *AmountParseError) Error() string {
	return fmt.Sprintf("invalid ether amount %q: %s", e.Input, e.Reason)
}

// UnresolvedNameError reports a name with no resolver or no address record.
type UnresolvedNameError struct {
	Name   web3.Name
	Reason string
}

func (e *UnresolvedNameError) Error() string {
	return fmt.Sprintf("name %s not resolvable: %s", e.Name, e.Reason)
}

func chainIDMismatch(got, expected *big.Int) *xerrors.Error {
	return xerrors.Wrap(CodeChainIDMismatch,
		&ChainIDMismatchError{Got: new(big.Int).Set(got), Expected: new(big.Int).Set(expected)},
		"链 ID 不匹配",
		xerrors.WithMetadata("got", got.String()),
		xerrors.WithMetadata("expected", expected.String()))
}

func gasCapExceeded(estimated, limit uint64) *xerrors.Error {
	return xerrors.Wrap(CodeGasCapExceeded, &GasCapExceededError{Estimated: estimated, Cap: limit}, "预估 gas 超过上限")
}

func missingLocalKey(addr web3.Address) *xerrors.Error {
	return xerrors.Wrap(CodeMissingLocalKey, &MissingLocalKeyError{Address: addr}, "发送方没有本地私钥",
		xerrors.WithMetadata("address", addr.String()))
}

func amountParse(input, reason string) *xerrors.Error {
	return xerrors.Wrap(CodeAmountParse, &AmountParseError{Input: input, Reason: reason}, "金额格式错误")
}

func unresolvedName(name web3.Name, reason string) *xerrors.Error {
	return xerrors.Wrap(CodeNameUnresolved, &UnresolvedNameError{Name: name, Reason: reason}, "名称解析失败",
		xerrors.WithMetadata("name", name.String()))
}

// providerError keeps the node error as cause so errors.Is still sees
// context cancellation and ethereum.NotFound.
func providerError(method string, err error) *xerrors.Error {
	return xerrors.Wrap(CodeProvider, err, "节点调用失败", xerrors.WithMetadata("method", method))
}
