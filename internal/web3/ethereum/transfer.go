package ethereum

import (
	"context"
	"log/slog"

	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// Stage is a step of the transfer pipeline. Stages are only ever entered in
// declaration order; SimulatedOnly, Confirmed and Unconfirmed are terminal.
type Stage int

const (
	StageBuilt Stage = iota
	StageIdentityChecked
	StageResolved
	StageGasEstimated
	StageSimulated
	StageSimulatedOnly
	StageSigned
	StageSubmitted
	StageConfirmed
	StageUnconfirmed
)

var stageNames = [...]string{
	StageBuilt:           "built",
	StageIdentityChecked: "identity_checked",
	StageResolved:        "resolved",
	StageGasEstimated:    "gas_estimated",
	StageSimulated:       "simulated",
	StageSimulatedOnly:   "simulated_only",
	StageSigned:          "signed",
	StageSubmitted:       "submitted",
	StageConfirmed:       "confirmed",
	StageUnconfirmed:     "unconfirmed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Transfer runs the value-transfer pipeline: amount parsing, chain identity
// check, address parsing, gas estimation against the cap and a dry-run call.
// Simulation-only requests stop there and never touch the wallet registry.
// Broadcasts are signed with the sender's local key, submitted, and waited on
// for a bounded time. A transfer without an observed receipt is returned with
// its submission hash and a nil status rather than as an error.
func (a *Adapter) Transfer(ctx context.Context, req web3.TransferRequest) (web3.TransactionResult, error) {
	log := a.logger.With(
		slog.String("from", req.From().String()),
		slog.String("to", req.To().String()),
		slog.Bool("simulate", req.Simulate()),
	)
	if block, ok := req.ForkBlock(); ok {
		log = log.With(slog.Uint64("fork_block", block))
	}
	reach := func(stage Stage, attrs ...any) {
		log.Debug("transfer stage reached", append([]any{slog.String("stage", stage.String())}, attrs...)...)
	}
	fail := func(stage Stage, err error) (web3.TransactionResult, error) {
		log.Warn("transfer aborted", slog.String("stage", stage.String()), slog.Any("error", err))
		if typed, ok := xerrors.From(err); ok {
			return web3.TransactionResult{}, typed.With(xerrors.WithMetadata("stage", stage.String()))
		}
		return web3.TransactionResult{}, err
	}

	value, err := ParseEther(req.AmountEth())
	if err != nil {
		return fail(StageBuilt, err)
	}
	reach(StageBuilt, slog.String("wei", value.String()))

	if err := a.checkChainID(ctx); err != nil {
		return fail(StageIdentityChecked, err)
	}
	reach(StageIdentityChecked)

	from, err := req.From().Parse()
	if err != nil {
		return fail(StageResolved, err)
	}
	to, err := req.To().Parse()
	if err != nil {
		return fail(StageResolved, err)
	}
	reach(StageResolved)

	msg := gethcore.CallMsg{From: from, To: &to, Value: value}
	estimate, err := a.estimateGas(ctx, msg)
	if err != nil {
		return fail(StageGasEstimated, err)
	}
	reach(StageGasEstimated, slog.Uint64("gas", estimate))

	msg.Gas = estimate
	if _, err := a.node.CallContract(ctx, msg, nil); err != nil {
		return fail(StageSimulated, providerError("eth_call", err))
	}
	reach(StageSimulated)

	if req.Simulate() {
		reach(StageSimulatedOnly)
		return web3.TransactionResult{GasUsed: &estimate}, nil
	}

	key, ok := a.wallets.Lookup(req.From())
	if !ok {
		return fail(StageSigned, missingLocalKey(req.From()))
	}
	chainID, err := a.node.ChainID(ctx)
	if err != nil {
		return fail(StageSigned, providerError("eth_chainId", err))
	}
	nonce, err := a.node.PendingNonceAt(ctx, from)
	if err != nil {
		return fail(StageSigned, providerError("eth_getTransactionCount", err))
	}
	gasPrice, err := a.node.SuggestGasPrice(ctx)
	if err != nil {
		return fail(StageSigned, providerError("eth_gasPrice", err))
	}
	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      estimate,
		To:       &to,
		Value:    value,
	})
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		return fail(StageSigned, xerrors.Wrap(xerrors.CodeUnknown, err, "签名交易失败"))
	}
	reach(StageSigned, slog.String("tx_hash", signed.Hash().Hex()), slog.Uint64("nonce", nonce))

	if err := a.node.SendTransaction(ctx, signed); err != nil {
		return fail(StageSubmitted, providerError("eth_sendRawTransaction", err))
	}
	reach(StageSubmitted)

	receipt := a.waitReceipt(ctx, signed.Hash())
	if receipt == nil {
		reach(StageUnconfirmed)
		return web3.TransactionResult{Hash: signed.Hash().Hex(), GasUsed: &estimate}, nil
	}

	gasUsed := receipt.GasUsed
	status := receipt.Status == coretypes.ReceiptStatusSuccessful
	reach(StageConfirmed, slog.Uint64("gas_used", gasUsed), slog.Bool("status", status))
	return web3.TransactionResult{Hash: receipt.TxHash.Hex(), GasUsed: &gasUsed, Status: &status}, nil
}
