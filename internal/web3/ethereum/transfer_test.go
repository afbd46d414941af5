package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/web3"
	"OpenMCP-EVM/internal/web3/wallet"
	"OpenMCP-EVM/pkg/logger"

	coretypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	devSender    web3.Address = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	devRecipient web3.Address = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	strangerAddr web3.Address = "0x000000000000000000000000000000000000dEaD"
)

func buildTransfer(t *testing.T, from, to web3.Address, amount string, simulate bool) web3.TransferRequest {
	t.Helper()
	req, err := web3.NewTransferRequest().From(from).To(to).AmountEth(amount).Simulate(simulate).Build()
	if err != nil {
		t.Fatalf("build transfer: %v", err)
	}
	return req
}

func newTestAdapter(node Node, opts ...Option) *Adapter {
	base := []Option{WithLogger(logger.Discard()), WithReceiptPolling(5*time.Millisecond, 200*time.Millisecond)}
	return New(node, append(base, opts...)...)
}

func TestTransferSimulationSkipsWallet(t *testing.T) {
	fake := newFakeNode()
	// empty registry: a simulation must succeed without any key
	adapter := newTestAdapter(fake)

	result, err := adapter.Transfer(context.Background(), buildTransfer(t, strangerAddr, devRecipient, "0.1", true))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Hash != "" || result.Status != nil {
		t.Fatalf("simulation must return empty hash and nil status: %+v", result)
	}
	if result.GasUsed == nil || *result.GasUsed != 21000 {
		t.Fatalf("unexpected gas %v", result.GasUsed)
	}
	if fake.count("eth_estimateGas") != 1 || fake.count("eth_call") != 1 {
		t.Fatalf("expected one estimate and one dry run: %+v", fake.calls)
	}
	if fake.count("eth_sendRawTransaction") != 0 || fake.count("eth_chainId") != 0 {
		t.Fatalf("simulation must not sign or submit: %+v", fake.calls)
	}
}

func TestTransferGasCapExceeded(t *testing.T) {
	fake := newFakeNode()
	fake.estimate = 50_000
	adapter := newTestAdapter(fake, WithWallets(wallet.NewDevRegistry())).WithGasCap(21_000)

	_, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, devRecipient, "1", false))
	var capErr *GasCapExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected GasCapExceededError, got %v", err)
	}
	if capErr.Estimated != 50_000 || capErr.Cap != 21_000 {
		t.Fatalf("unexpected cap error %+v", capErr)
	}
	if fake.count("eth_call") != 0 || fake.count("eth_sendRawTransaction") != 0 {
		t.Fatalf("nothing may run after the cap check: %+v", fake.calls)
	}
	if xerrors.MetadataOf(err)["stage"] != StageGasEstimated.String() {
		t.Fatalf("unexpected stage metadata %+v", xerrors.MetadataOf(err))
	}
}

func TestTransferGasCapBoundaryIsInclusive(t *testing.T) {
	fake := newFakeNode()
	adapter := newTestAdapter(fake).WithGasCap(21_000)

	if _, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, devRecipient, "1", true)); err != nil {
		t.Fatalf("estimate equal to cap should pass: %v", err)
	}
}

func TestTransferChainIDMismatch(t *testing.T) {
	fake := newFakeNode()
	fake.chainID = big.NewInt(1)
	adapter := newTestAdapter(fake).WithExpectedChainID(31337)

	_, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, devRecipient, "1", true))
	var mismatch *ChainIDMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChainIDMismatchError, got %v", err)
	}
	if mismatch.Got.Uint64() != 1 || mismatch.Expected.Uint64() != 31337 {
		t.Fatalf("unexpected mismatch %+v", mismatch)
	}
	if fake.count("eth_estimateGas") != 0 {
		t.Fatalf("estimation must not run on the wrong chain")
	}
}

func TestTransferMissingLocalKeyAfterSimulation(t *testing.T) {
	fake := newFakeNode()
	adapter := newTestAdapter(fake, WithWallets(wallet.NewDevRegistry()))

	_, err := adapter.Transfer(context.Background(), buildTransfer(t, strangerAddr, devRecipient, "0.5", false))
	var missing *MissingLocalKeyError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingLocalKeyError, got %v", err)
	}
	if missing.Address != strangerAddr {
		t.Fatalf("unexpected address %s", missing.Address)
	}
	if fake.count("eth_estimateGas") != 1 || fake.count("eth_call") != 1 {
		t.Fatalf("estimate and dry run should have succeeded first: %+v", fake.calls)
	}
	if fake.count("eth_sendRawTransaction") != 0 {
		t.Fatalf("nothing may be submitted without a key")
	}
}

func TestTransferMalformedAmountFailsBeforeNetwork(t *testing.T) {
	fake := newFakeNode()
	adapter := newTestAdapter(fake).WithExpectedChainID(31337)

	_, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, devRecipient, "lots", true))
	var parseErr *AmountParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected AmountParseError, got %v", err)
	}
	if fake.total() != 0 {
		t.Fatalf("no node call may precede amount parsing: %+v", fake.calls)
	}
}

func TestTransferMalformedAddress(t *testing.T) {
	fake := newFakeNode()
	adapter := newTestAdapter(fake)

	_, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, "0xBob", "1", true))
	var formatErr *web3.AddressFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected AddressFormatError, got %v", err)
	}
	if fake.count("eth_estimateGas") != 0 {
		t.Fatalf("estimation must not run for malformed addresses")
	}
}

func TestTransferDryRunFailure(t *testing.T) {
	fake := newFakeNode()
	fake.callErr = errNodeDown
	adapter := newTestAdapter(fake, WithWallets(wallet.NewDevRegistry()))

	_, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, devRecipient, "1", false))
	if !errors.Is(err, errNodeDown) || xerrors.CodeOf(err) != CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if fake.count("eth_sendRawTransaction") != 0 {
		t.Fatalf("a failed dry run must stop the pipeline")
	}
}

func TestTransferBroadcastConfirmed(t *testing.T) {
	fake := newFakeNode()
	adapter := newTestAdapter(fake, WithWallets(wallet.NewDevRegistry()))
	fake.receipt = &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful, GasUsed: 21000}

	result, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, devRecipient, "1", false))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected one submission, got %d", len(fake.sent))
	}
	tx := fake.sent[0]
	if tx.Nonce() != 7 || tx.Gas() != 21000 || tx.Value().String() != "1000000000000000000" {
		t.Fatalf("unexpected transaction fields nonce=%d gas=%d value=%s", tx.Nonce(), tx.Gas(), tx.Value())
	}
	sender, err := coretypes.Sender(coretypes.LatestSignerForChainID(big.NewInt(31337)), tx)
	if err != nil || sender.Hex() != string(devSender) {
		t.Fatalf("unexpected signer %s %v", sender.Hex(), err)
	}
	if result.Status == nil || !*result.Status || result.GasUsed == nil || *result.GasUsed != 21000 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTransferBroadcastUnconfirmed(t *testing.T) {
	fake := newFakeNode()
	fake.estimate = 30_000
	adapter := newTestAdapter(fake, WithWallets(wallet.NewDevRegistry()))

	result, err := adapter.Transfer(context.Background(), buildTransfer(t, devSender, devRecipient, "1", false))
	if err != nil {
		t.Fatalf("missing receipt is not an error: %v", err)
	}
	if result.Hash != fake.sent[0].Hash().Hex() {
		t.Fatalf("expected submission hash, got %s", result.Hash)
	}
	if result.Status != nil || result.GasUsed == nil || *result.GasUsed != 30_000 {
		t.Fatalf("unconfirmed result should carry the estimate and nil status: %+v", result)
	}
	if fake.count("eth_getTransactionReceipt") < 2 {
		t.Fatalf("expected the receipt to be polled")
	}
}

func TestWithMethodsReturnCopies(t *testing.T) {
	base := New(newFakeNode(), WithLogger(logger.Discard()))
	capped := base.WithGasCap(100)
	pinned := capped.WithExpectedChainID(5)

	if base.GasCap() != DefaultGasCap {
		t.Fatalf("WithGasCap mutated the receiver")
	}
	if _, ok := capped.ExpectedChainID(); ok {
		t.Fatalf("WithExpectedChainID mutated the receiver")
	}
	if id, ok := pinned.ExpectedChainID(); !ok || id != 5 || pinned.GasCap() != 100 {
		t.Fatalf("unexpected pinned adapter id=%d cap=%d", id, pinned.GasCap())
	}
}

func TestStageNames(t *testing.T) {
	if StageSimulatedOnly.String() != "simulated_only" || Stage(99).String() != "unknown" {
		t.Fatalf("unexpected stage names")
	}
}
