package ethereum

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// waitReceipt polls for the receipt until it appears, the receipt timeout
// elapses or ctx ends. It returns nil when no receipt was observed; the
// transaction has already been broadcast so the caller still reports the hash.
func (a *Adapter) waitReceipt(ctx context.Context, hash common.Hash) *coretypes.Receipt {
	waitCtx, cancel := context.WithTimeout(ctx, a.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(a.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := a.node.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt
		case err != nil && !errors.Is(err, gethcore.NotFound) && waitCtx.Err() == nil:
			a.logger.Warn("receipt lookup failed", slog.String("tx_hash", hash.Hex()), slog.Any("error", err))
		}

		select {
		case <-waitCtx.Done():
			a.logger.Info("receipt not observed", slog.String("tx_hash", hash.Hex()), slog.Any("reason", waitCtx.Err()))
			return nil
		case <-ticker.C:
		}
	}
}
