package ethereum

import (
	"context"

	gethcore "github.com/ethereum/go-ethereum"
)

// checkChainID is a no-op unless the adapter was pinned to a chain.
func (a *Adapter) checkChainID(ctx context.Context) error {
	if a.expectedChainID == nil {
		return nil
	}
	got, err := a.node.ChainID(ctx)
	if err != nil {
		return providerError("eth_chainId", err)
	}
	if got.Cmp(a.expectedChainID) != 0 {
		return chainIDMismatch(got, a.expectedChainID)
	}
	return nil
}

// estimateGas asks the node for an estimate and enforces the cap. An estimate
// equal to the cap is accepted.
func (a *Adapter) estimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error) {
	estimate, err := a.node.EstimateGas(ctx, msg)
	if err != nil {
		return 0, providerError("eth_estimateGas", err)
	}
	if estimate > a.gasCap {
		return 0, gasCapExceeded(estimate, a.gasCap)
	}
	return estimate, nil
}
