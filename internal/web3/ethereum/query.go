package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"OpenMCP-EVM/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
)

// Balance returns the latest native balance in wei as a decimal string.
// Names are resolved first.
func (a *Adapter) Balance(ctx context.Context, req web3.BalanceRequest) (string, error) {
	addr, err := a.Resolve(ctx, req.Who())
	if err != nil {
		return "", err
	}
	parsed, err := addr.Parse()
	if err != nil {
		return "", err
	}
	balance, err := a.node.BalanceAt(ctx, parsed, nil)
	if err != nil {
		return "", providerError("eth_getBalance", err)
	}
	return balance.String(), nil
}

// Code reports whether bytecode is deployed at the address and its length.
func (a *Adapter) Code(ctx context.Context, req web3.CodeRequest) (web3.CodeInfo, error) {
	parsed, err := req.Address().Parse()
	if err != nil {
		return web3.CodeInfo{}, err
	}
	code, err := a.node.CodeAt(ctx, parsed, nil)
	if err != nil {
		return web3.CodeInfo{}, providerError("eth_getCode", err)
	}
	return web3.CodeInfo{Deployed: len(code) > 0, BytecodeLen: uint64(len(code))}, nil
}

// FungibleBalance calls balanceOf(holder) on the token contract and returns
// the raw token units as a decimal string. Both addresses are validated
// before any node call.
func (a *Adapter) FungibleBalance(ctx context.Context, req web3.FungibleBalanceRequest) (string, error) {
	token, err := req.Token().Parse()
	if err != nil {
		return "", err
	}
	holder, err := req.Holder().Parse()
	if err != nil {
		return "", err
	}

	data, err := fungibleTokenABI.Pack("balanceOf", holder)
	if err != nil {
		return "", fmt.Errorf("编码 balanceOf 调用失败: %w", err)
	}
	out, err := a.node.CallContract(ctx, gethcore.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return "", providerError("eth_call:balanceOf", err)
	}
	values, err := fungibleTokenABI.Unpack("balanceOf", out)
	if err != nil {
		return "", providerError("eth_call:balanceOf", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return "", providerError("eth_call:balanceOf", fmt.Errorf("unexpected return type %T", values[0]))
	}
	return amount.String(), nil
}
