package provider

import (
	"context"
	"fmt"
	"strings"

	"OpenMCP-EVM/internal/config"
	"OpenMCP-EVM/internal/web3"
	"OpenMCP-EVM/internal/web3/ethereum"
	"OpenMCP-EVM/internal/web3/wallet"

	"github.com/ethereum/go-ethereum/common"
)

// Endpoint is the resolved connection target for the single active chain.
type Endpoint struct {
	Name            string
	RPCURL          string
	Notes           string
	ExpectedChainID uint64
	GasCap          uint64
	NameRegistry    common.Address
}

// Resolve merges the chain file with the flat web3 settings. Values from the
// selected chain definition override the flat ones, except rpc_url which the
// flat setting (and therefore RPC_URL) always wins.
func Resolve(cfg config.Web3Config) (Endpoint, error) {
	ep := Endpoint{
		Name:            "default",
		RPCURL:          ethereum.DefaultRPCURL,
		ExpectedChainID: cfg.ExpectedChainID,
		GasCap:          cfg.GasCap,
		NameRegistry:    ethereum.DefaultNameRegistry,
	}
	registry := cfg.NameRegistry

	if strings.TrimSpace(cfg.ChainConfig) != "" {
		defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
		if err != nil {
			return Endpoint{}, err
		}
		name, def, err := defs.Select(cfg.DefaultChain)
		if err != nil {
			return Endpoint{}, err
		}
		ep.Name = name
		ep.RPCURL = def.RPCURL
		ep.Notes = def.Description
		if def.ChainID != 0 {
			ep.ExpectedChainID = def.ChainID
		}
		if def.GasCap != 0 {
			ep.GasCap = def.GasCap
		}
		if strings.TrimSpace(def.NameRegistry) != "" {
			registry = def.NameRegistry
		}
	}

	if rpcURL := strings.TrimSpace(cfg.RPCURL); rpcURL != "" {
		ep.RPCURL = rpcURL
	}
	if ep.GasCap == 0 {
		ep.GasCap = ethereum.DefaultGasCap
	}
	if strings.TrimSpace(registry) != "" {
		addr, err := web3.Address(registry).Parse()
		if err != nil {
			return Endpoint{}, fmt.Errorf("名称注册表地址无效: %w", err)
		}
		ep.NameRegistry = addr
	}
	return ep, nil
}

// Wallets builds the signing key registry from the built-in development
// accounts and the configured key environment variable.
func Wallets(cfg config.Web3Config) (*wallet.Registry, error) {
	reg := &wallet.Registry{}
	if cfg.UseDevAccounts() {
		reg = wallet.NewDevRegistry()
	}
	if name := strings.TrimSpace(cfg.PrivateKeysEnv); name != "" {
		extra, err := wallet.FromEnv(name)
		if err != nil {
			return nil, fmt.Errorf("加载环境变量 %s 中的私钥失败: %w", name, err)
		}
		reg = reg.Merge(extra)
	}
	return reg, nil
}

// Open dials the active chain and returns a fully configured adapter.
func Open(ctx context.Context, cfg config.Web3Config, opts ...ethereum.Option) (*ethereum.Adapter, error) {
	ep, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	wallets, err := Wallets(cfg)
	if err != nil {
		return nil, err
	}

	base := []ethereum.Option{
		ethereum.WithWallets(wallets),
		ethereum.WithNameRegistry(ep.NameRegistry),
		ethereum.WithReceiptPolling(cfg.ReceiptPollInterval(), cfg.ReceiptTimeout()),
	}
	adapter, err := ethereum.Dial(ctx, ethereum.Config{
		Name:   ep.Name,
		RPCURL: ep.RPCURL,
		Notes:  ep.Notes,
	}, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("初始化链 %s 失败: %w", ep.Name, err)
	}

	adapter = adapter.WithGasCap(ep.GasCap)
	if ep.ExpectedChainID != 0 {
		adapter = adapter.WithExpectedChainID(ep.ExpectedChainID)
	}
	return adapter, nil
}
