// Package wallet holds the fixed set of local signing keys the adapter may
// use to broadcast transfers.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sort"
	"strings"

	"OpenMCP-EVM/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// devKeys are the first five accounts of the standard local development
// mnemonic used by Anvil and Hardhat.
var devKeys = []string{
	"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
	"0x7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6",
	"0x47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a",
}

// DevKeys returns the hex private keys of the local development accounts 0-4.
func DevKeys() []string {
	out := make([]string, len(devKeys))
	copy(out, devKeys)
	return out
}

// Registry maps normalized addresses to signing keys. It is built once and
// never mutated, so concurrent lookups need no locking.
type Registry struct {
	keys map[string]*ecdsa.PrivateKey
}

// NewRegistry derives the address of every key and indexes the key by it.
// Keys may carry a 0x prefix.
func NewRegistry(hexKeys ...string) (*Registry, error) {
	keys := make(map[string]*ecdsa.PrivateKey, len(hexKeys))
	for i, raw := range hexKeys {
		trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
		if trimmed == "" {
			continue
		}
		key, err := crypto.HexToECDSA(trimmed)
		if err != nil {
			return nil, fmt.Errorf("解析第 %d 个私钥失败: %w", i+1, err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		keys[web3.AddressFromCommon(addr).Normalized()] = key
	}
	return &Registry{keys: keys}, nil
}

// NewDevRegistry returns a registry holding the development accounts.
func NewDevRegistry() *Registry {
	reg, err := NewRegistry(devKeys...)
	if err != nil {
		panic(fmt.Sprintf("wallet: invalid built-in dev key: %v", err))
	}
	return reg
}

// FromEnv reads a comma separated key list from the named environment
// variable. An unset variable yields an empty registry.
func FromEnv(name string) (*Registry, error) {
	if strings.TrimSpace(name) == "" {
		return NewRegistry()
	}
	return NewRegistry(strings.Split(os.Getenv(name), ",")...)
}

// Merge returns a registry holding the keys of both registries.
func (r *Registry) Merge(other *Registry) *Registry {
	merged := make(map[string]*ecdsa.PrivateKey, r.Len()+other.Len())
	for _, src := range []*Registry{r, other} {
		if src == nil {
			continue
		}
		for addr, key := range src.keys {
			merged[addr] = key
		}
	}
	return &Registry{keys: merged}
}

// Lookup returns the key controlling addr, matched case-insensitively.
func (r *Registry) Lookup(addr web3.Address) (*ecdsa.PrivateKey, bool) {
	if r == nil {
		return nil, false
	}
	key, ok := r.keys[addr.Normalized()]
	return key, ok
}

// Len reports the number of keys held.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Addresses lists the checksummed addresses in the registry.
func (r *Registry) Addresses() []web3.Address {
	if r == nil {
		return nil
	}
	out := make([]web3.Address, 0, len(r.keys))
	for addr := range r.keys {
		out = append(out, web3.AddressFromCommon(common.HexToAddress(addr)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Normalized() < out[j].Normalized() })
	return out
}
