package ethereum

import (
	"context"
	"fmt"
	"strings"

	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/net/idna"
)

// DefaultNameRegistry is the ENS registry deployed on mainnet and most public
// testnets.
var DefaultNameRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

var nameProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// NormalizeName lowercases and IDNA-maps a name for hashing.
func NormalizeName(name web3.Name) (string, error) {
	trimmed := strings.TrimSpace(name.String())
	if trimmed == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "名称不能为空")
	}
	normalized, err := nameProfile.ToUnicode(trimmed)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "名称格式错误", xerrors.WithMetadata("name", trimmed))
	}
	return normalized, nil
}

// Namehash computes the recursive keccak node hash of a normalized name.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label)
	}
	return node
}

// Resolve turns an address or name into a checksummed address. Addresses are
// only parsed; names are looked up through the registry and the resolver it
// points to. Both the resolver and the address record must be non-zero.
func (a *Adapter) Resolve(ctx context.Context, who web3.AddressOrName) (web3.Address, error) {
	if addr, ok := who.Address(); ok {
		parsed, err := addr.Parse()
		if err != nil {
			return "", err
		}
		return web3.AddressFromCommon(parsed), nil
	}

	name, _ := who.Name()
	normalized, err := NormalizeName(name)
	if err != nil {
		return "", err
	}
	node := Namehash(normalized)

	resolver, err := a.callAddress(ctx, nameRegistryABI, a.nameRegistry, "resolver", node)
	if err != nil {
		return "", err
	}
	if resolver == (common.Address{}) {
		return "", unresolvedName(name, "no resolver set")
	}

	resolved, err := a.callAddress(ctx, addrResolverABI, resolver, "addr", node)
	if err != nil {
		return "", err
	}
	if resolved == (common.Address{}) {
		return "", unresolvedName(name, "resolver returned the zero address")
	}

	a.logger.Debug("name resolved", "name", normalized, "address", resolved.Hex())
	return web3.AddressFromCommon(resolved), nil
}

// callAddress invokes a single-argument bytes32 view returning an address on
// either the registry or a resolver.
func (a *Adapter) callAddress(ctx context.Context, contractABI abi.ABI, contract common.Address, method string, node common.Hash) (common.Address, error) {
	data, err := contractABI.Pack(method, [32]byte(node))
	if err != nil {
		return common.Address{}, fmt.Errorf("编码 %s 调用失败: %w", method, err)
	}
	out, err := a.node.CallContract(ctx, gethcore.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return common.Address{}, providerError("eth_call:"+method, err)
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, providerError("eth_call:"+method, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, providerError("eth_call:"+method, fmt.Errorf("unexpected return type %T", values[0]))
	}
	return addr, nil
}
