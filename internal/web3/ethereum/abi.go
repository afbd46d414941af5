package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	nameRegistryABIJSON  = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	addrResolverABIJSON  = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	fungibleTokenABIJSON = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	nameRegistryABI  = mustParseABI(nameRegistryABIJSON)
	addrResolverABI  = mustParseABI(addrResolverABIJSON)
	fungibleTokenABI = mustParseABI(fungibleTokenABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ethereum: invalid built-in ABI: " + err.Error())
	}
	return parsed
}
