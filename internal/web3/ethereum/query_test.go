package ethereum

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/web3"
	"OpenMCP-EVM/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func TestBalanceResolvesName(t *testing.T) {
	node := Namehash("alice.eth")
	fake := ensNode(t,
		map[common.Hash]common.Address{node: aliceResolver},
		map[common.Hash]common.Address{node: aliceAddress},
	)
	fake.balances[aliceAddress], _ = new(big.Int).SetString("1500000000000000000", 10)
	adapter := New(fake, WithLogger(logger.Discard()))

	got, err := adapter.Balance(context.Background(), web3.NewBalanceRequest(web3.ParseAddressOrName("alice.eth")))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got != "1500000000000000000" {
		t.Fatalf("unexpected balance %s", got)
	}
}

func TestBalanceProviderError(t *testing.T) {
	fake := &failingBalanceNode{fakeNode: newFakeNode()}
	adapter := New(fake, WithLogger(logger.Discard()))

	_, err := adapter.Balance(context.Background(), web3.NewBalanceRequest(web3.FromAddress(devSender)))
	if !errors.Is(err, errNodeDown) || xerrors.CodeOf(err) != CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
}

type failingBalanceNode struct {
	*fakeNode
}

func (f *failingBalanceNode) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return nil, errNodeDown
}

func TestCodeReportsDeployment(t *testing.T) {
	fake := newFakeNode()
	contract := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	fake.code[contract] = []byte{0x60, 0x80, 0x60, 0x40}
	adapter := New(fake, WithLogger(logger.Discard()))

	info, err := adapter.Code(context.Background(), web3.NewCodeRequest(web3.AddressFromCommon(contract)))
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if !info.Deployed || info.BytecodeLen != 4 {
		t.Fatalf("unexpected code info %+v", info)
	}

	info, err = adapter.Code(context.Background(), web3.NewCodeRequest(devSender))
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if info.Deployed || info.BytecodeLen != 0 {
		t.Fatalf("externally owned account should report no code: %+v", info)
	}
}

func TestFungibleBalance(t *testing.T) {
	token := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	method := fungibleTokenABI.Methods["balanceOf"]
	fake := newFakeNode()
	fake.callFn = func(msg gethcore.CallMsg) ([]byte, error) {
		if *msg.To != token || !bytes.Equal(msg.Data[:4], method.ID) {
			t.Fatalf("unexpected call %+v", msg)
		}
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if args[0].(common.Address).Hex() != string(devSender) {
			t.Fatalf("unexpected holder %v", args[0])
		}
		return method.Outputs.Pack(big.NewInt(2_500_000))
	}
	adapter := New(fake, WithLogger(logger.Discard()))

	got, err := adapter.FungibleBalance(context.Background(), web3.NewFungibleBalanceRequest(web3.AddressFromCommon(token), devSender))
	if err != nil {
		t.Fatalf("fungible balance: %v", err)
	}
	if got != "2500000" {
		t.Fatalf("unexpected token balance %s", got)
	}
}

func TestFungibleBalanceMalformedTokenFailsBeforeNetwork(t *testing.T) {
	fake := newFakeNode()
	adapter := New(fake, WithLogger(logger.Discard()))

	_, err := adapter.FungibleBalance(context.Background(), web3.NewFungibleBalanceRequest("0xUSDC", devSender))
	var formatErr *web3.AddressFormatError
	if !errors.As(err, &formatErr) || formatErr.Input != "0xUSDC" {
		t.Fatalf("expected AddressFormatError for the token, got %v", err)
	}
	if fake.total() != 0 {
		t.Fatalf("no node call may happen for malformed input")
	}
}

func TestSnapshot(t *testing.T) {
	adapter := New(newFakeNode(), WithLogger(logger.Discard()), WithLabel("anvil", "local"))
	snap, err := adapter.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ChainID != 31337 || snap.BlockNumber != 42 || snap.Name != "anvil" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
