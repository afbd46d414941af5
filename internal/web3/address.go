package web3

import (
	"fmt"
	"strings"

	xerrors "OpenMCP-EVM/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// CodeAddressFormat marks input that is not a well-formed account address.
const CodeAddressFormat xerrors.Code = "ADDRESS_FORMAT"

func init() {
	xerrors.Register(CodeAddressFormat, xerrors.Attributes{
		Message:  "invalid address",
		Severity: xerrors.SeverityInfo,
	})
}

// AddressFormatError reports an input string that cannot be parsed as an
// account address.
type AddressFormatError struct {
	Input  string
	Reason string
}

func (e *AddressFormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid address: %s", e.Input)
	}
	return fmt.Sprintf("invalid address: %s (%s)", e.Input, e.Reason)
}

func newAddressFormatError(input, reason string) error {
	return xerrors.Wrap(CodeAddressFormat, &AddressFormatError{Input: input, Reason: reason}, "地址格式错误",
		xerrors.WithMetadata("input", input))
}

// Address is an account identifier exactly as it was received. It is only
// validated when parsed, so malformed input surfaces as an
// AddressFormatError at the point of use.
type Address string

// AddressFromCommon converts a parsed address into its checksummed form.
func AddressFromCommon(addr common.Address) Address {
	return Address(addr.Hex())
}

// Parse validates the address and returns its 20-byte form. Input must be 40
// hex digits with an optional 0x prefix. Mixed-case input must carry a valid
// EIP-55 checksum.
func (a Address) Parse() (common.Address, error) {
	raw := strings.TrimSpace(string(a))
	if raw == "" {
		return common.Address{}, newAddressFormatError(string(a), "empty")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, newAddressFormatError(string(a), "expected 20-byte hex")
	}
	parsed := common.HexToAddress(raw)
	body := raw
	if len(body) >= 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		body = body[2:]
	}
	if isMixedCase(body) && parsed.Hex()[2:] != body {
		return common.Address{}, newAddressFormatError(string(a), "checksum mismatch")
	}
	return parsed, nil
}

// Normalized returns the lowercase 0x-prefixed form used for equality and
// registry keys. Malformed input is returned trimmed and lowercased.
func (a Address) Normalized() string {
	raw := strings.ToLower(strings.TrimSpace(string(a)))
	if !strings.HasPrefix(raw, "0x") && common.IsHexAddress(raw) {
		raw = "0x" + raw
	}
	return raw
}

// Equal compares two addresses ignoring case.
func (a Address) Equal(other Address) bool {
	return a.Normalized() == other.Normalized()
}

func (a Address) String() string { return string(a) }

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}

// Name is a human readable name that resolves to an address through the
// on-chain name registry.
type Name string

// NewName validates that the name is not blank.
func NewName(raw string) (Name, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "名称不能为空")
	}
	return Name(trimmed), nil
}

func (n Name) String() string { return string(n) }

// AddressOrName holds exactly one of an address or a name.
type AddressOrName struct {
	address Address
	name    Name
	isName  bool
}

// FromAddress wraps an address.
func FromAddress(addr Address) AddressOrName {
	return AddressOrName{address: addr}
}

// FromName wraps a name.
func FromName(name Name) AddressOrName {
	return AddressOrName{name: name, isName: true}
}

// ParseAddressOrName classifies raw input. Hex-looking input is an address,
// dotted input such as "alice.eth" is a name, and anything else is kept as an
// address so that parsing reports the format error.
func ParseAddressOrName(raw string) AddressOrName {
	trimmed := strings.TrimSpace(raw)
	if common.IsHexAddress(trimmed) {
		return FromAddress(Address(trimmed))
	}
	if strings.Contains(trimmed, ".") {
		return FromName(Name(trimmed))
	}
	return FromAddress(Address(trimmed))
}

// Address returns the wrapped address when the value holds one.
func (v AddressOrName) Address() (Address, bool) {
	return v.address, !v.isName
}

// Name returns the wrapped name when the value holds one.
func (v AddressOrName) Name() (Name, bool) {
	return v.name, v.isName
}

// IsName reports whether the value needs resolution.
func (v AddressOrName) IsName() bool { return v.isName }

func (v AddressOrName) String() string {
	if v.isName {
		return string(v.name)
	}
	return string(v.address)
}

// MarshalText encodes the value as its raw string.
func (v AddressOrName) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes using ParseAddressOrName.
func (v *AddressOrName) UnmarshalText(text []byte) error {
	*v = ParseAddressOrName(string(text))
	return nil
}
