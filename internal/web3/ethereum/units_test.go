package ethereum

import (
	"errors"
	"math/big"
	"testing"

	xerrors "OpenMCP-EVM/internal/errors"
)

func TestParseEther(t *testing.T) {
	cases := map[string]string{
		"1":                    "1000000000000000000",
		"0.1":                  "100000000000000000",
		"0":                    "0",
		".5":                   "500000000000000000",
		"2.":                   "2000000000000000000",
		" 1.25 ":               "1250000000000000000",
		"0.000000000000000001": "1",
		"123456789.123456789":  "123456789123456789000000000",
	}
	for in, want := range cases {
		got, err := ParseEther(in)
		if err != nil {
			t.Fatalf("ParseEther(%q): %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("ParseEther(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseEtherRejects(t *testing.T) {
	for _, in := range []string{"", ".", "-1", "1e18", "abc", "1.2.3", "0.0000000000000000001", "1,000", "+1"} {
		_, err := ParseEther(in)
		if err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
		var parseErr *AmountParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected AmountParseError for %q, got %v", in, err)
		}
		if xerrors.CodeOf(err) != CodeAmountParse {
			t.Fatalf("unexpected code %s", xerrors.CodeOf(err))
		}
	}
}

func TestFormatEther(t *testing.T) {
	cases := map[string]string{
		"1000000000000000000":  "1",
		"100000000000000000":   "0.1",
		"1":                    "0.000000000000000001",
		"0":                    "0",
		"-1500000000000000000": "-1.5",
	}
	for in, want := range cases {
		wei, _ := new(big.Int).SetString(in, 10)
		if got := FormatEther(wei); got != want {
			t.Fatalf("FormatEther(%s) = %s, want %s", in, got, want)
		}
	}
	if FormatEther(nil) != "0" {
		t.Fatalf("nil should format as zero")
	}
}
