package anvil

import (
	"math/big"
	"testing"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.25", "250000000000000000"},
		{"0", "0"},
		{"10000", "10000000000000000000000"},
		{"0.000000000000000001", "1"},
	}
	for _, test := range tests {
		got, err := ParseEther(test.in)
		if err != nil {
			t.Errorf("ParseEther(%q) error: %v", test.in, err)
			continue
		}
		if got.String() != test.want {
			t.Errorf("ParseEther(%q) = %s, want %s", test.in, got, test.want)
		}
	}
}

func TestParseEtherInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "1e-19", "0.0000000000000000001"} {
		if v, err := ParseEther(in); err == nil {
			t.Errorf("ParseEther(%q) = %v, want error", in, v)
		}
	}
}

func TestFormatEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	if s := FormatEther(wei); s != "1.5" {
		t.Errorf("FormatEther = %q", s)
	}
	if s := FormatEther(nil); s != "0" {
		t.Errorf("FormatEther(nil) = %q", s)
	}
}
