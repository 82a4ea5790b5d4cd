package identity

import (
	"errors"
	"strings"
	"testing"
)

// Vectors from EIP-55.
var checksummed = []string{
	"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
	"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
}

func TestParse_Checksums(t *testing.T) {
	for _, want := range checksummed {
		for _, in := range []string{want, strings.ToLower(want), "0x" + strings.ToUpper(want[2:])} {
			got, err := Parse(in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", in, err)
			}
			if string(got) != want {
				t.Fatalf("Parse(%q)=%s want=%s", in, got, want)
			}
		}
	}
}

func TestParse_RejectsBadChecksum(t *testing.T) {
	in := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD"
	if _, err := Parse(in); !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("err=%v want=%v", err, ErrBadChecksum)
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"0x",
		"5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAe",
		"0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrBadAddress) {
			t.Fatalf("Parse(%q) err=%v want=%v", in, err, ErrBadAddress)
		}
	}
}
