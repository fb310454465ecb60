package utils

import "testing"

func TestParseAmount_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"25", "25"},
		{"$25.00", "25"},
		{"$1,234.56", "1234.56"},
		{"€ 50", "50"},
		{"  £100  ", "100"},
		{"", "0"},
		{`\N`, "0"},
	}
	for _, tc := range cases {
		d, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseAmount(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"not a number", "12.3.4", "--5"} {
		d, err := ParseAmount(in)
		if err == nil {
			t.Fatalf("ParseAmount(%q) expected error, got %s", in, d.String())
		}
		if !d.IsZero() {
			t.Fatalf("ParseAmount(%q) expected zero on error, got %s", in, d.String())
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"Jane.Doe@Example.COM", "jane.doe@example.com"},
		{"  jane@example.com  ", "jane@example.com"},
		{"jane@example.com", "jane@example.com"},
	}
	for _, tc := range cases {
		if got := NormalizeEmail(tc.in); got != tc.expected {
			t.Fatalf("NormalizeEmail(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}
