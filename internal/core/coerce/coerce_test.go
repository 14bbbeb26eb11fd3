package coerce

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDecimal(t *testing.T) {
	zero := decimal.Zero
	tests := []struct {
		in   string
		want string
	}{
		{"5.5", "5.5"},
		{" 10 ", "10"},
		{"1,250.125", "1250.125"},
		{"2.12345", "2.123"},
		{"abc", "0"},
		{"", "0"},
		{"nan", "0"},
	}

	for _, tt := range tests {
		got := Decimal(tt.in, zero)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Decimal(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDecimal_Fallback(t *testing.T) {
	fallback := decimal.NewFromInt(1)
	if got := Decimal("x", fallback); !got.Equal(fallback) {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestDecimal_OutOfRange(t *testing.T) {
	fallback := decimal.NewFromInt(-1)
	for _, s := range []string{"1e20000000", "1e-20000000", "1e15", "-1000000000000000", "1e400"} {
		start := time.Now()
		if got := Decimal(s, fallback); !got.Equal(fallback) {
			t.Errorf("Decimal(%q) = %s, want fallback", s, got)
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			t.Errorf("Decimal(%q) took %v", s, d)
		}
	}
	if got := Decimal("999999999999999.999", fallback); got.String() != "999999999999999.999" {
		t.Errorf("largest quantity = %s", got)
	}
}

func TestParseDecimal(t *testing.T) {
	d, ok := ParseDecimal("1e400")
	if !ok || d.Exponent() != 400 {
		t.Errorf("ParseDecimal(1e400) = %s, %v", d, ok)
	}
	if _, ok := ParseDecimal("none"); ok {
		t.Error("expected placeholder to be blank")
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"3", 3},
		{"3.0", 3},
		{" 12 ", 12},
		{"x", 7},
		{"", 7},
		{"1e30", 7},
		{"-1e30", 7},
		{"9223372036854775808", 7},
		{"Inf", 7},
		{"-Infinity", 7},
		{"NaN", 7},
	}
	for _, tt := range tests {
		if got := Int(tt.in, 7); got != tt.want {
			t.Errorf("Int(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "yes", "Y"} {
		if !Bool(s) {
			t.Errorf("Bool(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"false", "0", "no", "", "nan", "maybe"} {
		if Bool(s) {
			t.Errorf("Bool(%q) = true, want false", s)
		}
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-15", "2024-03-15"},
		{"2024/03/15", "2024-03-15"},
		{"15-03-2024", "2024-03-15"},
		{"15/03/2024", "2024-03-15"},
		{"2024-03-15 13:45:00", "2024-03-15"},
		{"2024-03-15T23:10:00+05:30", "2024-03-15"},
		{"not a date", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatDate(Date(tt.in)); got != tt.want {
			t.Errorf("Date(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestText(t *testing.T) {
	if got := Text("  B12 "); got != "B12" {
		t.Errorf("expected B12, got %q", got)
	}
	if got := Text("NaN"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
