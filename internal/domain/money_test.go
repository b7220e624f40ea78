package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"0.015", "0.015", false},
		{" -20.5 ", "-20.5", false},
		{"1e-8", "0.00000001", false},
		{"123456789.123456789123456789", "123456789.123456789123456789", false},
		{"", "", true},
		{"   ", "", true},
		{"1,5", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %s, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tt.input, err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestMinAmount(t *testing.T) {
	if got := MinAmount(dec("1.5"), dec("2")); !got.Equal(dec("1.5")) {
		t.Errorf("MinAmount(1.5, 2) = %s", got)
	}
	if got := MinAmount(dec("3"), dec("0.1")); !got.Equal(dec("0.1")) {
		t.Errorf("MinAmount(3, 0.1) = %s", got)
	}
}

func TestProrate(t *testing.T) {
	tests := []struct {
		name               string
		total, part, whole string
		want               string
	}{
		{"half", "10", "1", "2", "5"},
		{"whole returns total", "0.1", "3", "3", "0.1"},
		{"zero total", "0", "1", "3", "0"},
		{"repeating third", "1", "1", "3", "0.333333333333333333"},
		{"rounds the last digit", "2", "1", "3", "0.666666666666666667"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prorate(dec(tt.total), dec(tt.part), dec(tt.whole))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Prorate(%s, %s, %s) = %s, want %s", tt.total, tt.part, tt.whole, got, tt.want)
			}
		})
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0", "0.00"},
		{"-20", "-20.00"},
		{"1234.5", "1234.50"},
		{"0.125", "0.12"},
		{"0.135", "0.14"},
		{"-0.005", "0.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(dec(tt.in)); got != tt.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
