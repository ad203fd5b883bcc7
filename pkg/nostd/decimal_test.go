package nostd

import "testing"

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"plain string", "1.25", "1.25"},
		{"padded string", "  3.50 ", "3.5"},
		{"integer", 42, "42"},
		{"float", 0.5, "0.5"},
		{"empty string", "", "0"},
		{"garbage", "abc", "0"},
		{"nil", nil, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToDecimal(tt.in); got.String() != tt.want {
				t.Errorf("ToDecimal(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
