package config

import "testing"

func TestReadIntFallsBackOnBadValues(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"unset", ""},
		{"not a number", "abc"},
		{"zero", "0"},
		{"negative", "-5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.value != "" {
				t.Setenv("RATE_LIMIT_PER_MIN", tc.value)
			}
			if got := readInt("RATE_LIMIT_PER_MIN", 120); got != 120 {
				t.Fatalf("readInt = %d, want fallback 120", got)
			}
		})
	}

	t.Setenv("RATE_LIMIT_PER_MIN", "42")
	if got := readInt("RATE_LIMIT_PER_MIN", 120); got != 42 {
		t.Fatalf("readInt = %d, want 42", got)
	}
}

func TestReadInt64FallsBackOnBadValues(t *testing.T) {
	t.Setenv("RATE_CAR_CENTS", "0")
	if got := readInt64("RATE_CAR_CENTS", 200); got != 200 {
		t.Fatalf("readInt64 = %d, want fallback 200", got)
	}
	t.Setenv("RATE_CAR_CENTS", "250")
	if got := readInt64("RATE_CAR_CENTS", 200); got != 250 {
		t.Fatalf("readInt64 = %d, want 250", got)
	}
}
