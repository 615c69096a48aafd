package log

import "testing"

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"debug":   "DEBUG",
		"DEBUG":   "DEBUG",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"info":    "INFO",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
