package materialize_test

import (
	"testing"

	"github.com/matgreaves/gantry/materialize"
)

func TestInterpolate(t *testing.T) {
	lookup := materialize.MapLookup(map[string]string{
		"SET":   "value",
		"EMPTY": "",
	})

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "${SET}", want: "value"},
		{in: "$SET", want: "value"},
		{in: "pre-$SET-post", want: "pre-value-post"},
		{in: "${UNSET}", want: ""},
		{in: "$UNSET", want: ""},

		// ":-" uses the default when unset OR empty.
		{in: "${SET:-fallback}", want: "value"},
		{in: "${EMPTY:-fallback}", want: "fallback"},
		{in: "${UNSET:-fallback}", want: "fallback"},
		{in: "${UNSET:-1}", want: "1"},
		{in: "${UNSET:-ws://localhost:9944}", want: "ws://localhost:9944"},

		// "-" uses the default only when unset.
		{in: "${SET-fallback}", want: "value"},
		{in: "${EMPTY-fallback}", want: ""},
		{in: "${UNSET-fallback}", want: "fallback"},

		// Escapes and literals.
		{in: "$$SET", want: "$SET"},
		{in: "cost: $$5", want: "cost: $5"},
		{in: "trailing$", want: "trailing$"},
		{in: "$5", want: "$5"},

		// Malformed expressions.
		{in: "${UNTERMINATED", wantErr: true},
		{in: "${}", wantErr: true},
		{in: "${:-x}", wantErr: true},
		{in: "${9BAD}", wantErr: true},
	}

	for _, tt := range tests {
		got, err := materialize.Interpolate(tt.in, lookup)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Interpolate(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Interpolate(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
