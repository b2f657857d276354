package canonical_test

import (
	"testing"

	"github.com/famproject/sigchain/internal/canonical"
)

func TestMarshal(t *testing.T) {
	t.Run("sorts object keys", func(t *testing.T) {
		got, err := canonical.Marshal(map[string]any{
			"zeta":  "z",
			"alpha": "a",
			"mid":   1,
		})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		want := `{"alpha":"a","mid":1,"zeta":"z"}`
		if string(got) != want {
			t.Errorf("Marshal() = %s, want %s", got, want)
		}
	})

	t.Run("nested objects and arrays", func(t *testing.T) {
		got, err := canonical.Marshal(map[string]any{
			"b": []any{1, "two", true, nil},
			"a": map[string]any{"y": 2, "x": 1},
		})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		want := `{"a":{"x":1,"y":2},"b":[1,"two",true,null]}`
		if string(got) != want {
			t.Errorf("Marshal() = %s, want %s", got, want)
		}
	})

	t.Run("does not escape HTML characters", func(t *testing.T) {
		got, err := canonical.Marshal(map[string]any{"k": "<a>&</a>"})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		want := `{"k":"<a>&</a>"}`
		if string(got) != want {
			t.Errorf("Marshal() = %s, want %s", got, want)
		}
	})

	t.Run("integral float64 encodes as integer", func(t *testing.T) {
		got, err := canonical.Marshal(map[string]any{"n": float64(42)})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(got) != `{"n":42}` {
			t.Errorf("Marshal() = %s, want {\"n\":42}", got)
		}
	})

	t.Run("rejects fractional numbers", func(t *testing.T) {
		if _, err := canonical.Marshal(map[string]any{"n": 1.5}); err == nil {
			t.Error("Marshal() expected error for fractional number")
		}
	})

	t.Run("rejects unsupported types", func(t *testing.T) {
		if _, err := canonical.Marshal(map[string]any{"ch": make(chan int)}); err == nil {
			t.Error("Marshal() expected error for unsupported type")
		}
	})

	t.Run("normalizes unicode to NFC", func(t *testing.T) {
		// "é" as precomposed U+00E9 vs decomposed U+0065 U+0301.
		composed, err := canonical.Marshal("café")
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		decomposed, err := canonical.Marshal("café")
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(composed) != string(decomposed) {
			t.Errorf("NFC normalization mismatch: %s vs %s", composed, decomposed)
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		payload := map[string]any{
			"signer_user_id": "u-1",
			"role_at_sign":   "director",
			"consent":        true,
			"position":       int64(3),
		}
		first, err := canonical.Marshal(payload)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		for i := 0; i < 10; i++ {
			again, err := canonical.Marshal(payload)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(again) != string(first) {
				t.Fatalf("Marshal() not deterministic: %s vs %s", again, first)
			}
		}
	})
}
