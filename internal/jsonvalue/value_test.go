package jsonvalue

import "testing"

func TestGetNested(t *testing.T) {
	v := Parse(`{"bot":{"app_name":"convoy","app_version":2},"plugins":["telegram","claude"]}`)

	if got := v.Get("bot.app_name").AsString(""); got != "convoy" {
		t.Fatalf("app_name = %q, want convoy", got)
	}
	if got := v.Get("bot.app_version").AsInt(0); got != 2 {
		t.Fatalf("app_version = %d, want 2", got)
	}
	if !v.Get("plugins").IsArray() {
		t.Fatalf("plugins should be an array")
	}
	if got := len(v.Get("plugins").Array()); got != 2 {
		t.Fatalf("plugins length = %d, want 2", got)
	}
}

func TestMissingPathYieldsDefaults(t *testing.T) {
	v := Parse(`{"a":1}`)
	missing := v.Get("nope.deep")

	if missing.Exists() {
		t.Fatalf("missing path should not exist")
	}
	if got := missing.AsString("fallback"); got != "fallback" {
		t.Fatalf("AsString default = %q, want fallback", got)
	}
	if got := missing.AsInt(42); got != 42 {
		t.Fatalf("AsInt default = %d, want 42", got)
	}
	if got := missing.AsBool(true); got != true {
		t.Fatalf("AsBool default = %v, want true", got)
	}
}

func TestSetRoundTrips(t *testing.T) {
	v := Parse(`{}`)
	v2, err := v.Set("a.b", "x")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := v2.Get("a.b").AsString(""); got != "x" {
		t.Fatalf("after Set, a.b = %q, want x", got)
	}
	// Original is unmodified (Value is a value type over an immutable string).
	if v.Get("a.b").Exists() {
		t.Fatalf("original Value must not be mutated by Set")
	}
}

func TestZeroValueIsInert(t *testing.T) {
	var z Value
	if z.Exists() {
		t.Fatalf("zero Value should not exist")
	}
	if got := z.Get("anything").AsString("d"); got != "d" {
		t.Fatalf("zero Value Get should yield defaults, got %q", got)
	}
	if z.IsArray() || z.IsObject() {
		t.Fatalf("zero Value is neither array nor object")
	}
}

func TestKeysPreservesObjectOrder(t *testing.T) {
	v := Parse(`{"z":1,"a":2,"m":3}`)
	keys := v.Keys()
	want := []string{"z", "a", "m"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}
