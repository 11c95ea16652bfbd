package transform

import (
	"reflect"
	"testing"
)

func TestParseLiteral(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want any
	}{
		{"int", "42", int64(42)},
		{"negative float", "-1.5", -1.5},
		{"single-quoted string", `'abc'`, "abc"},
		{"double-quoted string", `"a'b"`, "a'b"},
		{"escaped quote", `'it\'s'`, "it's"},
		{"true", "True", true},
		{"none", "None", nil},
		{"flat list", `[3, 5]`, []any{int64(3), int64(5)}},
		{"tuple", `(1, 2)`, []any{int64(1), int64(2)}},
		{
			"nested list",
			`[['Clothing', ['Men', 'Shoes']], 'Sale']`,
			[]any{[]any{"Clothing", []any{"Men", "Shoes"}}, "Sale"},
		},
		{
			"dict of lists",
			`{'also_bought': ['B001', 'B002'], 'also_viewed': ['B003']}`,
			Dict{
				{Key: "also_bought", Value: []any{"B001", "B002"}},
				{Key: "also_viewed", Value: []any{"B003"}},
			},
		},
		{"trailing comma", `['a',]`, []any{"a"}},
		{"empty list", `[]`, []any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLiteral(tc.in)
			if err != nil {
				t.Fatalf("ParseLiteral(%q): %v", tc.in, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseLiteral(%q) = %#v; want %#v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseLiteralErrors(t *testing.T) {
	for _, in := range []string{"", "[1", "{'a' 1}", "'open", "1 2", "nope"} {
		if _, err := ParseLiteral(in); err == nil {
			t.Errorf("ParseLiteral(%q): expected error", in)
		}
	}
}

// Decode must never fail: unparsable cells fall back to the raw string.
func TestDecodeFallback(t *testing.T) {
	raw := "not [ a literal"
	if got := Decode(raw); got != raw {
		t.Errorf("Decode fallback = %#v; want raw string", got)
	}
	if got := Decode("[1, 2]"); !reflect.DeepEqual(got, []any{int64(1), int64(2)}) {
		t.Errorf("Decode list = %#v", got)
	}
}

func TestFlattenStrings(t *testing.T) {
	in := []any{[]any{"a", []any{"b", "c"}}, "d"}
	want := []string{"a", "b", "c", "d"}
	if got := FlattenStrings(in); !reflect.DeepEqual(got, want) {
		t.Errorf("FlattenStrings = %v; want %v", got, want)
	}

	deep := []any{[]any{[]any{[]any{"x"}}}, "y"}
	if got := FlattenStrings(deep); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("deep flatten = %v", got)
	}
}

func TestRatio(t *testing.T) {
	if _, ok := Ratio(0, 0); ok {
		t.Error("zero denominator must report not-ok")
	}
	if v, ok := Ratio(3, 4); !ok || v != 0.75 {
		t.Errorf("Ratio(3,4) = %v,%v; want 0.75,true", v, ok)
	}
	if v, ok := Ratio(1, 3); !ok || v != 0.33 {
		t.Errorf("Ratio(1,3) = %v,%v; want 0.33,true", v, ok)
	}
}
