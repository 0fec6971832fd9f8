package device

import "testing"

func TestKeyDeterminism(t *testing.T) {
	a := Key(TypeCpu, Identifier{Manufacturer: "Intel", Model: "Core i9-14900K"})
	b := Key(TypeCpu, Identifier{Manufacturer: "INTEL", Model: " core i9-14900k "})
	if a != b {
		t.Fatalf("expected identical keys, got %s and %s", a, b)
	}
	if len(a) != keyHexLen {
		t.Fatalf("expected %d hex chars, got %d", keyHexLen, len(a))
	}
}

func TestKeyDistinguishesTypeAndModel(t *testing.T) {
	base := Key(TypeCpu, Identifier{Manufacturer: "AMD", Model: "Ryzen 9 7950X"})
	cases := []struct {
		name string
		typ  Type
		id   Identifier
	}{
		{"different type", TypeGpu, Identifier{Manufacturer: "AMD", Model: "Ryzen 9 7950X"}},
		{"different model", TypeCpu, Identifier{Manufacturer: "AMD", Model: "Ryzen 9 7900X"}},
		{"different manufacturer", TypeCpu, Identifier{Manufacturer: "Intel", Model: "Ryzen 9 7950X"}},
	}
	for _, tc := range cases {
		if got := Key(tc.typ, tc.id); got == base {
			t.Errorf("%s: key collision with base key %s", tc.name, base)
		}
	}
}

func TestKeyCollapsesInnerWhitespace(t *testing.T) {
	a := Key(TypeMemory, Identifier{Manufacturer: "Corsair", Model: "Vengeance  LPX   32GB"})
	b := Key(TypeMemory, Identifier{Manufacturer: "Corsair", Model: "Vengeance LPX 32GB"})
	if a != b {
		t.Fatalf("inner whitespace must not change the key: %s vs %s", a, b)
	}
}

func TestParseType(t *testing.T) {
	cases := []struct {
		in   string
		want Type
	}{
		{"CPU", TypeCpu},
		{"processor", TypeCpu},
		{"gpu", TypeGpu},
		{"Graphics", TypeGpu},
		{"mainboard", TypeMotherboard},
		{"RAM", TypeMemory},
		{"ssd", TypeStorage},
		{"display", TypeMonitor},
	}
	for _, tc := range cases {
		got, err := ParseType(tc.in)
		if err != nil {
			t.Errorf("ParseType(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseType(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
	if _, err := ParseType("toaster"); err == nil {
		t.Error("expected error for unknown type")
	}
}
