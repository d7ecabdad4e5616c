package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func TestCanonicalizeOptionValueByType(t *testing.T) {
	cases := []struct {
		name string
		in   OptionValue
		want string
	}{
		{"text passthrough", OptionValue{Label: "Small", ValueType: ValueTypeText, Value: "S"}, "S"},
		{"text from typed field", OptionValue{Label: "Large", ValueType: ValueTypeText, TextValue: strPtr("L")}, "L"},
		{"number stringifies", OptionValue{Label: "Shots", ValueType: ValueTypeNumber, NumberValue: floatPtr(2)}, "2"},
		{"number keeps fraction", OptionValue{Label: "Size", ValueType: ValueTypeNumber, NumberValue: floatPtr(1.5)}, "1.5"},
		{"boolean true", OptionValue{Label: "Iced", ValueType: ValueTypeBoolean, BoolValue: boolPtr(true)}, "true"},
		{"boolean default false", OptionValue{Label: "Iced", ValueType: ValueTypeBoolean}, "false"},
		{"date iso", OptionValue{Label: "Batch", ValueType: ValueTypeDate, DateValue: strPtr("2025-03-01")}, "2025-03-01"},
		{"date from timestamp", OptionValue{Label: "Batch", ValueType: ValueTypeDate, DateValue: strPtr("2025-03-01T10:00:00Z")}, "2025-03-01"},
		{"unknown type treated as text", OptionValue{Label: "X", ValueType: "blob", Value: "raw"}, "raw"},
	}

	for _, tc := range cases {
		got := CanonicalizeOptionValue(tc.in)
		if got.Value != tc.want {
			t.Errorf("%s: canonical value = %q, want %q", tc.name, got.Value, tc.want)
		}
	}
}

func TestCanonicalizeTruncatesOverLengthValues(t *testing.T) {
	long := strings.Repeat("x", 400)
	got := CanonicalizeOptionValue(OptionValue{Label: long, ValueType: ValueTypeText, Value: long})
	if len(got.Label) != 255 || len(got.Value) != 255 {
		t.Fatalf("expected 255-byte truncation, got label=%d value=%d", len(got.Label), len(got.Value))
	}
}

func TestTruncationKeepsValidUTF8(t *testing.T) {
	// 2-byte runes; 255 falls mid-rune, so the cut must back up to 254.
	long := strings.Repeat("é", 200)
	got := CanonicalizeOptionValue(OptionValue{Label: long, ValueType: ValueTypeText, Value: long})
	if len(got.Label) != 254 || len(got.Value) != 254 {
		t.Fatalf("expected rune-boundary truncation to 254 bytes, got label=%d value=%d", len(got.Label), len(got.Value))
	}
	if !utf8.ValidString(got.Label) || !utf8.ValidString(got.Value) {
		t.Fatal("truncation produced invalid UTF-8")
	}

	schema := NormalizeOptionSchema([]OptionGroup{{Key: strings.Repeat("漢", 50), Label: "Long"}})
	if !utf8.ValidString(schema[0].Key) || len(schema[0].Key) > 100 {
		t.Fatalf("key truncation = %d bytes, valid=%v", len(schema[0].Key), utf8.ValidString(schema[0].Key))
	}
}

func TestNormalizeOptionSchemaKeyFallbackAndBounds(t *testing.T) {
	schema := NormalizeOptionSchema([]OptionGroup{
		{Label: "Milk Choice", Type: "multi", Options: []OptionValue{
			{Label: "Oat", Value: "oat", PriceDelta: 0.5},
		}},
		{Key: strings.Repeat("k", 150), Label: "Long"},
	})
	if len(schema) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(schema))
	}
	if schema[0].Key != "Milk Choice" {
		t.Fatalf("expected key fallback to label, got %q", schema[0].Key)
	}
	if schema[0].Type != GroupTypeMulti {
		t.Fatalf("expected multi type preserved, got %q", schema[0].Type)
	}
	if len(schema[1].Key) != 100 {
		t.Fatalf("expected key truncated to 100, got %d", len(schema[1].Key))
	}
}

func TestNormalizeOptionSchemaCollapsesDuplicateIdentities(t *testing.T) {
	schema := NormalizeOptionSchema([]OptionGroup{
		{Key: "size", Label: "Size", Options: []OptionValue{
			{Label: "Small", Value: "S", PriceDelta: 0},
			{Label: "Small", Value: "S", PriceDelta: 1.25},
			{Label: "Large", Value: "L", PriceDelta: 1.5},
		}},
		{Key: "size", Label: "Size (edited)"},
	})
	if len(schema) != 1 {
		t.Fatalf("expected duplicate group keys to collapse, got %d groups", len(schema))
	}
	if schema[0].Label != "Size (edited)" {
		t.Fatalf("expected last duplicate group to win, got %q", schema[0].Label)
	}
}

func TestNormalizeDropsKeylessGroups(t *testing.T) {
	schema := NormalizeOptionSchema([]OptionGroup{{Options: []OptionValue{{Label: "x", Value: "x"}}}})
	if len(schema) != 0 {
		t.Fatalf("expected group with no key or label to be dropped")
	}
}

func TestNormalizeDedupeKeepsLastOptionPriceDelta(t *testing.T) {
	schema := NormalizeOptionSchema([]OptionGroup{
		{Key: "size", Label: "Size", Options: []OptionValue{
			{Label: "Small", Value: "S", PriceDelta: 0},
			{Label: "Small", Value: "S", PriceDelta: 2},
		}},
	})
	if len(schema[0].Options) != 1 {
		t.Fatalf("expected duplicate option identity to collapse")
	}
	if schema[0].Options[0].PriceDelta != 2 {
		t.Fatalf("expected last duplicate to win, got delta %v", schema[0].Options[0].PriceDelta)
	}
}

func TestItemSignatureIsOrderIndependent(t *testing.T) {
	a := []OrderItem{
		{ProductID: "prod-1", ProductName: "Latte", Quantity: 2, Price: 4.5},
		{ProductID: "prod-2", ProductName: "Muffin", Quantity: 1, Price: 3},
	}
	b := []OrderItem{a[1], a[0]}
	if OrderItemSignature(a) != OrderItemSignature(b) {
		t.Fatalf("signature should not depend on item order")
	}

	tx := []TransactionItem{
		{ProductID: "prod-2", ProductName: "Muffin", Quantity: 1, Price: 3},
		{ProductID: "prod-1", ProductName: "Latte", Quantity: 2, Price: 4.5},
	}
	if TransactionItemSignature(tx) != OrderItemSignature(a) {
		t.Fatalf("order and transaction signatures should agree for equal item sets")
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(70.004999); got != 70.0 {
		t.Fatalf("Round2 = %v", got)
	}
	if got := Round2(0.005); got != 0.01 {
		t.Fatalf("Round2 half-up = %v", got)
	}
}
