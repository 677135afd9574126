package closetfile

import (
	"reflect"
	"testing"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

func TestNormalizeNestedPythonLiteral(t *testing.T) {
	got := normalizeNested(`{'1': 'rec/cutout_1.png', '3': 'rec/cutout_3.png'}`)
	want := map[string]string{"1": "rec/cutout_1.png", "3": "rec/cutout_3.png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNormalizeNestedJSON(t *testing.T) {
	got := normalizeNested(`{"1": "rec/cutout_1.png", "2": "rec/cutout_2.png"}`)
	want := map[string]string{"1": "rec/cutout_1.png", "2": "rec/cutout_2.png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNormalizeNestedLiteralList(t *testing.T) {
	got := normalizeNested(`['rec/a.png', 'rec/b.png']`)
	want := map[string]string{"1": "rec/a.png", "2": "rec/b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNormalizeNestedDelimitedList(t *testing.T) {
	got := normalizeNested("rec/a.png;rec/b.png")
	want := map[string]string{"1": "rec/a.png", "2": "rec/b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLegacyEncodingsAgree(t *testing.T) {
	oldest := normalizeNested("rec/a.png;rec/b.png")
	newest := normalizeNested(`{"1": "rec/a.png", "2": "rec/b.png"}`)
	if !reflect.DeepEqual(oldest, newest) {
		t.Fatalf("delimited %v and JSON %v should normalize identically", oldest, newest)
	}
}

func TestNormalizeNestedCorruptRow(t *testing.T) {
	for _, raw := range []string{"{{{", `{"1": `, "{'1': 'x"} {
		got := normalizeNested(raw)
		if len(got) != 0 {
			t.Fatalf("corrupt row %q should normalize to empty mapping, got %v", raw, got)
		}
	}
}

func TestNormalizeNestedEmpty(t *testing.T) {
	if got := normalizeNested(""); len(got) != 0 {
		t.Fatalf("empty column should normalize to empty mapping, got %v", got)
	}
}

func TestNormalizeClassificationsPythonLiteral(t *testing.T) {
	got := normalizeClassifications(`{'1': {'pattern': 'striped', 'color': 'blue'}, '2': {}}`)
	want := map[string]domain.LabelSet{
		"1": {domain.CategoryPattern: "striped", domain.CategoryColor: "blue"},
		"2": {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNormalizeClassificationsEscapedQuote(t *testing.T) {
	got := normalizeClassifications(`{'1': {'material': 'lamb\'s wool'}}`)
	if got["1"][domain.CategoryMaterial] != "lamb's wool" {
		t.Fatalf("expected escaped apostrophe preserved, got %v", got)
	}
}

func TestNormalizeClassificationsRejectsDelimited(t *testing.T) {
	if got := normalizeClassifications("striped;blue"); len(got) != 0 {
		t.Fatalf("delimited input should not parse as classifications, got %v", got)
	}
}

func TestLiteralToJSONBarewords(t *testing.T) {
	converted, ok := literalToJSON(`{'a': None, 'b': True, 'c': False}`)
	if !ok {
		t.Fatal("expected literal conversion to succeed")
	}
	want := `{"a": null, "b": true, "c": false}`
	if converted != want {
		t.Fatalf("expected %q, got %q", want, converted)
	}
}
