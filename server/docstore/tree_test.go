package docstore

import (
	"reflect"
	"testing"
)

func TestSplitPath(t *testing.T) {
	cases := map[string][]string{
		"":                        {},
		"/":                       {},
		"users":                   {"users"},
		"/a-b-com/conversations/": {"a-b-com", "conversations"},
		"conversations//c_1":      {"conversations", "c_1"},
	}
	for input, expect := range cases {
		got := SplitPath(input)
		if len(got) != len(expect) {
			t.Fatalf("SplitPath(%q) = %v, expected %v", input, got, expect)
		}
		for i := range got {
			if got[i] != expect[i] {
				t.Fatalf("SplitPath(%q) = %v, expected %v", input, got, expect)
			}
		}
	}
}

func TestWithValueAtCreatesIntermediateMaps(t *testing.T) {
	root := withValueAt(nil, []string{"a", "b", "c"}, "x")
	v, ok := valueAt(root, []string{"a", "b", "c"})
	if !ok || v != "x" {
		t.Fatalf("expected x, got %v", v)
	}
}

func TestWithValueAtNilDeletesAndPrunes(t *testing.T) {
	root := withValueAt(nil, []string{"a", "b"}, "x")
	root = withValueAt(root, []string{"a", "c"}, "y")
	root = withValueAt(root, []string{"a", "b"}, nil)
	if _, ok := valueAt(root, []string{"a", "b"}); ok {
		t.Fatalf("expected a/b to be deleted")
	}
	if v, _ := valueAt(root, []string{"a", "c"}); v != "y" {
		t.Fatalf("expected sibling to survive, got %v", v)
	}
	root = withValueAt(root, []string{"a", "c"}, nil)
	if root != nil {
		t.Fatalf("expected empty tree to prune to nil, got %v", root)
	}
}

func TestWithValueAtIndexesArrays(t *testing.T) {
	root := withValueAt(nil, []string{"list"}, []any{"a", "b"})
	root = withValueAt(root, []string{"list", "1"}, "B")
	root = withValueAt(root, []string{"list", "2"}, "C")
	got, _ := valueAt(root, []string{"list"})
	if !reflect.DeepEqual(got, []any{"a", "B", "C"}) {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestWithValueAtDoesNotMutateInput(t *testing.T) {
	original := map[string]any{"a": map[string]any{"b": "x"}}
	_ = withValueAt(original, []string{"a", "b"}, "y")
	inner := original["a"].(map[string]any)
	if inner["b"] != "x" {
		t.Fatalf("input tree was mutated")
	}
}

func TestOverlaps(t *testing.T) {
	if !overlaps([]string{"a"}, []string{"a", "b"}) {
		t.Fatalf("expected parent to overlap child")
	}
	if !overlaps([]string{"a", "b"}, []string{"a"}) {
		t.Fatalf("expected child to overlap parent")
	}
	if overlaps([]string{"a", "b"}, []string{"a", "c"}) {
		t.Fatalf("expected siblings not to overlap")
	}
}

func TestNormalizeStructToJSONShapes(t *testing.T) {
	type item struct {
		Grade int    `json:"grade"`
		Name  string `json:"name"`
	}
	v, err := Normalize([]item{{Grade: 9, Name: "x"}})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected one-element list, got %#v", v)
	}
	m := list[0].(map[string]any)
	if m["grade"] != float64(9) || m["name"] != "x" {
		t.Fatalf("unexpected normalized map %#v", m)
	}
}
