package hostcap

import "testing"

func TestCategoryContains(t *testing.T) {
	set := CategoryCompute | CategoryKVRead

	if !set.Contains(CategoryCompute) {
		t.Error("set should contain compute")
	}
	if !set.Contains(CategoryCompute | CategoryKVRead) {
		t.Error("set should contain its own union")
	}
	if set.Contains(CategorySecretRead) {
		t.Error("set should not contain secret_read")
	}
	if set.Contains(CategoryCompute | CategorySecretRead) {
		t.Error("partial overlap is not containment")
	}
	if !set.Contains(0) {
		t.Error("every set contains the empty set")
	}
}

func TestCategoryString(t *testing.T) {
	if got := (CategoryCompute | CategorySecretRead).String(); got != "compute|secret_read" {
		t.Errorf("unexpected string: %q", got)
	}
	if got := Category(0).String(); got != "none" {
		t.Errorf("empty set should be none, got %q", got)
	}
}

func TestParseCategories(t *testing.T) {
	set, err := ParseCategories([]string{"compute", "kv_read"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if set != CategoryCompute|CategoryKVRead {
		t.Errorf("unexpected set: %s", set)
	}

	set, err = ParseCategories([]string{"all"})
	if err != nil || set != AllCategories {
		t.Errorf("all should expand to every category, got (%s, %v)", set, err)
	}

	if _, err := ParseCategories([]string{"root"}); err == nil {
		t.Error("expected error for unknown category")
	}
}
