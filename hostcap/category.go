package hostcap

import (
	"fmt"
	"strings"
)

// Category is a bitset of capability categories. A handle may only invoke
// operations whose required categories are all present on the handle; the
// broker enforces this on every call, not just at issuance.
type Category uint32

const (
	// CategoryCompute permits host-delegated arithmetic.
	CategoryCompute Category = 1 << iota

	// CategorySecretRead permits reading host-managed secrets.
	CategorySecretRead

	// CategoryKVRead permits reading the host key-value store.
	CategoryKVRead

	// CategoryKVWrite permits mutating the host key-value store.
	CategoryKVWrite

	// CategoryNetFetch permits outbound fetches to allowlisted hosts.
	CategoryNetFetch
)

// AllCategories is the union of every defined category.
const AllCategories = CategoryCompute | CategorySecretRead |
	CategoryKVRead | CategoryKVWrite | CategoryNetFetch

var categoryNames = []struct {
	cat  Category
	name string
}{
	{CategoryCompute, "compute"},
	{CategorySecretRead, "secret_read"},
	{CategoryKVRead, "kv_read"},
	{CategoryKVWrite, "kv_write"},
	{CategoryNetFetch, "net_fetch"},
}

// Contains reports whether every bit of required is present in c.
func (c Category) Contains(required Category) bool {
	return c&required == required
}

// Names returns the individual category names present in c.
func (c Category) Names() []string {
	var names []string
	for _, e := range categoryNames {
		if c&e.cat != 0 {
			names = append(names, e.name)
		}
	}
	return names
}

// String returns the categories in c joined with "|", or "none".
func (c Category) String() string {
	names := c.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseCategory maps a single category name to its bit.
func ParseCategory(name string) (Category, error) {
	for _, e := range categoryNames {
		if e.name == name {
			return e.cat, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// ParseCategories folds a list of category names into a bitset.
// The special name "all" expands to every defined category.
func ParseCategories(names []string) (Category, error) {
	var set Category
	for _, name := range names {
		if name == "all" {
			set |= AllCategories
			continue
		}
		cat, err := ParseCategory(name)
		if err != nil {
			return 0, err
		}
		set |= cat
	}
	return set, nil
}
