// Package loot holds the loot list attached to a source record: item
// references with quantity formulas and currency formulas, plus the
// working-copy Store used while a list is being edited.
package loot

import (
	"slices"
	"strings"

	"github.com/jwebster45206/loot-list/pkg/item"
)

// Currency is one denomination a loot list can hold a formula for
type Currency struct {
	Code  string
	Label string
}

// Currencies in enumeration order. Grants roll them in this order.
var Currencies = []Currency{
	{Code: "cp", Label: "Copper"},
	{Code: "sp", Label: "Silver"},
	{Code: "ep", Label: "Electrum"},
	{Code: "gp", Label: "Gold"},
	{Code: "pp", Label: "Platinum"},
}

// IsCurrency reports whether code is a recognized currency code
func IsCurrency(code string) bool {
	return slices.ContainsFunc(Currencies, func(c Currency) bool { return c.Code == code })
}

// CurrencyCodes returns the recognized codes in enumeration order
func CurrencyCodes() []string {
	codes := make([]string, len(Currencies))
	for i, c := range Currencies {
		codes[i] = c.Code
	}
	return codes
}

// Entry is one item reference with its quantity formula.
// Field names match the stored flag layout.
type Entry struct {
	Reference string `json:"uuid"`
	Quantity  string `json:"quantity"`
}

// CurrencyMap maps currency codes to amount formulas
type CurrencyMap map[string]string

// NormalizeCurrencies drops unrecognized codes and fills every recognized
// code that is absent or blank with "0"
func NormalizeCurrencies(in map[string]string) CurrencyMap {
	out := make(CurrencyMap, len(Currencies))
	for _, c := range Currencies {
		formula := strings.TrimSpace(in[c.Code])
		if formula == "" {
			formula = "0"
		}
		out[c.Code] = formula
	}
	return out
}

// List is a loot list: ordered entries and currency formulas
type List struct {
	Items      []Entry     `json:"items"`
	Currencies CurrencyMap `json:"currencies"`
}

// NewList returns an empty list with every currency at "0"
func NewList() *List {
	return &List{
		Items:      []Entry{},
		Currencies: NormalizeCurrencies(nil),
	}
}

// Normalize builds a list from raw stored data. Entries without a reference
// are dropped, a repeated reference keeps its first entry, a blank quantity
// becomes "1" and currencies are normalized.
func Normalize(items []Entry, currencies map[string]string) *List {
	l := &List{
		Items:      make([]Entry, 0, len(items)),
		Currencies: NormalizeCurrencies(currencies),
	}
	seen := make(map[string]bool, len(items))
	for _, e := range items {
		ref := strings.TrimSpace(e.Reference)
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		qty := strings.TrimSpace(e.Quantity)
		if qty == "" {
			qty = "1"
		}
		l.Items = append(l.Items, Entry{Reference: ref, Quantity: qty})
	}
	return l
}

// Clone returns a deep copy of the list
func (l *List) Clone() *List {
	c := &List{
		Items:      slices.Clone(l.Items),
		Currencies: make(CurrencyMap, len(l.Currencies)),
	}
	if c.Items == nil {
		c.Items = []Entry{}
	}
	for k, v := range l.Currencies {
		c.Currencies[k] = v
	}
	return c
}

// Index returns the position of the entry for reference, or -1
func (l *List) Index(reference string) int {
	return slices.IndexFunc(l.Items, func(e Entry) bool { return e.Reference == reference })
}

// Config names where loot lists are stored and which item categories they
// accept. One value is shared by the Store, the grant engine and the drop
// pipeline.
type Config struct {
	Namespace      string
	ListKey        string
	CurrenciesKey  string
	ValidItemTypes []string
	StackableTypes []string
}

// DefaultConfig returns the standard storage keys and item categories
func DefaultConfig() Config {
	return Config{
		Namespace:      "simple-loot-list",
		ListKey:        "loot-list",
		CurrenciesKey:  "currencies",
		ValidItemTypes: slices.Clone(item.ValidTypes),
		StackableTypes: slices.Clone(item.StackableTypes),
	}
}

// IsValidType reports whether items of category t may be put on a list
func (c Config) IsValidType(t string) bool {
	return slices.Contains(c.ValidItemTypes, t)
}

// IsStackable reports whether granted items of category t merge into an
// existing stack
func (c Config) IsStackable(t string) bool {
	return slices.Contains(c.StackableTypes, t)
}
