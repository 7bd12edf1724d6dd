package extraction

import "strings"

// Category labels the host application accepts. The resolver never invents
// labels outside this set; only the vendor memory and the keyword table
// select from it.
const (
	CategoryFoodDining    = "Food & Dining"
	CategoryTravel        = "Travel"
	CategorySupplies      = "Supplies"
	CategoryServices      = "Services"
	CategoryGroceries     = "Groceries"
	CategoryTransport     = "Transport"
	CategoryMiscellaneous = "Miscellaneous"
)

var allCategories = []string{
	CategoryFoodDining,
	CategoryTravel,
	CategorySupplies,
	CategoryServices,
	CategoryGroceries,
	CategoryTransport,
	CategoryMiscellaneous,
}

// Categories returns the fixed category enumeration.
func Categories() []string {
	out := make([]string, len(allCategories))
	copy(out, allCategories)
	return out
}

// ValidCategory reports whether label is a member of the fixed enumeration.
func ValidCategory(label string) bool {
	for _, c := range allCategories {
		if c == label {
			return true
		}
	}
	return false
}

// VendorMemory is the learned vendor→category mapping. It is populated by
// the host whenever a human confirms or edits a category; the resolver only
// reads it. Keys are matched case-insensitively.
type VendorMemory interface {
	Lookup(vendor string) (string, bool)
}

// CategoryRule pairs a category with the keywords that imply it.
type CategoryRule struct {
	Category string
	Keywords []string
}

// defaultRules is scanned in order; earlier entries win when several
// keyword sets match. The order is part of the contract, not an accident
// of declaration.
var defaultRules = []CategoryRule{
	{CategoryFoodDining, []string{"restaurant", "cafe", "mcdonald", "starbucks", "grill", "pizza", "burger", "subway", "taco"}},
	{CategoryTravel, []string{"uber", "lyft", "airline", "hotel", "inn", "railway", "taxi", "gas", "shell", "chevron", "bp"}},
	{CategorySupplies, []string{"amazon", "walmart", "target", "staples", "office", "apple", "best buy", "costco"}},
	{CategoryServices, []string{"subscription", "netflix", "cloud", "hosting", "insurance", "medical", "gym"}},
}

// Resolver assigns a spending category to a vendor. A remembered human
// decision always beats the keyword heuristics.
type Resolver struct {
	memory   VendorMemory
	rules    []CategoryRule
	fallback string
}

// NewResolver creates a Resolver with the default keyword table and the
// "Miscellaneous" sentinel. memory may be nil when no learned mapping exists.
func NewResolver(memory VendorMemory) *Resolver {
	return NewResolverWithRules(memory, defaultRules, CategoryMiscellaneous)
}

// NewResolverWithRules creates a Resolver with a custom table and sentinel
// for testing or alternative deployments.
func NewResolverWithRules(memory VendorMemory, rules []CategoryRule, fallback string) *Resolver {
	return &Resolver{
		memory:   memory,
		rules:    rules,
		fallback: fallback,
	}
}

// NormalizeVendor produces the case-insensitive key used by the memory.
func NormalizeVendor(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}

// Resolve returns the category for a vendor. The learned memory is
// consulted first, then the keyword table against vendor name plus raw
// text, then the sentinel.
func (r *Resolver) Resolve(vendor, rawText string) string {
	if r.memory != nil {
		if cat, ok := r.memory.Lookup(NormalizeVendor(vendor)); ok {
			return cat
		}
	}

	scan := strings.ToLower(vendor + " " + rawText)
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(scan, kw) {
				return rule.Category
			}
		}
	}

	return r.fallback
}
