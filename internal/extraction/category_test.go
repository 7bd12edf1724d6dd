package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeMemory is an in-memory VendorMemory for tests
type fakeMemory struct {
	entries map[string]string
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{entries: make(map[string]string)}
}

func (m *fakeMemory) Lookup(vendor string) (string, bool) {
	cat, ok := m.entries[vendor]
	return cat, ok
}

var _ = Describe("Resolver", func() {
	var (
		memory   *fakeMemory
		resolver *Resolver
		vendor   string
		rawText  string
		category string
	)

	BeforeEach(func() {
		memory = newFakeMemory()
		resolver = NewResolver(memory)
		rawText = ""
	})

	JustBeforeEach(func() {
		category = resolver.Resolve(vendor, rawText)
	})

	When("the vendor exists in the learned memory", func() {
		BeforeEach(func() {
			vendor = "Joe's Diner"
			memory.entries["joe's diner"] = CategoryFoodDining
		})

		It("returns the remembered category", func() {
			Expect(category).To(Equal(CategoryFoodDining))
		})
	})

	When("the memory entry disagrees with the keyword table", func() {
		BeforeEach(func() {
			// "shell" would keyword-match Travel, but a human said otherwise
			vendor = "Shell Select"
			memory.entries["shell select"] = CategoryGroceries
		})

		It("prefers the human decision", func() {
			Expect(category).To(Equal(CategoryGroceries))
		})
	})

	When("the vendor name differs from the memory key only by case", func() {
		BeforeEach(func() {
			vendor = "  JOE'S DINER  "
			memory.entries["joe's diner"] = CategoryFoodDining
		})

		It("still finds the entry", func() {
			Expect(category).To(Equal(CategoryFoodDining))
		})
	})

	When("the vendor is absent from memory but a keyword matches", func() {
		BeforeEach(func() {
			vendor = "Starbucks #4411"
		})

		It("falls back to the keyword table", func() {
			Expect(category).To(Equal(CategoryFoodDining))
		})
	})

	When("the keyword appears only in the raw text", func() {
		BeforeEach(func() {
			vendor = "JD #112"
			rawText = "JD #112\n1x burger meal 8.99\nTotal: 8.99"
		})

		It("scans vendor and raw text together", func() {
			Expect(category).To(Equal(CategoryFoodDining))
		})
	})

	When("keywords from several categories match", func() {
		BeforeEach(func() {
			// "cafe" (Food & Dining) and "hotel" (Travel) both appear
			vendor = "Grand Hotel Cafe"
		})

		It("lets the earlier table entry win", func() {
			Expect(category).To(Equal(CategoryFoodDining))
		})
	})

	When("no keyword matches", func() {
		BeforeEach(func() {
			vendor = "Bob's Widgets"
			rawText = "Bob's Widgets\nwidget 3.00"
		})

		It("returns the sentinel", func() {
			Expect(category).To(Equal(CategoryMiscellaneous))
		})
	})

	When("the resolver has no memory at all", func() {
		BeforeEach(func() {
			resolver = NewResolver(nil)
			vendor = "Uber Trip"
		})

		It("uses the keyword table", func() {
			Expect(category).To(Equal(CategoryTravel))
		})
	})

	When("a custom sentinel is configured", func() {
		BeforeEach(func() {
			resolver = NewResolverWithRules(memory, nil, "Uncategorized")
			vendor = "Bob's Widgets"
		})

		It("returns the configured sentinel", func() {
			Expect(category).To(Equal("Uncategorized"))
		})
	})
})

var _ = Describe("ValidCategory", func() {
	It("accepts every member of the enumeration", func() {
		for _, c := range Categories() {
			Expect(ValidCategory(c)).To(BeTrue())
		}
	})

	It("rejects labels outside the enumeration", func() {
		Expect(ValidCategory("Gadgets")).To(BeFalse())
		Expect(ValidCategory("")).To(BeFalse())
	})
})
