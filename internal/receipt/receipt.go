package receipt

import (
	"context"
	"time"
)

// Receipt represents a stored expense record plus file metadata.
type Receipt struct {
	ID          string    `json:"id"`
	Vendor      string    `json:"vendor"`
	Total       float64   `json:"total"`
	Date        string    `json:"date"` // DD/MM/YY
	Category    string    `json:"category"`
	RawText     string    `json:"raw_text"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Settings holds the user preferences the dashboard edits.
type Settings struct {
	MonthlyBudget float64 `json:"monthly_budget"`
	Currency      string  `json:"currency"`
}

// Currencies the settings endpoint accepts.
var Currencies = []string{"USD", "RON", "EUR", "GBP", "CAD"}

// ValidCurrency reports whether code is a supported display currency.
func ValidCurrency(code string) bool {
	for _, c := range Currencies {
		if c == code {
			return true
		}
	}
	return false
}

// Summary carries the dashboard metrics computed over all stored receipts.
type Summary struct {
	TotalSpent     float64 `json:"total_spent"`
	ReceiptCount   int     `json:"receipt_count"`
	BiggestVendor  string  `json:"biggest_vendor"`
	BiggestAmount  float64 `json:"biggest_amount"`
	TopCategory    string  `json:"top_category"`
	MonthlyBudget  float64 `json:"monthly_budget"`
	BudgetProgress float64 `json:"budget_progress"` // 0..1, capped
	OverBudget     bool    `json:"over_budget"`
	Currency       string  `json:"currency"`
}

// Backup mirrors saved records to a remote store. Implementations are
// best-effort: the service logs push failures and moves on.
type Backup interface {
	Push(ctx context.Context, r *Receipt) error
	Pull(ctx context.Context) ([]*Receipt, error)
}
