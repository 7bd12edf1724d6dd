// Package backup mirrors saved expense records to a Google Sheet so they
// survive loss of the local database. It is strictly best-effort plumbing:
// the service layer logs push failures and keeps going.
package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/expenso/receipt-organizer/internal/receipt"
)

// rawTextLimit caps the raw_text column so one receipt cannot blow past
// the spreadsheet cell size limit.
const rawTextLimit = 500

// SheetBackup pushes and pulls receipt rows against a single worksheet.
// Rows are keyed by an owner label so several deployments can share one
// sheet; the label is not an auth boundary.
type SheetBackup struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	owner         string
}

// NewSheetBackup creates a SheetBackup using a service-account credentials
// file.
func NewSheetBackup(ctx context.Context, credentialsFile, spreadsheetID, sheetName, owner string) (*SheetBackup, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	if sheetName == "" {
		sheetName = "receipts"
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetBackup{
		service:       svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		owner:         strings.ToLower(strings.TrimSpace(owner)),
	}, nil
}

// Push appends one receipt as a row. Implements receipt.Backup.
func (s *SheetBackup) Push(ctx context.Context, r *receipt.Receipt) error {
	rawText := r.RawText
	if len(rawText) > rawTextLimit {
		rawText = rawText[:rawTextLimit]
	}

	row := []interface{}{
		r.ID,
		s.owner,
		r.Vendor,
		r.Total,
		r.Date,
		r.Category,
		rawText,
		r.CreatedAt.Format(time.RFC3339),
	}

	rangeName := fmt.Sprintf("%s!A:H", s.sheetName)
	_, err := s.service.Spreadsheets.Values.
		Append(s.spreadsheetID, rangeName, &sheets.ValueRange{
			Values: [][]interface{}{row},
		}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("appending row: %w", err)
	}
	return nil
}

// Pull reads back every row belonging to this backup's owner. Later rows
// win when the same receipt ID appears more than once, matching the
// last-write-wins behavior of Push-on-update.
func (s *SheetBackup) Pull(ctx context.Context) ([]*receipt.Receipt, error) {
	rangeName := fmt.Sprintf("%s!A:H", s.sheetName)
	resp, err := s.service.Spreadsheets.Values.
		Get(s.spreadsheetID, rangeName).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	byID := make(map[string]*receipt.Receipt)
	var order []string
	for _, row := range resp.Values {
		r, owner, ok := rowToReceipt(row)
		if !ok || owner != s.owner {
			continue
		}
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}

	receipts := make([]*receipt.Receipt, 0, len(byID))
	for _, id := range order {
		receipts = append(receipts, byID[id])
	}
	return receipts, nil
}

// rowToReceipt converts one sheet row back into a record. Malformed rows
// (headers, hand-edited junk) are skipped rather than failing the pull.
func rowToReceipt(row []interface{}) (*receipt.Receipt, string, bool) {
	if len(row) < 6 {
		return nil, "", false
	}

	id := cellString(row[0])
	owner := strings.ToLower(strings.TrimSpace(cellString(row[1])))
	if id == "" || owner == "" {
		return nil, "", false
	}

	total, err := strconv.ParseFloat(strings.TrimSpace(cellString(row[3])), 64)
	if err != nil {
		return nil, "", false
	}

	r := &receipt.Receipt{
		ID:       id,
		Vendor:   cellString(row[2]),
		Total:    total,
		Date:     cellString(row[4]),
		Category: cellString(row[5]),
	}
	if len(row) > 6 {
		r.RawText = cellString(row[6])
	}
	if len(row) > 7 {
		if t, err := time.Parse(time.RFC3339, cellString(row[7])); err == nil {
			r.CreatedAt = t
			r.UpdatedAt = t
		}
	}
	return r, owner, true
}

func cellString(v interface{}) string {
	s, _ := v.(string)
	return s
}
