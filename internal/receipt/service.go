package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/expenso/receipt-organizer/internal/extraction"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Extractor runs the extraction pipeline over one uploaded image.
type Extractor interface {
	Extract(image []byte, contentType string) (*extraction.Record, error)
}

// Service handles receipt operations. Scanning and saving are separate
// steps: every extracted field has a nonzero miss rate, so the dashboard
// shows the guessed record for correction before anything is persisted.
type Service struct {
	db          DB
	extractor   Extractor
	storage     Storage
	backup      Backup // optional
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time
// source. backup may be nil to disable spreadsheet mirroring.
func NewService(db DB, extractor Extractor, storage Storage, backup Backup) *Service {
	return NewServiceWithDeps(db, extractor, storage, backup, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, storage Storage, backup Backup, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		backup:      backup,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	// Keep only alphanumeric, spaces, hyphens, and underscores
	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ScanReceipt stores the uploaded file and runs extraction over it. The
// returned receipt is NOT saved to the database; the caller confirms or
// edits it first and then calls CreateReceipt.
func (s *Service) ScanReceipt(filename string, data []byte, contentType string) (*Receipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	// Phone cameras generate long noisy filenames
	cleanFilename := sanitizeFilename(filename)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	record, err := s.extractor.Extract(data, contentType)
	if err != nil {
		slog.Error("Failed to extract receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Clean up the saved file since extraction failed
		s.storage.Delete(savedPath)
		return nil, err
	}

	return &Receipt{
		ID:          id,
		Vendor:      record.Vendor,
		Total:       record.Total,
		Date:        record.Date,
		Category:    record.Category,
		RawText:     record.RawText,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CreateReceipt persists a confirmed receipt and teaches the vendor memory
// so future scans of the same vendor inherit the chosen category.
func (s *Service) CreateReceipt(receipt *Receipt) error {
	if err := validateReceipt(receipt); err != nil {
		return err
	}

	now := s.timeSource.Now()
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = now
	}
	receipt.UpdatedAt = now

	if err := s.db.SaveReceipt(receipt); err != nil {
		return fmt.Errorf("saving receipt to database: %w", err)
	}

	s.teachVendor(receipt)
	s.pushBackup(receipt)
	return nil
}

// UpdateReceipt applies human edits to a stored receipt and re-teaches the
// vendor memory with the corrected category.
func (s *Service) UpdateReceipt(receipt *Receipt) error {
	if err := validateReceipt(receipt); err != nil {
		return err
	}

	existing, err := s.db.GetReceipt(receipt.ID)
	if err != nil {
		return fmt.Errorf("getting receipt for update: %w", err)
	}

	// File metadata and raw text never change through edits
	receipt.Filename = existing.Filename
	receipt.ContentType = existing.ContentType
	if receipt.RawText == "" {
		receipt.RawText = existing.RawText
	}
	receipt.CreatedAt = existing.CreatedAt
	receipt.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveReceipt(receipt); err != nil {
		return fmt.Errorf("updating receipt in database: %w", err)
	}

	s.teachVendor(receipt)
	s.pushBackup(receipt)
	return nil
}

func validateReceipt(receipt *Receipt) error {
	if receipt.ID == "" {
		return fmt.Errorf("receipt ID is required")
	}
	if receipt.Vendor == "" {
		receipt.Vendor = extraction.UnknownVendor
	}
	if receipt.Total < 0 {
		return fmt.Errorf("total cannot be negative")
	}
	if !extraction.ValidCategory(receipt.Category) {
		return fmt.Errorf("unknown category: %q", receipt.Category)
	}
	return nil
}

// teachVendor records the confirmed vendor→category pair. A failure here
// only costs future guesses, so it is logged rather than returned.
func (s *Service) teachVendor(receipt *Receipt) {
	if receipt.Vendor == "" || receipt.Vendor == extraction.UnknownVendor {
		return
	}
	if err := s.db.RecordVendorCategory(receipt.Vendor, receipt.Category); err != nil {
		slog.Warn("Failed to record vendor category", "vendor", receipt.Vendor, "error", err)
	}
}

// pushBackup mirrors the record to the remote sheet when one is configured.
func (s *Service) pushBackup(receipt *Receipt) {
	if s.backup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.backup.Push(ctx, receipt); err != nil {
		slog.Warn("Failed to push receipt to backup", "id", receipt.ID, "error", err)
	}
}

// RestoreFromBackup replaces local records with the remote copy.
func (s *Service) RestoreFromBackup(ctx context.Context) (int, error) {
	if s.backup == nil {
		return 0, fmt.Errorf("no backup configured")
	}

	receipts, err := s.backup.Pull(ctx)
	if err != nil {
		return 0, fmt.Errorf("pulling from backup: %w", err)
	}

	for _, r := range receipts {
		if err := s.db.SaveReceipt(r); err != nil {
			return 0, fmt.Errorf("restoring receipt %s: %w", r.ID, err)
		}
	}
	return len(receipts), nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// GetSettings returns the stored user preferences
func (s *Service) GetSettings() (*Settings, error) {
	settings, err := s.db.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return settings, nil
}

// SaveSettings validates and stores the user preferences
func (s *Service) SaveSettings(settings *Settings) error {
	if settings.MonthlyBudget < 0 {
		return fmt.Errorf("budget cannot be negative")
	}
	if !ValidCurrency(settings.Currency) {
		return fmt.Errorf("unsupported currency: %q", settings.Currency)
	}
	if err := s.db.SaveSettings(settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Summarize computes the dashboard metrics over all stored receipts.
func (s *Service) Summarize() (*Summary, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	settings, err := s.db.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}

	summary := &Summary{
		ReceiptCount:  len(receipts),
		MonthlyBudget: settings.MonthlyBudget,
		Currency:      settings.Currency,
	}

	categoryCounts := make(map[string]int)
	for _, r := range receipts {
		summary.TotalSpent += r.Total
		if r.Total > summary.BiggestAmount {
			summary.BiggestAmount = r.Total
			summary.BiggestVendor = r.Vendor
		}
		categoryCounts[r.Category]++
	}

	topCount := 0
	for cat, n := range categoryCounts {
		if n > topCount || (n == topCount && cat < summary.TopCategory) {
			topCount = n
			summary.TopCategory = cat
		}
	}

	if settings.MonthlyBudget > 0 {
		progress := summary.TotalSpent / settings.MonthlyBudget
		if progress > 1.0 {
			progress = 1.0
		}
		summary.BudgetProgress = progress
		summary.OverBudget = summary.TotalSpent > settings.MonthlyBudget
	}

	return summary, nil
}
