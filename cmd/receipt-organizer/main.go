package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/expenso/receipt-organizer/internal/backup"
	"github.com/expenso/receipt-organizer/internal/extraction"
	"github.com/expenso/receipt-organizer/internal/ocr"
	"github.com/expenso/receipt-organizer/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-organizer")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt-organizer.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./receipts", "Storage directory path")
		engineType    = fs.StringLong("ocr", "tesseract", "OCR engine: 'tesseract', 'gemini' or 'ollama'")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary name or path")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language code")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		sheetCreds    = fs.StringLong("sheet-credentials", "", "Service account JSON for Google Sheets backup (optional)")
		sheetID       = fs.StringLong("sheet-id", "", "Spreadsheet ID for Google Sheets backup")
		sheetName     = fs.StringLong("sheet-name", "receipts", "Worksheet name for Google Sheets backup")
		sheetOwner    = fs.StringLong("sheet-owner", "default", "Owner label for rows in the backup sheet")
		restore       = fs.BoolLong("restore", "Restore local records from the backup sheet and exit")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_ORGANIZER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR engine based on type
	var recognizer ocr.Recognizer
	switch *engineType {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...", "binary", *tesseractBin, "lang", *tesseractLang)
		recognizer = ocr.NewTesseract(*tesseractBin, *tesseractLang)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini engine...", "model", *geminiModel)
		recognizer, err = ocr.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama engine...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer, err = ocr.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid OCR engine type", "type", *engineType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	defer recognizer.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Optional spreadsheet backup
	var sheetBackup receipt.Backup
	if *sheetCreds != "" && *sheetID != "" {
		slog.Info("Initializing spreadsheet backup...", "sheet", *sheetName, "owner", *sheetOwner)
		sheetBackup, err = backup.NewSheetBackup(context.Background(), *sheetCreds, *sheetID, *sheetName, *sheetOwner)
		if err != nil {
			slog.Error("Failed to initialize spreadsheet backup", "error", err)
			os.Exit(1)
		}
	}

	// Wire the extraction pipeline: the database doubles as the learned
	// vendor→category memory.
	resolver := extraction.NewResolver(db)
	pipeline := extraction.NewPipeline(recognizer, resolver)

	receiptService := receipt.NewService(db, pipeline, store, sheetBackup)

	if *restore {
		n, err := receiptService.RestoreFromBackup(context.Background())
		if err != nil {
			slog.Error("Restore failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Restore complete", "receipts", n)
		return
	}

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
