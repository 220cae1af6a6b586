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

	"github.com/mwynn/tillscan/internal/ocr"
	"github.com/mwynn/tillscan/internal/receipt"
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

	fs := ff.NewFlagSet("tillscan")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "tillscan.db", "Review store file path")
		storagePath = fs.StringLong("storage", "./uploads", "Upload storage directory path")
		engineType  = fs.StringLong("engine", "tesseract", "OCR engine: 'tesseract' or 'gemini'")
		language    = fs.StringLong("lang", "eng", "OCR language trained data, e.g. 'eng'")
		poolSize    = fs.IntLong("engine-pool", 2, "Maximum concurrent OCR engine instances")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TILLSCAN"),
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

	slog.Info("Initializing review store...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize review store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	factory, err := engineFactory(*engineType, *language, *geminiKey, *geminiModel)
	if err != nil {
		slog.Error("Failed to configure OCR engine", "engine", *engineType, "error", err)
		os.Exit(1)
	}
	slog.Info("Initializing OCR engine pool...", "engine", *engineType, "size", *poolSize)
	pool, err := ocr.NewPool(*poolSize, factory)
	if err != nil {
		slog.Error("Failed to initialize OCR engine pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := receipt.NewService(db, pool, store)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth)

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

// engineFactory builds the per-pool-slot engine constructor.
func engineFactory(engineType, language, geminiKey, geminiModel string) (func() (ocr.Engine, error), error) {
	switch engineType {
	case "tesseract":
		return func() (ocr.Engine, error) {
			return ocr.NewTesseract(language), nil
		}, nil
	case "gemini":
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		return func() (ocr.Engine, error) {
			return ocr.NewGemini(context.Background(), apiKey, geminiModel)
		}, nil
	default:
		return nil, fmt.Errorf("invalid engine type %q, valid: tesseract or gemini", engineType)
	}
}
