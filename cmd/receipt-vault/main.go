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

	"github.com/zombor/receipt-vault/internal/receipt"
	"github.com/zombor/receipt-vault/internal/scanning"
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

	fs := ff.NewFlagSet("receipt-vault")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt-vault.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./receipts", "Image storage directory (local backend)")
		blobBackend   = fs.StringLong("blob-backend", "local", "Image storage backend: 'local' or 's3'")
		s3Bucket      = fs.StringLong("s3-bucket", "", "S3 bucket for receipt images")
		s3Region      = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3Prefix      = fs.StringLong("s3-prefix", "receipts", "S3 key prefix")
		s3Endpoint    = fs.StringLong("s3-endpoint", "", "S3 compatible endpoint URL (optional)")
		exportDir     = fs.StringLong("export-dir", "./exports", "Directory for exported receipt images (empty disables export)")
		exportWorkers = fs.IntLong("export-workers", 2, "Number of concurrent export workers")
		scannerType   = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat     = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_VAULT"),
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

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config{
		port:          *port,
		dbPath:        *dbPath,
		storagePath:   *storagePath,
		blobBackend:   *blobBackend,
		s3:            receipt.S3Config{Bucket: *s3Bucket, Region: *s3Region, Prefix: *s3Prefix, Endpoint: *s3Endpoint},
		exportDir:     *exportDir,
		exportWorkers: *exportWorkers,
		scannerType:   *scannerType,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		basicAuth:     receipt.BasicAuth{Username: *authUser, Password: *authPass},
	}); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

type config struct {
	port          int
	dbPath        string
	storagePath   string
	blobBackend   string
	s3            receipt.S3Config
	exportDir     string
	exportWorkers int
	scannerType   string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	basicAuth     receipt.BasicAuth
}

func run(ctx context.Context, cfg config) error {
	slog.Info("Initializing database...", "path", cfg.dbPath)
	db, err := receipt.NewBoltDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	extractor, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	defer extractor.Close()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	var exporter receipt.Exporter
	if cfg.exportDir != "" {
		slog.Info("Initializing exporter...", "dir", cfg.exportDir, "workers", cfg.exportWorkers)
		dir, err := receipt.NewDirExporter(cfg.exportDir)
		if err != nil {
			return fmt.Errorf("initializing exporter: %w", err)
		}
		async, err := receipt.NewAsyncExporter(dir, cfg.exportWorkers)
		if err != nil {
			return fmt.Errorf("initializing exporter: %w", err)
		}
		defer async.Close()
		exporter = async
	}

	service := receipt.NewService(db, extractor, blobs, exporter)
	server := receipt.NewServer(service, cfg.basicAuth)

	if cfg.basicAuth.Username != "" || cfg.basicAuth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.basicAuth.Username)
	}

	return server.Start(ctx, fmt.Sprintf(":%d", cfg.port))
}

func newExtractor(cfg config) (scanning.Extractor, error) {
	switch cfg.scannerType {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required, set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		extractor, err := scanning.NewGemini(apiKey, cfg.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return extractor, nil
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		extractor, err := scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return extractor, nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q, want gemini or ollama", cfg.scannerType)
	}
}

func newBlobStore(ctx context.Context, cfg config) (receipt.BlobStore, error) {
	switch cfg.blobBackend {
	case "local":
		slog.Info("Initializing local storage...", "path", cfg.storagePath)
		store, err := receipt.NewLocalStorage(cfg.storagePath)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		return store, nil
	case "s3":
		if cfg.s3.Bucket == "" {
			return nil, fmt.Errorf("--s3-bucket is required for the s3 backend")
		}
		slog.Info("Initializing S3 storage...", "bucket", cfg.s3.Bucket, "region", cfg.s3.Region)
		store, err := receipt.NewS3Storage(ctx, cfg.s3)
		if err != nil {
			return nil, fmt.Errorf("initializing s3 storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid blob backend %q, want local or s3", cfg.blobBackend)
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q, want text or json", format)
	}
}
