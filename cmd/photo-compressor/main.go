package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"photo-compressor-go/internal/archive"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/extractor"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/session"
	"photo-compressor-go/internal/settings"
	"photo-compressor-go/internal/statistics"
	"photo-compressor-go/internal/store"
	"photo-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	verbose      bool
	quiet        bool
	outPath      string
	quality      float64
	maxDimension int
	groupSize    int
	scheduling   string
	port         int
)

var rootCmd = &cobra.Command{
	Use:   "photo-compressor",
	Short: "Batch-compress images and package them into one zip archive",
	Long: `PhotoCompressor shrinks a batch of images at a chosen quality and maximum
dimension and bundles the results into a single zip archive.

Features:
- JPEG re-encoding under a size budget derived from quality
- Downscaling to a maximum dimension with EXIF orientation applied
- Bounded concurrency with per-image fallback to the original bytes
- Local web interface with live progress over WebSocket`,
	SilenceUsage: true,
}

var compressCmd = &cobra.Command{
	Use:   "compress <files|dirs...>",
	Short: "Compress images and write a zip archive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a local web server hosting one in-memory compression session.
Upload images, adjust settings, follow progress on /ws and download the archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show image metadata relevant to compression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	compressCmd.Flags().StringVarP(&outPath, "out", "o", "", "output archive path (default: ./"+archive.DefaultFilename+")")
	compressCmd.Flags().Float64Var(&quality, "quality", settings.DefaultQuality, "target quality fraction (0.1-1.0)")
	compressCmd.Flags().IntVar(&maxDimension, "max-dimension", settings.DefaultMaxDimension, "maximum width or height in pixels")
	compressCmd.Flags().IntVar(&groupSize, "group-size", compressor.DefaultGroupSize, "images compressed concurrently")
	compressCmd.Flags().StringVar(&scheduling, "scheduling", string(compressor.SchedulingGroups), "scheduling mode: groups or pool")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config)")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("quality") {
		cfg.Compression.Quality = quality
	}
	if flags.Changed("max-dimension") {
		cfg.Compression.MaxDimension = maxDimension
	}
	if flags.Changed("group-size") {
		cfg.Compression.GroupSize = groupSize
	}
	if flags.Changed("scheduling") {
		cfg.Compression.Scheduling = scheduling
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	return logger.MustNew(logger.Options{
		Logging: cfg.Logging,
		Verbose: verbose,
		Quiet:   quiet,
	})
}

// newSession builds a session from the loaded configuration.
func newSession(cfg *config.Config, log *logrus.Logger) (*session.Session, error) {
	provider, err := settings.NewProvider(cfg.Compression.Quality, cfg.Compression.MaxDimension)
	if err != nil {
		return nil, err
	}
	engine := compressor.NewDefaultCompressor(cfg.CompressorConfig(), compressor.NewImagingTransformer(log), log)
	return session.New(session.Config{
		Settings:   provider,
		Compressor: engine,
		Archiver:   archive.NewBuilder(cfg.Archive.Filename, log),
		Stats:      statistics.NewStatistics(),
		Logger:     log,
	}), nil
}

func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	files, err := collectImageFiles(cfg, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %v", args)
	}

	blobs := make([]store.Blob, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		blobs = append(blobs, store.Blob{Name: filepath.Base(path), Data: data})
	}

	sess, err := newSession(cfg, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	if !quiet {
		sess.Subscribe(func(ev session.Event) {
			switch ev.Type {
			case session.EventFilesRejected:
				fmt.Fprintf(os.Stderr, "Skipped %d non-image file(s)\n", ev.Count)
			case session.EventCompressionProgress:
				fmt.Fprintf(os.Stderr, "\rCompressing... %d/%d", ev.Done, ev.Total)
				if ev.Done == ev.Total {
					fmt.Fprintln(os.Stderr)
				}
			case session.EventCompressionError:
				fmt.Fprintf(os.Stderr, "\nKept original for %s: %s\n", ev.EntryID, ev.Error)
			}
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := sess.Add(ctx, blobs); err != nil {
		return err
	}

	outcome, err := sess.CompressAndDownload(ctx)
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	dest := outPath
	if dest == "" {
		dest = outcome.Archive.Filename
	}
	if err := os.WriteFile(dest, outcome.Archive.Data, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	if !quiet {
		fmt.Printf("Archive written: %s (%d files)\n", dest, outcome.Archive.Files)
		fmt.Println("\n" + sess.Stats().GetSummary())
	}
	return nil
}

// collectImageFiles expands directories and keeps files with supported extensions.
func collectImageFiles(cfg *config.Config, paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			if cfg.IsImageExtension(filepath.Ext(path)) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	sess, err := newSession(cfg, log)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg, log, sess)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("PhotoCompressor web interface started on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// runInspect prints the metadata that influences compression.
func runInspect(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	log := logrus.New()
	if !verbose {
		log.SetLevel(logrus.WarnLevel)
	}

	fmt.Printf("Inspecting: %s\n", filePath)
	fmt.Printf("Size: %d bytes\n", info.Size())

	md, err := extractor.Extract(filePath,
		extractor.NewExifToolExtractor(log),
		extractor.NewEXIFExtractor(log),
	)
	if err != nil {
		fmt.Printf("No metadata: %v\n", err)
		return nil
	}

	fmt.Printf("Source: %s\n", md.Source)
	fmt.Printf("Orientation: %s (needs transform: %t)\n", md.Orientation, md.Orientation.NeedsTransform())
	if md.Taken != nil {
		fmt.Printf("Taken: %s\n", md.Taken.Format("2006-01-02 15:04:05"))
	}
	if md.Software != "" {
		fmt.Printf("Software: %s\n", md.Software)
	}
	if verbose {
		keys := make([]string, 0, len(md.Fields))
		for k := range md.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, md.Fields[k])
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
