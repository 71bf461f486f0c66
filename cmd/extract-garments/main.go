package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/raine/telegram-garment-bot/config"
	"github.com/raine/telegram-garment-bot/internal/bot"
	"github.com/raine/telegram-garment-bot/internal/garment"
	"github.com/raine/telegram-garment-bot/internal/llm"
	"github.com/raine/telegram-garment-bot/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	output := flag.String("o", garment.ExportFilename, "spreadsheet output path")
	showRaw := flag.Bool("raw", false, "print the raw description of each image")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-o file.xlsx] [-raw] <image|dir>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nExtracts garment details from JPEG and PNG images.\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	if missing := config.CheckRequired(false); len(missing) > 0 {
		if !bot.IsInteractiveTerminal() || !bot.RunSetupWizard(false) {
			fmt.Fprintf(os.Stderr, "Missing required config: %s\n", strings.Join(missing, ", "))
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	paths, err := collectImages(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No JPEG or PNG images found")
		os.Exit(1)
	}

	uploads := make([]garment.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
			os.Exit(1)
		}
		uploads = append(uploads, garment.Upload{Name: filepath.Base(p), Data: data})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, uploads, *output, *showRaw); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, uploads []garment.Upload, output string, showRaw bool) error {
	describer, err := llm.NewDescriber(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(cfg.CachePath)
	if err != nil {
		return err
	}
	defer store.Close()

	var extractorOpts []garment.Option
	if !cfg.QuotedBrand {
		extractorOpts = append(extractorOpts, garment.WithoutQuotedBrand())
	}

	opts := []garment.ProcessorOption{garment.WithExtractor(garment.NewExtractor(extractorOpts...))}
	if showRaw {
		opts = append(opts, garment.WithRawTextHook(func(image, text string) {
			fmt.Printf("=== %s ===\n%s\n\n", image, text)
		}))
	}

	submitter := garment.NewSubmitter(llm.NewCachedDescriber(describer, store), cfg.ImageMaxWidth)
	table, err := garment.NewProcessor(submitter, opts...).Process(ctx, uploads)
	if err != nil {
		return err
	}

	fmt.Println(garment.RenderTable(table))

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := garment.WriteXLSX(f, table); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("\nSaved %d rows to %s\n", table.Len(), output)
	fmt.Printf("Tokens:      %d in / %d out / %d total\n",
		table.Usage.InputTokens, table.Usage.OutputTokens, table.Usage.TotalTokens)
	fmt.Printf("Cost:        $%.6f\n", table.Usage.CostUSD)
	return nil
}

// collectImages expands directories to the JPEG and PNG files directly
// inside them, sorted by name. Files given explicitly are kept in order.
func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !isImage(arg) {
				return nil, fmt.Errorf("%s: not a JPEG or PNG image", arg)
			}
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && isImage(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
