package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-garment-bot/config"
	"github.com/raine/telegram-garment-bot/internal/bot"
	"github.com/raine/telegram-garment-bot/internal/garment"
	"github.com/raine/telegram-garment-bot/internal/llm"
	"github.com/raine/telegram-garment-bot/internal/metrics"
	"github.com/raine/telegram-garment-bot/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "telegram-garment-bot.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing env file
	config.LoadEnvFile()

	// Check if required config is missing
	if missing := config.CheckRequired(true); len(missing) > 0 {
		if bot.IsInteractiveTerminal() {
			// Interactive terminal - run setup wizard
			if !bot.RunSetupWizard(true) {
				bot.WaitOnWindows()
				os.Exit(1)
			}
		} else {
			// Non-interactive (systemd, k8s, etc.) - fail with clear error
			bot.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	cfg, err := config.Load()
	if err != nil {
		bot.FatalWithWait("invalid config: %v", err)
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		// Local development: log to both stderr and file
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			bot.FatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		multiWriter := io.MultiWriter(consoleWriter, fileWriter)
		log.Logger = log.Output(multiWriter)

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		bot.FatalWithWait("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	// Register bot commands for Telegram's command menu
	bot.RegisterCommands(tg)

	// Initialize description cache
	store, err := storage.NewSQLiteStore(cfg.CachePath)
	if err != nil {
		bot.FatalWithWait("failed to initialize description cache: %v", err)
	}
	defer store.Close()
	log.Info().Str("cachePath", cfg.CachePath).Msg("description cache initialized")

	// Initialize batch log (writes batch_<user>.log files in current directory)
	if err := bot.InitBatchLog("."); err != nil {
		log.Warn().Err(err).Msg("failed to initialize batch log")
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	describer, err := llm.NewDescriber(ctx, cfg)
	if err != nil {
		bot.FatalWithWait("failed to initialize describer: %v", err)
	}
	cached := llm.NewCachedDescriber(describer, store)
	log.Info().Str("describer", cached.Name()).Msg("describer initialized")

	m := metrics.New()
	newProcessor := processorFactory(cfg, cached, m)

	g, ctx := errgroup.WithContext(ctx)

	// Run bot update loop
	g.Go(func() error {
		return runBot(ctx, tg, newProcessor, cfg)
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return m.Serve(ctx, cfg.MetricsAddr)
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func processorFactory(cfg *config.Config, describer llm.Describer, m *metrics.Collector) bot.ProcessorFactory {
	var extractorOpts []garment.Option
	if !cfg.QuotedBrand {
		extractorOpts = append(extractorOpts, garment.WithoutQuotedBrand())
	}
	extractor := garment.NewExtractor(extractorOpts...)
	submitter := garment.NewSubmitter(describer, cfg.ImageMaxWidth)

	return func(onRawText garment.RawTextHook) *garment.Processor {
		return garment.NewProcessor(submitter,
			garment.WithExtractor(extractor),
			garment.WithMetrics(m),
			garment.WithRawTextHook(onRawText),
		)
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, newProcessor bot.ProcessorFactory, cfg *config.Config) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	b := bot.NewBot(tg, newProcessor, cfg.AdminID, cfg.AllowedIDs)
	defer b.Shutdown()

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
