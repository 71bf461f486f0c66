package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-garment-bot/internal/garment"
	"github.com/rs/zerolog/log"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// ProcessorFactory builds a batch processor that reports each raw
// description to onRawText.
type ProcessorFactory func(onRawText garment.RawTextHook) *garment.Processor

// Bot is the main Telegram bot handler.
type Bot struct {
	tg           BotAPI
	state        *BotState
	newProcessor ProcessorFactory
	adminID      int64
	allowed      map[int64]bool
}

// NewBot creates a new Bot instance. The admin and allowedIDs may use the
// bot, updates from anyone else are dropped.
func NewBot(tg BotAPI, newProcessor ProcessorFactory, adminID int64, allowedIDs []int64) *Bot {
	bot := &Bot{
		tg:           tg,
		newProcessor: newProcessor,
		adminID:      adminID,
		allowed:      make(map[int64]bool, len(allowedIDs)),
	}
	for _, id := range allowedIDs {
		bot.allowed[id] = true
	}

	bot.state = bot.NewBotState()

	return bot
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) isAllowed(userId int64) bool {
	return userId == b.adminID || b.allowed[userId]
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userId := update.Message.From.ID

	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if !b.isAllowed(userId) {
		log.Debug().Int64("userId", userId).Msg("dropping update from unknown user")
		return
	}

	session := b.state.getUserSession(userId)

	msg := SessionMessage{Ctx: ctx, Message: update.Message}
	switch {
	case len(update.Message.Photo) > 0:
		msg.Type = "photo"
	case update.Message.Document != nil:
		msg.Type = "document"
	default:
		msg.Type = "text"
		msg.Text = update.Message.Text
	}

	log.Info().
		Int64("userId", userId).
		Str("type", msg.Type).
		Str("text", update.Message.Text).
		Msg("got message")

	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
// No mutex locking is needed here since only one goroutine accesses session state.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "photo":
		b.handlePhotoMessage(session, msg.Message)
	case "document":
		b.handleDocumentMessage(session, msg.Message)
	case "text":
		b.handleCommand(ctx, session, msg.Text)
	case "album_timeout":
		b.processAlbumTimeout(session, msg.AlbumBuffer)
	}
}

// handlePhotoMessage adds the largest size of a photo to the pending batch.
func (b *Bot) handlePhotoMessage(session *UserSession, message *tgbotapi.Message) {
	largest := message.Photo[len(message.Photo)-1]
	photo := PendingImage{FileID: largest.FileID}

	if message.MediaGroupID != "" {
		b.bufferAlbumPhoto(session, photo, message.MediaGroupID)
		return
	}

	if !session.addPending(photo) {
		session.reply(MsgPhotoLimitReached, maxPendingImages)
		return
	}
	session.reply(MsgPhotoAdded, photos(session.PendingCount()))
}

// handleDocumentMessage accepts JPEG and PNG images sent as files, which
// Telegram does not recompress.
func (b *Bot) handleDocumentMessage(session *UserSession, message *tgbotapi.Message) {
	doc := message.Document
	if doc.MimeType != "image/jpeg" && doc.MimeType != "image/png" {
		session.reply(MsgUnsupportedDocument)
		return
	}

	img := PendingImage{FileID: doc.FileID, Name: doc.FileName}
	if message.MediaGroupID != "" {
		b.bufferAlbumPhoto(session, img, message.MediaGroupID)
		return
	}

	if !session.addPending(img) {
		session.reply(MsgPhotoLimitReached, maxPendingImages)
		return
	}
	session.reply(MsgPhotoAdded, photos(session.PendingCount()))
}

// handleCommand processes bot commands.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, text string) {
	command, _ := parseCommand(strings.TrimSpace(text))
	switch command {
	case "/start", "/help":
		session.reply(MsgStartPrompt)
	case "/done":
		b.flushAlbum(session)
		b.handleDone(ctx, session)
	case "/clear":
		session.reset()
		session.reply(MsgPhotosRemoved)
	case "/count":
		b.flushAlbum(session)
		session.reply(MsgPendingCount, photos(session.PendingCount()))
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		session.reply(MsgSendPhotosOrDone)
	}
}

// handleDone downloads the pending images, runs them through the garment
// pipeline and replies with per-image results and the spreadsheet. On
// failure the pending images are kept so the user can retry.
func (b *Bot) handleDone(ctx context.Context, session *UserSession) {
	pending := session.pendingImages()
	if len(pending) == 0 {
		session.reply(MsgNoPhotos)
		return
	}

	userId := session.userId
	StartBatchLog(userId, len(pending))
	session.reply(MsgProcessing, photos(len(pending)))

	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go session.startTypingLoop(typingCtx)

	uploads := make([]garment.Upload, 0, len(pending))
	for _, p := range pending {
		data, err := downloadFileID(ctx, b.tg.GetFileDirectURL, p.FileID)
		if err != nil {
			log.Error().Err(err).Int64("userId", userId).Str("image", p.Name).Msg("failed to download image")
			LogError(userId, "download %s: %v", p.Name, err)
			session.reply(MsgDownloadFailed, escapeMarkdown(p.Name), escapeMarkdown(err.Error()))
			return
		}
		uploads = append(uploads, garment.Upload{Name: p.Name, Data: data})
	}

	processor := b.newProcessor(func(image, text string) {
		LogLLM(userId, "%s: %s", image, text)
		session.replyPlain(fmt.Sprintf(MsgRawText, image, text))
	})

	table, err := processor.Process(ctx, uploads)
	if err != nil {
		LogError(userId, "batch failed: %v", err)
		session.reply(MsgBatchFailed, escapeMarkdown(err.Error()))
		return
	}

	for i, rec := range table.Records {
		LogResult(userId, "%s [%s] %s", rec.Image, rec.Tier, strings.Join(rec.Fields.Values(), " | "))
		session.reply(MsgRecordSummary, recordSummaryArgs(i+1, rec)...)
	}

	var buf bytes.Buffer
	if err := garment.WriteXLSX(&buf, table); err != nil {
		LogError(userId, "export failed: %v", err)
		session.replyWithError(fmt.Errorf("export failed: %w", err))
		return
	}
	session.replyWithDocument(garment.ExportFilename, buf.Bytes(), fmt.Sprintf(MsgExportCaption, photos(table.Len())))

	session.reset()
	LogInternal(userId, "batch complete, cost $%.4f", table.Usage.CostUSD)
	if table.Usage.CostUSD > 0 {
		session.reply(MsgBatchDoneCost, photos(table.Len()), table.Usage.CostUSD)
	} else {
		session.reply(MsgBatchDone, photos(table.Len()))
	}
}

// recordSummaryArgs returns the MsgRecordSummary arguments for one record.
func recordSummaryArgs(n int, rec garment.Record) []any {
	args := []any{n, escapeMarkdown(rec.Image)}
	for _, v := range rec.Fields.Values() {
		args = append(args, escapeMarkdown(v))
	}
	return args
}
