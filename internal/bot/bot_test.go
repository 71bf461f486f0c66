package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-garment-bot/internal/garment"
	"github.com/raine/telegram-garment-bot/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type botApiMock struct {
	mock.Mock
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.Get(0).(string), args.Error(1)
}

// stubDescriber replies with texts in order and counts calls.
type stubDescriber struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (d *stubDescriber) Describe(ctx context.Context, jpegData []byte) (*llm.Description, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	text := ""
	if i < len(d.replies) {
		text = d.replies[i]
	}
	return &llm.Description{Text: text, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CostUSD: 0.001}}, nil
}

func (d *stubDescriber) Name() string { return "stub" }

func setup(t *testing.T, describer llm.Describer) (int64, *botApiMock, *Bot) {
	t.Helper()
	require.NoError(t, InitBatchLog(t.TempDir()))

	userId := int64(1)
	tg := new(botApiMock)
	newProcessor := func(onRawText garment.RawTextHook) *garment.Processor {
		return garment.NewProcessor(garment.NewSubmitter(describer, 0), garment.WithRawTextHook(onRawText))
	}
	bot := NewBot(tg, newProcessor, userId, nil)
	t.Cleanup(bot.Shutdown)

	return userId, tg, bot
}

func makeMessage(userId int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(userId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}

func makeUpdateWithMessageText(userId int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userId},
			Text: text,
		},
	}
}

func makeUpdateWithPhoto(userId int64, fileID, mediaGroupID string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:         &tgbotapi.User{ID: userId},
			MediaGroupID: mediaGroupID,
			Photo: []tgbotapi.PhotoSize{
				{FileID: fileID + "-thumb", Width: 90, Height: 120},
				{FileID: fileID, Width: 960, Height: 1280},
			},
		},
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 20), B: uint8(y * 20), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// captureSends records every Chattable passed to Send.
func captureSends(tg *botApiMock) *[]tgbotapi.Chattable {
	var sent []tgbotapi.Chattable
	tg.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		sent = append(sent, args.Get(0).(tgbotapi.Chattable))
	}).Return(tgbotapi.Message{}, nil)
	return &sent
}

func allowTyping(tg *botApiMock) {
	tg.On("Request", mock.AnythingOfType("tgbotapi.ChatActionConfig")).
		Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()
}

func TestHandleUpdate_UnknownUserIsDropped(t *testing.T) {
	_, tg, bot := setup(t, &stubDescriber{})

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(99999, "/start"))

	tg.AssertNotCalled(t, "Send", mock.Anything)
	assert.Empty(t, bot.state.sessions)
}

func TestHandleUpdate_AllowedUserStart(t *testing.T) {
	require.NoError(t, InitBatchLog(t.TempDir()))
	tg := new(botApiMock)
	bot := NewBot(tg, nil, 1, []int64{5})
	defer bot.Shutdown()

	tg.On("Send", makeMessage(5, formatReplyText(MsgStartPrompt))).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "/start"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_StartWithBotName(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})

	tg.On("Send", makeMessage(userId, formatReplyText(MsgStartPrompt))).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/start@GarmentBot"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_PhotoIsAdded(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})

	tg.On("Send", makeMessage(userId, "Photo added, 1 photo pending. Send more or /done.")).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(userId, "Photo added, 2 photos pending. Send more or /done.")).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(userId, "a", ""))
	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(userId, "b", ""))
	tg.AssertExpectations(t)

	session := bot.state.getUserSession(userId)
	assert.Equal(t, []PendingImage{
		{FileID: "a", Name: "photo_1.jpg"},
		{FileID: "b", Name: "photo_2.jpg"},
	}, session.pendingImages())
}

func TestHandleUpdate_PhotoLimit(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})
	session := bot.state.getUserSession(userId)
	for i := 0; i < maxPendingImages; i++ {
		require.True(t, session.addPending(PendingImage{FileID: fmt.Sprint(i)}))
	}

	tg.On("Send", makeMessage(userId, "You can process at most 50 photos at a time. Send /done first.")).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(userId, "extra", ""))
	tg.AssertExpectations(t)
	assert.Equal(t, maxPendingImages, session.PendingCount())
}

func TestHandleUpdate_ImageDocument(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})

	tg.On("Send", makeMessage(userId, "Photo added, 1 photo pending. Send more or /done.")).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(userId, MsgUnsupportedDocument)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userId},
		Document: &tgbotapi.Document{FileID: "doc1", FileName: "jacket.png", MimeType: "image/png"},
	}})
	bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userId},
		Document: &tgbotapi.Document{FileID: "doc2", FileName: "notes.pdf", MimeType: "application/pdf"},
	}})
	tg.AssertExpectations(t)

	session := bot.state.getUserSession(userId)
	assert.Equal(t, []PendingImage{{FileID: "doc1", Name: "jacket.png"}}, session.pendingImages())
}

func TestHandleUpdate_CountAndClear(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})
	session := bot.state.getUserSession(userId)
	session.addPending(PendingImage{FileID: "1"})
	session.addPending(PendingImage{FileID: "2"})

	tg.On("Send", makeMessage(userId, "2 photos pending.")).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(userId, "Photos removed.")).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(userId, "0 photos pending.")).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/count"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/clear"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/count"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_UnknownText(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})

	tg.On("Send", makeMessage(userId, MsgSendPhotosOrDone)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "hello"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_DoneWithoutPhotos(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})

	tg.On("Send", makeMessage(userId, MsgNoPhotos)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/done"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_AlbumIsAcknowledgedOnce(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})

	tg.On("Send", makeMessage(userId, "Added 2 photos, 2 photos pending. Send more or /done.")).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(userId, "2 photos pending.")).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(userId, "a", "album-1"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(userId, "b", "album-1"))
	tg.AssertNotCalled(t, "Send", mock.Anything)

	// /count flushes the buffered album before answering
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/count"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_AlbumFlushesAfterTimeout(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})

	tg.On("Send", makeMessage(userId, "Added 2 photos, 2 photos pending. Send more or /done.")).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(userId, "a", "album-1"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(userId, "b", "album-1"))

	session := bot.state.getUserSession(userId)
	assert.Eventually(t, func() bool {
		return session.PendingCount() == 2
	}, 3*albumBufferTimeout, 20*time.Millisecond)

	// Barrier so the acknowledgement has been sent
	session.SendSync(SessionMessage{Type: "noop", Ctx: context.Background()})
	tg.AssertExpectations(t)
}

func TestHandleUpdate_StaleAlbumTimeoutIsIgnored(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})
	tg.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	session := bot.state.getUserSession(userId)

	stale := &AlbumBuffer{MediaGroupID: "old", Photos: []PendingImage{{FileID: "x"}}}
	session.SendSync(SessionMessage{Type: "album_timeout", Ctx: context.Background(), AlbumBuffer: stale})

	assert.Equal(t, 0, session.PendingCount())
	tg.AssertNotCalled(t, "Send", mock.Anything)
}

func TestHandleUpdate_Done(t *testing.T) {
	describer := &stubDescriber{replies: []string{
		"Garment Type: Jacket\nBrand: Acme\nSize: M\nColor: Navy\nFabric: Wool\nAdditional Characteristics: Two pockets",
		"",
	}}
	userId, tg, bot := setup(t, describer)

	imageData := pngBytes(t)
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(imageData)
	}))
	defer imageServer.Close()

	tg.On("GetFileDirectURL", "a").Return(imageServer.URL+"/a.png", nil).Once()
	tg.On("GetFileDirectURL", "b").Return(imageServer.URL+"/b.png", nil).Once()
	allowTyping(tg)
	sent := captureSends(tg)

	session := bot.state.getUserSession(userId)
	session.addPending(PendingImage{FileID: "a"})
	session.addPending(PendingImage{FileID: "b"})

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/done"))
	tg.AssertExpectations(t)
	assert.Equal(t, 2, describer.calls)

	require.Len(t, *sent, 7)
	messages := *sent

	assert.Equal(t, makeMessage(userId, "Processing 2 photos..."), messages[0])

	raw1 := messages[1].(tgbotapi.MessageConfig)
	assert.Equal(t, "", raw1.ParseMode)
	assert.True(t, strings.HasPrefix(raw1.Text, "Raw text from API for photo_1.jpg:\n\nGarment Type: Jacket"))
	raw2 := messages[2].(tgbotapi.MessageConfig)
	assert.Equal(t, "Raw text from API for photo_2.jpg:\n\nText not found", raw2.Text)

	summary1 := messages[3].(tgbotapi.MessageConfig)
	assert.Equal(t, "*1. photo\\_1.jpg*\nGarment Type: Jacket\nBrand: Acme\nSize: M\nColor: Navy\nFabric: Wool\nAdditional Characteristics: Two pockets", summary1.Text)
	summary2 := messages[4].(tgbotapi.MessageConfig)
	assert.Contains(t, summary2.Text, "Brand: Not Found")

	doc, ok := messages[5].(tgbotapi.DocumentConfig)
	require.True(t, ok, "expected a document, got %T", messages[5])
	assert.Equal(t, "Garment details for 2 photos", doc.Caption)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, garment.ExportFilename, file.Name)

	f, err := excelize.OpenReader(bytes.NewReader(file.Bytes))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, garment.Columns, rows[0])
	assert.Equal(t, []string{"photo_1.jpg", describer.replies[0], "Jacket", "Acme", "M", "Navy", "Wool", "Two pockets"}, rows[1])
	assert.Equal(t, "Text not found", rows[2][1])

	assert.Equal(t, makeMessage(userId, "Done! 2 photos processed. Estimated cost $0.0020."), messages[6])
	assert.Equal(t, 0, session.PendingCount())
}

func TestHandleUpdate_DoneDownloadFailureKeepsPhotos(t *testing.T) {
	describer := &stubDescriber{}
	userId, tg, bot := setup(t, describer)

	tg.On("GetFileDirectURL", "a").Return("", errors.New("file gone")).Once()
	allowTyping(tg)
	tg.On("Send", makeMessage(userId, "Processing 1 photo...")).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(userId, formatReplyText(MsgDownloadFailed, "photo\\_1.jpg", "failed to get file URL: file gone"))).
		Return(tgbotapi.Message{}, nil).Once()

	session := bot.state.getUserSession(userId)
	session.addPending(PendingImage{FileID: "a"})

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/done"))
	tg.AssertExpectations(t)

	assert.Equal(t, 0, describer.calls)
	assert.Equal(t, 1, session.PendingCount())
}

func TestHandleUpdate_DoneServiceFailureKeepsPhotos(t *testing.T) {
	describer := &stubDescriber{err: errors.New("quota exceeded")}
	userId, tg, bot := setup(t, describer)

	imageData := pngBytes(t)
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(imageData)
	}))
	defer imageServer.Close()

	tg.On("GetFileDirectURL", "a").Return(imageServer.URL+"/a.png", nil).Once()
	allowTyping(tg)
	tg.On("Send", makeMessage(userId, "Processing 1 photo...")).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", mock.MatchedBy(func(msg tgbotapi.MessageConfig) bool {
		return strings.HasPrefix(msg.Text, "Processing failed: ") && strings.Contains(msg.Text, "quota exceeded")
	})).Return(tgbotapi.Message{}, nil).Once()

	session := bot.state.getUserSession(userId)
	session.addPending(PendingImage{FileID: "a"})

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/done"))
	tg.AssertExpectations(t)

	assert.Equal(t, 1, session.PendingCount())
}

func TestRecordSummaryArgs(t *testing.T) {
	rec := garment.Record{
		Image: "my_shirt.jpg",
		Fields: garment.Fields{
			GarmentType:               "Shirt",
			Brand:                     "*Star*",
			Size:                      "L",
			Color:                     "Red",
			Fabric:                    "100% cotton",
			AdditionalCharacteristics: garment.NotFound,
		},
	}

	text := formatReplyText(MsgRecordSummary, recordSummaryArgs(3, rec)...)
	assert.Equal(t, "*3. my\\_shirt.jpg*\nGarment Type: Shirt\nBrand: \\*Star\\*\nSize: L\nColor: Red\nFabric: 100% cotton\nAdditional Characteristics: Not Found", text)
}

func TestRegisterCommands(t *testing.T) {
	tg := new(botApiMock)
	tg.On("Request", mock.MatchedBy(func(c tgbotapi.SetMyCommandsConfig) bool {
		if len(c.Commands) != len(botCommands) {
			return false
		}
		return c.Commands[0].Command == "start" && c.Commands[1].Command == "done"
	})).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

	RegisterCommands(tg)
	tg.AssertExpectations(t)
}

func TestReplyPlain_SplitsLongRawText(t *testing.T) {
	userId, tg, bot := setup(t, &stubDescriber{})
	sent := captureSends(tg)

	text := fmt.Sprintf(MsgRawText, "photo_1.jpg", strings.Repeat("Garment Type: Coat\n", 300))
	bot.state.getUserSession(userId).replyPlain(text)

	require.Len(t, *sent, 2)
	var joined string
	for _, c := range *sent {
		msg := c.(tgbotapi.MessageConfig)
		assert.Equal(t, "", msg.ParseMode)
		assert.LessOrEqual(t, len(msg.Text), maxMessageLength)
		assert.True(t, strings.HasSuffix(msg.Text, "\n"))
		joined += msg.Text
	}
	assert.Equal(t, text, joined)
}
