package bot

import (
	"context"
	"time"
)

const (
	// albumBufferTimeout is how long to wait for more photos before acknowledging an album
	albumBufferTimeout = 1500 * time.Millisecond
	// maxPendingImages caps a single batch
	maxPendingImages = 50
)

// AlbumBuffer collects photos from a Telegram album (MediaGroup) so the
// whole album is acknowledged with one reply.
type AlbumBuffer struct {
	MediaGroupID  string
	Photos        []PendingImage
	Timer         *time.Timer
	FirstReceived time.Time
}

// bufferAlbumPhoto adds a photo to the album buffer and schedules the flush.
// Called from session worker - no locking needed for session state.
func (b *Bot) bufferAlbumPhoto(session *UserSession, photo PendingImage, mediaGroupID string) {
	// Initialize or update album buffer
	if session.albumBuffer == nil || session.albumBuffer.MediaGroupID != mediaGroupID {
		// A different album arrived before the previous one timed out
		b.flushAlbum(session)
		session.albumBuffer = &AlbumBuffer{
			MediaGroupID:  mediaGroupID,
			FirstReceived: time.Now(),
		}
	}

	session.albumBuffer.Photos = append(session.albumBuffer.Photos, photo)

	// Reset or start timer - dispatch through worker channel when done
	if session.albumBuffer.Timer != nil {
		session.albumBuffer.Timer.Stop()
	}

	// Capture buffer reference for timer closure
	albumBuffer := session.albumBuffer
	session.albumBuffer.Timer = time.AfterFunc(albumBufferTimeout, func() {
		// Use context.Background() since the original request context may be cancelled by now
		session.Send(SessionMessage{
			Type:        "album_timeout",
			Ctx:         context.Background(),
			AlbumBuffer: albumBuffer,
		})
	})
}

// processAlbumTimeout handles the album timeout message from the worker channel.
// Called from session worker - no locking needed.
func (b *Bot) processAlbumTimeout(session *UserSession, albumBuffer *AlbumBuffer) {
	// Verify this is still the active album buffer (wasn't replaced or cleared)
	if session.albumBuffer != albumBuffer {
		return
	}
	b.flushAlbum(session)
}

// flushAlbum moves buffered album photos into the pending batch.
func (b *Bot) flushAlbum(session *UserSession) {
	buffer := session.albumBuffer
	if buffer == nil {
		return
	}
	if buffer.Timer != nil {
		buffer.Timer.Stop()
	}
	session.albumBuffer = nil

	added := 0
	for _, photo := range buffer.Photos {
		if !session.addPending(photo) {
			break
		}
		added++
	}

	if added < len(buffer.Photos) {
		session.reply(MsgPhotoLimitReached, maxPendingImages)
	}
	if added > 0 {
		session.reply(MsgAlbumAdded, photos(added), photos(session.PendingCount()))
	}
}
