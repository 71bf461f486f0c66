package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgVersionInfo   = "Version: %s\nBuilt: %s"
	MsgStartPrompt   = `
		Send me photos of garments. For each photo I'll extract the garment
		type, brand, size, color, fabric and other details.

		Send /done when you're finished to get the results as a spreadsheet.
		/count shows how many photos are waiting and /clear removes them.`
)

// =============================================================================
// Photo collection messages
// =============================================================================

const (
	MsgPhotoAdded          = "Photo added, %s pending. Send more or /done."
	MsgAlbumAdded          = "Added %s, %s pending. Send more or /done."
	MsgPhotoLimitReached   = "You can process at most %d photos at a time. Send /done first."
	MsgUnsupportedDocument = "Only JPEG and PNG images are supported."
	MsgPhotosRemoved       = "Photos removed."
	MsgPendingCount        = "%s pending."
	MsgNoPhotos            = "No photos yet. Send some garment photos first."
	MsgSendPhotosOrDone    = "Send garment photos, or /done to process them."
)

// =============================================================================
// Batch processing messages
// =============================================================================

const (
	MsgProcessing     = "Processing %s..."
	MsgDownloadFailed = "Could not download %s: %s\n\nYour photos are kept, send /done to try again."
	MsgBatchFailed    = "Processing failed: %s\n\nYour photos are kept, send /done to try again."
	MsgExportCaption  = "Garment details for %s"
	MsgBatchDone      = "Done! %s processed."
	MsgBatchDoneCost  = "Done! %s processed. Estimated cost $%.4f."

	// Sent without parse mode, the raw text is arbitrary.
	MsgRawText = "Raw text from API for %s:\n\n%s"

	MsgRecordSummary = `
		*%d. %s*
		Garment Type: %s
		Brand: %s
		Size: %s
		Color: %s
		Fabric: %s
		Additional Characteristics: %s`
)
