package garment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/raine/telegram-garment-bot/internal/imaging"
	"github.com/raine/telegram-garment-bot/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Upload is one image supplied by the user.
type Upload struct {
	Name string
	Data []byte
}

// RawTextHook receives the raw description of each image before extraction.
type RawTextHook func(image, text string)

// Processor runs a batch of uploads through the Submitter and Extractor.
type Processor struct {
	submitter *Submitter
	extractor *Extractor
	onRawText RawTextHook
	metrics   *metrics.Collector
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRawTextHook registers a hook called with every raw description.
func WithRawTextHook(hook RawTextHook) ProcessorOption {
	return func(p *Processor) {
		p.onRawText = hook
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *Extractor) ProcessorOption {
	return func(p *Processor) {
		p.extractor = e
	}
}

// WithMetrics records per-image and per-batch counters.
func WithMetrics(m *metrics.Collector) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor creates a Processor.
func NewProcessor(submitter *Submitter, opts ...ProcessorOption) *Processor {
	p := &Processor{submitter: submitter, extractor: defaultExtractor}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles uploads sequentially and returns one record per upload in
// input order. Any decode or submission error aborts the whole batch and no
// table is returned.
func (p *Processor) Process(ctx context.Context, uploads []Upload) (*Table, error) {
	batchID := uuid.NewString()
	logger := log.With().Str("batch", batchID).Logger()
	logger.Info().Int("images", len(uploads)).Msg("processing batch")

	table := &Table{Records: make([]Record, 0, len(uploads))}
	for i, u := range uploads {
		record, err := p.processOne(ctx, u, table)
		if err != nil {
			logger.Error().Err(err).Int("index", i).Str("image", u.Name).Msg("batch aborted")
			p.metrics.ObserveBatch("failed", table.Usage.CostUSD)
			return nil, fmt.Errorf("image %d (%s): %w", i+1, u.Name, err)
		}
		table.Records = append(table.Records, record)

		logger.Info().
			Str("image", u.Name).
			Stringer("tier", record.Tier).
			Strs("notFound", record.NotFoundFields()).
			Msg("extracted garment details")
	}

	p.metrics.ObserveBatch("ok", table.Usage.CostUSD)
	logger.Info().
		Int("images", table.Len()).
		Int64("inputTokens", table.Usage.InputTokens).
		Int64("outputTokens", table.Usage.OutputTokens).
		Float64("costUSD", table.Usage.CostUSD).
		Msg("batch complete")

	return table, nil
}

func (p *Processor) processOne(ctx context.Context, u Upload, table *Table) (Record, error) {
	img, _, err := imaging.Decode(u.Data)
	if err != nil {
		return Record{}, err
	}

	text, usage, err := p.submitter.Submit(ctx, img)
	if err != nil {
		return Record{}, err
	}
	table.Usage = table.Usage.Add(usage)

	if p.onRawText != nil {
		p.onRawText(u.Name, text)
	}

	record := Record{Image: u.Name, Text: text}
	if text == TextNotFound {
		record.Fields = allNotFound()
		record.Tier = TierNone
	} else {
		record.Fields, record.Tier = p.extractor.ExtractTier(text)
	}

	p.metrics.ObserveImage(record.Tier.String(), record.NotFoundFields())
	return record, nil
}
