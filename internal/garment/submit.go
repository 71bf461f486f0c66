package garment

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/raine/telegram-garment-bot/internal/imaging"
	"github.com/raine/telegram-garment-bot/internal/llm"
)

// Submitter re-encodes an image as JPEG and asks the describer for a
// free-text description.
type Submitter struct {
	describer llm.Describer
	maxWidth  int
}

// NewSubmitter creates a Submitter. maxWidth > 0 downscales wider images
// before upload.
func NewSubmitter(describer llm.Describer, maxWidth int) *Submitter {
	return &Submitter{describer: describer, maxWidth: maxWidth}
}

// Submit returns the raw description of img, or TextNotFound when the
// service replied without usable text. Encoding and transport failures are
// returned as errors.
func (s *Submitter) Submit(ctx context.Context, img image.Image) (string, llm.Usage, error) {
	data, err := imaging.EncodeJPEG(img, s.maxWidth, imaging.DefaultQuality)
	if err != nil {
		return "", llm.Usage{}, err
	}

	desc, err := s.describer.Describe(ctx, data)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("describe image with %s: %w", s.describer.Name(), err)
	}
	if desc == nil || strings.TrimSpace(desc.Text) == "" {
		var usage llm.Usage
		if desc != nil {
			usage = desc.Usage
		}
		return TextNotFound, usage, nil
	}

	return desc.Text, desc.Usage, nil
}
