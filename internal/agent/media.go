package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
	"github.com/nextlevelbuilder/chatterbox/internal/fallback"
	"github.com/nextlevelbuilder/chatterbox/internal/providers"
)

// maxImageBytes is the safety limit for downloaded images (10MB).
const maxImageBytes = 10 * 1024 * 1024

// maxImageSide bounds the longest side sent to the vision model.
const maxImageSide = 1024

const defaultVisionPrompt = "Describe this image in one or two sentences for someone who cannot see it."

// describeImages returns one description per readable image attachment.
// Attachments that fail to download or describe are skipped with a warning.
func (o *Orchestrator) describeImages(ctx context.Context, media []bus.MediaAttachment) []string {
	var out []string
	n := 0
	for _, m := range media {
		if !m.IsImage() {
			continue
		}
		if n >= o.maxImages {
			break
		}
		n++

		img, err := o.loadImage(ctx, m)
		if err != nil {
			o.logger.Warn("vision: failed to load image", "file", m.Filename, "error", err)
			continue
		}
		desc, err := o.describe(ctx, img)
		if err != nil {
			o.logger.Warn("vision: failed to describe image", "file", m.Filename, "error", err)
			continue
		}
		if desc = strings.TrimSpace(desc); desc != "" {
			out = append(out, desc)
		}
	}
	return out
}

func (o *Orchestrator) loadImage(ctx context.Context, m bus.MediaAttachment) (providers.ImageContent, error) {
	if m.Size > maxImageBytes {
		return providers.ImageContent{}, fmt.Errorf("image too large: %d bytes", m.Size)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return providers.ImageContent{}, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return providers.ImageContent{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return providers.ImageContent{}, fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return providers.ImageContent{}, fmt.Errorf("download: %w", err)
	}
	if len(data) > maxImageBytes {
		return providers.ImageContent{}, fmt.Errorf("image too large: more than %d bytes", maxImageBytes)
	}
	return o.downscale(data, m.ContentType), nil
}

// downscale fits the image into maxImageSide and re-encodes it as JPEG.
// Formats the decoder does not know (e.g. webp) are passed through as-is.
func (o *Orchestrator) downscale(data []byte, mime string) providers.ImageContent {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		o.logger.Debug("vision: cannot decode image, sending original", "mime", mime, "error", err)
		return providers.ImageContent{MimeType: mime, Data: data}
	}
	b := img.Bounds()
	if b.Dx() > maxImageSide || b.Dy() > maxImageSide {
		img = imaging.Fit(img, maxImageSide, maxImageSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return providers.ImageContent{MimeType: mime, Data: data}
	}
	return providers.ImageContent{MimeType: "image/jpeg", Data: buf.Bytes()}
}

func (o *Orchestrator) describe(ctx context.Context, img providers.ImageContent) (string, error) {
	prompt := o.visionPrompt
	if prompt == "" {
		prompt = defaultVisionPrompt
	}
	return fallback.Run(ctx, o.retrier, o.visionLadder, func(ctx context.Context, tier string) (string, error) {
		return o.chat(ctx, providers.ChatRequest{
			Model: tier,
			Messages: []providers.Message{{
				Role:    providers.RoleUser,
				Content: prompt,
				Images:  []providers.ImageContent{img},
			}},
			MaxTokens: 300,
		})
	})
}
