package bot

import (
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"shadybot/pkg/memory"
	"shadybot/pkg/vision"

	"github.com/bwmarrin/discordgo"
)

// Supported image MIME types for vision processing
var supportedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
	"image/gif":  true,
}

var supportedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
}

func isImageAttachment(a *discordgo.MessageAttachment) bool {
	if a.ContentType == "" {
		return supportedImageExtensions[strings.ToLower(filepath.Ext(a.Filename))]
	}
	contentType, _, _ := strings.Cut(a.ContentType, ";")
	return supportedImageTypes[strings.ToLower(strings.TrimSpace(contentType))]
}

// imageCandidates returns the image attachments whose declared size fits the limit.
func (h *Handler) imageCandidates(attachments []*discordgo.MessageAttachment) []vision.Attachment {
	var candidates []vision.Attachment
	for _, a := range attachments {
		if a == nil || !isImageAttachment(a) {
			continue
		}
		if int64(a.Size) > h.config.MaxImageBytes {
			log.Printf("Skipping image %s: too large (%d bytes)", a.Filename, a.Size)
			continue
		}
		candidates = append(candidates, vision.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
		})
	}
	return candidates
}

// visionEnabled reads the vision toggle, falling back to the configured default.
func (h *Handler) visionEnabled() bool {
	def := strconv.FormatBool(h.config.VisionDefault)
	value, err := h.store.GetSetting(h.ctx, memory.SettingVisionEnabled, def)
	if err != nil {
		log.Printf("Error reading vision setting: %v", err)
		return false
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid vision setting %q, using default", value)
		return h.config.VisionDefault
	}
	return enabled
}
