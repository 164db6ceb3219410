package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/internal/bluesky"
	"github.com/skyrelay/skyrelay/internal/mastodon"
)

// maxImageBytes is the destination's blob size ceiling. Larger images are
// dropped from the embed rather than recompressed.
const maxImageBytes = 1_000_000

// postLink returns the trailing link appended when a status carries
// content that cannot be relayed natively (polls, video, audio).
func postLink(status *mastodon.Status) string {
	if status.Poll != nil {
		return "Poll: " + status.URL
	}
	for _, media := range status.MediaAttachments {
		if media.Type == "video" || media.Type == "gifv" {
			return "Video: " + status.URL
		}
	}
	for _, media := range status.MediaAttachments {
		if media.Type == "audio" {
			return "Audio: " + status.URL
		}
	}
	return ""
}

// spoilerPrefix returns the content-warning prefix applied to every chunk
// of a sensitive status.
func spoilerPrefix(status *mastodon.Status) string {
	if !status.Sensitive {
		return ""
	}
	return "CW: " + status.SpoilerText + "\n\n"
}

// buildRecords turns the chunks of one status into destination records.
// Image attachments are uploaded and embedded on the first record only;
// link and hashtag facets are detected per chunk.
func buildRecords(ctx context.Context, agent Agent, source Source, status *mastodon.Status, chunks []string, logger *zap.Logger) []*bluesky.Record {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	var langs []string
	if status.Language != "" {
		langs = []string{status.Language}
	}

	records := make([]*bluesky.Record, 0, len(chunks))
	for i, chunk := range chunks {
		record := bluesky.NewRecord(chunk, createdAt, langs)
		record.Facets = bluesky.DetectFacets(chunk)
		if i == 0 {
			record.Embed = buildImageEmbed(ctx, agent, source, status, logger)
		}
		records = append(records, record)
	}

	return records
}

func buildImageEmbed(ctx context.Context, agent Agent, source Source, status *mastodon.Status, logger *zap.Logger) *bluesky.Embed {
	var images []bluesky.EmbedImage

	for _, media := range status.MediaAttachments {
		if media.Type != "image" {
			continue
		}

		data, mimeType, err := source.DownloadMedia(ctx, media.URL)
		if err != nil {
			logger.Warn("Could not download attachment",
				zap.String("url", media.URL), zap.Error(err))
			continue
		}
		if mimeType == "" {
			continue
		}
		if len(data) > maxImageBytes {
			logger.Info("Attachment too large for destination, skipping",
				zap.String("url", media.URL), zap.Int("bytes", len(data)))
			continue
		}

		blob, err := agent.UploadBlob(ctx, data, mimeType)
		if err != nil {
			logger.Warn("Could not upload attachment",
				zap.String("url", media.URL), zap.Error(err))
			continue
		}

		width, height := media.Dimensions()
		images = append(images, bluesky.EmbedImage{
			Image:       blob,
			Alt:         media.Description,
			AspectRatio: &bluesky.AspectRatio{Width: width, Height: height},
		})
	}

	if len(images) == 0 {
		return nil
	}
	return &bluesky.Embed{
		Type:   "app.bsky.embed.images",
		Images: images,
	}
}
