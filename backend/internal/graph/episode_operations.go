package graph

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ============================================================================
// Episode Operations
// ============================================================================

// episodePreviewLength bounds the content preview stored on an episode node
const episodePreviewLength = 500

// truncatePreview trims content to the preview length without splitting a
// multi-byte rune
func truncatePreview(content string) string {
	if len(content) <= episodePreviewLength {
		return content
	}
	cut := episodePreviewLength
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// CreateEpisode records a provenance node for one ingested document or
// chunk, so extracted entities can be traced back to their source. Chat
// messages are not a complete information unit and get no episode.
func (r *Repository) CreateEpisode(ctx context.Context, content, source, sourcePath, title string, scope Scope, ownerID string) (string, error) {
	preview := truncatePreview(content)

	props := map[string]interface{}{
		"content_preview": preview,
		"source":          source,
	}
	if sourcePath != "" {
		props["source_path"] = sourcePath
	}
	if title != "" {
		props["title"] = title
	}

	id, err := r.CreateEntity(ctx, EntityEpisode, props, scope, ownerID)
	if err != nil {
		return "", err
	}

	r.logger.Debug("episode created",
		zap.String("id", id),
		zap.String("source", source),
	)
	return id, nil
}
