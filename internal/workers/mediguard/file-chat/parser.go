package filechat

import (
	"context"
	"strings"

	"mediguard-agents/internal/common/logger"
)

// CloudParser turns a document into page texts. *llamaparse.Client implements it.
type CloudParser interface {
	Parse(ctx context.Context, fileName string, content []byte) ([]string, error)
}

// DocumentParser prefers the cloud parser and falls back to decoding the
// bytes as UTF-8.
type DocumentParser struct {
	cloud  CloudParser
	logger logger.Logger
}

// NewDocumentParser accepts a nil cloud parser; every document then takes
// the fallback path.
func NewDocumentParser(cloud CloudParser, log logger.Logger) *DocumentParser {
	return &DocumentParser{cloud: cloud, logger: log}
}

// Extract returns the document text and which path produced it.
func (p *DocumentParser) Extract(ctx context.Context, fileName string, content []byte) (string, string) {
	if p.cloud != nil {
		pages, err := p.cloud.Parse(ctx, fileName, content)
		switch {
		case err != nil:
			p.logger.Warn("cloud parsing failed, falling back to text extraction", map[string]interface{}{
				"fileName": fileName,
				"error":    err.Error(),
			})
		case len(pages) == 0:
			p.logger.Warn("cloud parser returned no content", map[string]interface{}{"fileName": fileName})
		default:
			text := strings.Join(pages, "\n\n")
			p.logger.Info("document parsed", map[string]interface{}{
				"fileName": fileName,
				"chars":    len(text),
			})
			return text, ParsedWithCloud
		}
	}
	return DecodeText(content), ParsedWithFallback
}

// DecodeText decodes b as UTF-8, dropping invalid byte sequences.
func DecodeText(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}
