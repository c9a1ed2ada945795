// Package files downloads uploaded documents from the runtime's file API.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	httpclient "mediguard-agents/internal/common/http"
	"mediguard-agents/internal/common/metrics"
)

const ServiceName = "files"

// File is a downloaded document.
type File struct {
	ID       string
	Name     string
	Content  []byte
	Metadata map[string]interface{}
}

type Client struct {
	baseURL string
	jwt     string
	http    *httpclient.Client
}

func NewClient(cfg config.FilesConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		jwt:     cfg.JWT,
		http:    httpclient.NewClient(config.GetDuration(cfg.Timeout)),
	}
}

// Load fetches the bytes and metadata of fileID. Any failure is a file-load error.
func (c *Client) Load(ctx context.Context, fileID string) (*File, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, errors.NewValidationError("file_id", "file id is empty")
	}
	base := c.baseURL + "/files/" + url.PathEscape(fileID)

	content, err := c.http.Get(ctx, base, httpclient.Bearer(c.jwt))
	metrics.ObserveUpstream(ServiceName, err)
	if err != nil {
		return nil, errors.NewFileLoadError(fileID, err)
	}

	raw, err := c.http.Get(ctx, base+"/metadata", httpclient.Bearer(c.jwt))
	metrics.ObserveUpstream(ServiceName, err)
	if err != nil {
		return nil, errors.NewFileLoadError(fileID, fmt.Errorf("metadata: %w", err))
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.NewFileLoadError(fileID, fmt.Errorf("decode metadata: %w", err))
	}

	return &File{
		ID:       fileID,
		Name:     FileName(fileID, meta),
		Content:  content,
		Metadata: meta,
	}, nil
}

// FileName prefers file_name, then filename, then file_<id>.
func FileName(fileID string, meta map[string]interface{}) string {
	for _, key := range []string{"file_name", "filename"} {
		if name, ok := meta[key].(string); ok && strings.TrimSpace(name) != "" {
			return name
		}
	}
	return "file_" + fileID
}
