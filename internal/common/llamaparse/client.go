// Package llamaparse talks to the LlamaCloud parsing API: upload a document,
// poll the job, then read the per-page results.
package llamaparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	httpclient "mediguard-agents/internal/common/http"
	"mediguard-agents/internal/common/metrics"
)

const ServiceName = "llamaparse"

// Job states reported by the API.
const (
	StatusPending  = "PENDING"
	StatusSuccess  = "SUCCESS"
	StatusError    = "ERROR"
	StatusCanceled = "CANCELED"
)

type Page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
	MD   string `json:"md"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error_message,omitempty"`
}

type resultResponse struct {
	Pages []Page `json:"pages"`
}

type Client struct {
	baseURL      string
	apiKey       string
	resultType   string
	pollInterval time.Duration
	maxWait      time.Duration
	http         *httpclient.Client
}

func NewClient(cfg config.LlamaParseConfig) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		resultType:   cfg.ResultType,
		pollInterval: config.GetDuration(cfg.PollInterval),
		maxWait:      config.GetDuration(cfg.MaxWait),
		http:         httpclient.NewClient(30 * time.Second),
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	if c.maxWait <= 0 {
		c.maxWait = 90 * time.Second
	}
	if c.resultType == "" {
		c.resultType = "markdown"
	}
	return c
}

// Parse uploads content and returns the page texts (markdown when the
// result type is markdown).
func (c *Client) Parse(ctx context.Context, fileName string, content []byte) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()

	jobID, err := c.upload(ctx, fileName, content)
	metrics.ObserveUpstream(ServiceName, err)
	if err != nil {
		return nil, err
	}
	if err := c.waitForJob(ctx, jobID); err != nil {
		return nil, err
	}

	raw, err := c.http.Get(ctx, c.baseURL+"/api/v1/parsing/job/"+jobID+"/result/json", c.headers())
	metrics.ObserveUpstream(ServiceName, err)
	if err != nil {
		return nil, httpclient.UpstreamError(ServiceName, err)
	}

	var result resultResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.NewParsingError(fileName, fmt.Errorf("decode parse result: %w", err))
	}

	pages := make([]string, 0, len(result.Pages))
	for _, p := range result.Pages {
		text := p.Text
		if c.resultType == "markdown" && p.MD != "" {
			text = p.MD
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func (c *Client) upload(ctx context.Context, fileName string, content []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", errors.NewInternalError(err)
	}
	if _, err := part.Write(content); err != nil {
		return "", errors.NewInternalError(err)
	}
	if err := mw.WriteField("result_type", c.resultType); err != nil {
		return "", errors.NewInternalError(err)
	}
	if err := mw.Close(); err != nil {
		return "", errors.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/parsing/upload", &body)
	if err != nil {
		return "", errors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}

	raw, err := c.http.Fetch(req)
	if err != nil {
		return "", httpclient.UpstreamError(ServiceName, err)
	}

	var job jobResponse
	if err := json.Unmarshal(raw, &job); err != nil || job.ID == "" {
		return "", errors.NewParsingError(fileName, fmt.Errorf("upload response has no job id"))
	}
	return job.ID, nil
}

func (c *Client) waitForJob(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		raw, err := c.http.Get(ctx, c.baseURL+"/api/v1/parsing/job/"+jobID, c.headers())
		metrics.ObserveUpstream(ServiceName, err)
		if err != nil {
			return httpclient.UpstreamError(ServiceName, err)
		}

		var job jobResponse
		if err := json.Unmarshal(raw, &job); err != nil {
			return errors.NewUpstreamError(ServiceName, 0, fmt.Errorf("decode job status: %w", err))
		}

		switch job.Status {
		case StatusSuccess:
			return nil
		case StatusError, StatusCanceled:
			return errors.NewParsingError(jobID, fmt.Errorf("parse job %s: %s", strings.ToLower(job.Status), job.Error))
		}

		select {
		case <-ctx.Done():
			return errors.NewUpstreamTimeoutError(ServiceName, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) headers() map[string]string {
	h := httpclient.Bearer(c.apiKey)
	if h == nil {
		h = map[string]string{}
	}
	h["Accept"] = "application/json"
	return h
}
