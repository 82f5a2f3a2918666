// Package docservices provides the REST client for the remote PDF services
// API used for document data extraction and document generation.
//
// The API is asset based: callers register an asset to get a presigned upload
// URI, PUT the bytes there, start an operation referencing the asset, then poll
// the job location until it is done and download the result from a presigned
// URI. Control-plane calls carry an API key and a bearer token; presigned
// transfers carry no auth at all.
package docservices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Media types accepted by the services API.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeJSON = "application/json"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrMissingCredentials is returned when the client is used without an API key or access token.
	ErrMissingCredentials = errors.New("missing services API credentials")

	// ErrJobFailed is returned when a job reaches the failed status.
	ErrJobFailed = errors.New("services job failed")

	// ErrJobTimeout is returned when a job does not finish within the poll timeout.
	ErrJobTimeout = errors.New("timed out waiting for services job")
)

// Config holds the configuration for the services API client.
type Config struct {
	Host        string
	ClientID    string
	AccessToken string

	PollInterval time.Duration
	PollTimeout  time.Duration

	// ControlTimeout bounds job control calls; TransferTimeout bounds
	// presigned uploads and downloads.
	ControlTimeout  time.Duration
	TransferTimeout time.Duration
}

// Client talks to the services API.
type Client struct {
	cfg      Config
	control  *http.Client
	transfer *http.Client

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Options {
	return func(o *options) {
		o.Logger = log
	}
}

// New creates a services API client. It fails if credentials are not set.
func New(cfg Config, args ...Options) (*Client, error) {
	if cfg.ClientID == "" || cfg.AccessToken == "" {
		return nil, ErrMissingCredentials
	}

	opts := options{
		Logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if cfg.Host == "" {
		cfg.Host = "https://pdf-services.example.com"
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}
	if cfg.ControlTimeout <= 0 {
		cfg.ControlTimeout = 60 * time.Second
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 300 * time.Second
	}

	return &Client{
		cfg:      cfg,
		control:  &http.Client{Timeout: cfg.ControlTimeout},
		transfer: &http.Client{Timeout: cfg.TransferTimeout},
		log:      opts.Logger,
	}, nil
}

// Asset identifies a registered asset and where to upload its bytes.
type Asset struct {
	AssetID   string `json:"assetID"`
	UploadURI string `json:"uploadUri"`
}

// JobInfo is the poll status document for a running job.
type JobInfo struct {
	Status      string `json:"status"`
	DownloadURI string `json:"downloadUri"`
}

// CreateAsset registers an asset of the given media type and returns its ID
// and presigned upload URI.
func (c *Client) CreateAsset(ctx context.Context, mediaType string) (Asset, error) {
	body, err := json.Marshal(map[string]string{"mediaType": mediaType})
	if err != nil {
		return Asset{}, fmt.Errorf("marshaling asset request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/assets", bytes.NewReader(body))
	if err != nil {
		return Asset{}, fmt.Errorf("creating asset request: %v", err)
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.control.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("creating asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Asset{}, fmt.Errorf("asset creation returned status %d", resp.StatusCode)
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return Asset{}, fmt.Errorf("decoding asset response: %v", err)
	}
	if asset.AssetID == "" || asset.UploadURI == "" {
		return Asset{}, fmt.Errorf("asset response is missing assetID or uploadUri")
	}
	return asset, nil
}

// UploadAsset PUTs the asset bytes to its presigned upload URI.
// Presigned URIs carry their own authorization, so no auth headers are sent.
func (c *Client) UploadAsset(ctx context.Context, uploadURI string, data []byte, mediaType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURI, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating upload request: %v", err)
	}
	req.Header.Set("Content-Type", mediaType)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("uploading asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("asset upload returned status %d", resp.StatusCode)
	}
	return nil
}

// StartExtract starts an extract job for the given asset and returns the job
// location URL to poll.
func (c *Client) StartExtract(ctx context.Context, assetID string) (string, error) {
	return c.startJob(ctx, "/operation/extractpdf", map[string]any{
		"assetID":           assetID,
		"elementsToExtract": []string{"text", "tables", "figures"},
		"includeStyling":    true,
	})
}

// StartDocGen starts a document generation job merging the JSON data asset
// into the template asset, producing a PDF.
func (c *Client) StartDocGen(ctx context.Context, templateAssetID, dataAssetID string) (string, error) {
	return c.startJob(ctx, "/operation/documentgeneration", map[string]any{
		"templateAssetID": templateAssetID,
		"jsonDataAssetID": dataAssetID,
		"outputFormat":    "pdf",
	})
}

func (c *Client) startJob(ctx context.Context, path string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling job request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating job request: %v", err)
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.control.Do(req)
	if err != nil {
		return "", fmt.Errorf("starting job: %w", err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		c.log.Error("Job start gave no location", "path", path, "status", resp.StatusCode)
		return "", fmt.Errorf("job start returned status %d without a Location header", resp.StatusCode)
	}
	return location, nil
}

// PollJob polls the job location until the job is done.
// It returns ErrJobFailed for failed jobs and ErrJobTimeout when the poll
// timeout elapses first.
func (c *Client) PollJob(ctx context.Context, location string) (JobInfo, error) {
	deadline := time.Now().Add(c.cfg.PollTimeout)

	for time.Now().Before(deadline) {
		info, err := c.pollOnce(ctx, location)
		if err != nil {
			return JobInfo{}, err
		}

		switch strings.ToLower(info.Status) {
		case "done":
			return info, nil
		case "failed":
			return JobInfo{}, fmt.Errorf("%w: status %q", ErrJobFailed, info.Status)
		}

		select {
		case <-ctx.Done():
			return JobInfo{}, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}

	return JobInfo{}, ErrJobTimeout
}

func (c *Client) pollOnce(ctx context.Context, location string) (JobInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return JobInfo{}, fmt.Errorf("creating poll request: %v", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.control.Do(req)
	if err != nil {
		return JobInfo{}, fmt.Errorf("polling job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return JobInfo{}, fmt.Errorf("job poll returned status %d", resp.StatusCode)
	}

	var info JobInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return JobInfo{}, fmt.Errorf("decoding job status: %v", err)
	}
	return info, nil
}

// Download streams a presigned URI to the given path.
func (c *Client) Download(ctx context.Context, uri, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("creating download request: %v", err)
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("downloading result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating download directory: %v", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating download file: %v", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("writing download file: %w", err)
	}
	return out.Close()
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.cfg.ClientID)
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
}
