// Package cloudinary uploads session media to Cloudinary using their REST API.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ResourceType selects the Cloudinary upload endpoint.
type ResourceType string

const (
	Image ResourceType = "image"
	Video ResourceType = "video"
	Raw   ResourceType = "raw"
)

// Valid reports whether t is an upload type Cloudinary accepts.
func (t ResourceType) Valid() bool {
	return t == Image || t == Video || t == Raw
}

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// Client uploads files to one Cloudinary cloud.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	now       func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   defaultBaseURL,
		HTTP:      &http.Client{Timeout: 60 * time.Second},
		now:       time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID     string       `json:"public_id"`
	SecureURL    string       `json:"secure_url"`
	URL          string       `json:"url"`
	Format       string       `json:"format"`
	ResourceType ResourceType `json:"resource_type"`
	Width        int          `json:"width,omitempty"`
	Height       int          `json:"height,omitempty"`
	Duration     float64      `json:"duration,omitempty"`
	Bytes        int          `json:"bytes"`
}

// Upload streams the file to Cloudinary as a signed upload.
func (c *Client) Upload(ctx context.Context, file io.Reader, filename string, rt ResourceType) (*UploadResult, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("cloudinary: unsupported resource type %q", rt)
	}
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cloudinary: close form failed: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/upload", strings.TrimRight(c.BaseURL, "/"), c.CloudName, rt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, string(body))
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	if result.ResourceType == "" {
		result.ResourceType = rt
	}
	return &result, nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file and resource_type are not signed.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
