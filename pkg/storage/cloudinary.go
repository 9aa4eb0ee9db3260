package storage

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// CloudinaryConfig holds the signed upload credentials.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Endpoint  string
}

// CloudinaryStore uploads documents through Cloudinary's signed upload API.
type CloudinaryStore struct {
	cfg    CloudinaryConfig
	client *http.Client
	now    func() time.Time
}

// NewCloudinaryStore validates credentials and returns a store.
func NewCloudinaryStore(cfg CloudinaryConfig, client *http.Client) (*CloudinaryStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials missing")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.cloudinary.com/v1_1"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &CloudinaryStore{cfg: cfg, client: client, now: time.Now}, nil
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Result    string `json:"result"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload implements BlobStore.
func (s *CloudinaryStore) Upload(ctx context.Context, obj Object) (string, error) {
	publicID := s.publicID(obj.Key)
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"api_key":   s.cfg.APIKey,
		"public_id": publicID,
		"timestamp": timestamp,
		"signature": s.signature(publicID, timestamp),
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	src, err := os.Open(obj.Path)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer src.Close() //nolint:errcheck

	part, err := writer.CreateFormFile("file", path.Base(obj.Key))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return "", fmt.Errorf("copy staged file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/auto/upload", s.cfg.Endpoint, s.cfg.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := s.do(req)
	if err != nil {
		return "", err
	}
	out := res.SecureURL
	if out == "" {
		out = res.URL
	}
	if out == "" {
		return "", fmt.Errorf("cloudinary returned no url for %s", publicID)
	}
	return out, nil
}

// Delete implements BlobStore. Non Cloudinary URLs are ignored.
func (s *CloudinaryStore) Delete(ctx context.Context, assetURL string) error {
	publicID, resourceType, ok := s.parseAssetURL(assetURL)
	if !ok {
		return nil
	}
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	form := url.Values{}
	form.Set("public_id", publicID)
	form.Set("api_key", s.cfg.APIKey)
	form.Set("timestamp", timestamp)
	form.Set("signature", s.signature(publicID, timestamp))

	endpoint := fmt.Sprintf("%s/%s/%s/destroy", s.cfg.Endpoint, s.cfg.CloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build destroy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.do(req)
	if err != nil {
		return err
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("cloudinary destroy %s: result %q", publicID, res.Result)
	}
	return nil
}

func (s *CloudinaryStore) do(req *http.Request) (*cloudinaryResponse, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read cloudinary response: %w", err)
	}

	var out cloudinaryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode cloudinary response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary status %d: %s", resp.StatusCode, out.Error.Message)
	}
	return &out, nil
}

func (s *CloudinaryStore) publicID(key string) string {
	id := strings.TrimSuffix(key, path.Ext(key))
	if s.cfg.Folder != "" {
		id = s.cfg.Folder + "/" + id
	}
	return id
}

// signature follows Cloudinary's scheme: sorted params joined by '&' followed by the secret, SHA-1 hex.
func (s *CloudinaryStore) signature(publicID, timestamp string) string {
	payload := fmt.Sprintf("public_id=%s&timestamp=%s%s", publicID, timestamp, s.cfg.APISecret)
	return fmt.Sprintf("%x", sha1.Sum([]byte(payload))) //nolint:gosec
}

// parseAssetURL extracts the public id and resource type from
// https://res.cloudinary.com/{cloud}/{type}/upload/v{version}/{public_id}.{ext}.
func (s *CloudinaryStore) parseAssetURL(assetURL string) (string, string, bool) {
	u, err := url.Parse(assetURL)
	if err != nil || !strings.HasSuffix(u.Host, "cloudinary.com") {
		return "", "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(segments); i++ {
		if segments[i+1] != "upload" {
			continue
		}
		rest := segments[i+2:]
		if len(rest) > 0 && strings.HasPrefix(rest[0], "v") {
			if _, err := strconv.Atoi(rest[0][1:]); err == nil {
				rest = rest[1:]
			}
		}
		if len(rest) == 0 {
			return "", "", false
		}
		id := strings.Join(rest, "/")
		return strings.TrimSuffix(id, path.Ext(id)), segments[i], true
	}
	return "", "", false
}
