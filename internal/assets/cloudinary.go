package assets

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cloudinary stores images in a Cloudinary folder using their REST API.
// Each key maps to a fixed public_id so uploads overwrite in place.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	APIBase   string
	HTTP      *http.Client
	// MissTTL is how long a key found absent is answered from memory.
	MissTTL time.Duration

	mu   sync.RWMutex
	urls map[string]cachedURL
	now  func() time.Time
}

// cachedURL is a lookup result; an empty url with an expiry marks an absent image.
type cachedURL struct {
	url     string
	expires time.Time
}

// NewCloudinary creates a Cloudinary store.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		APIBase:   "https://api.cloudinary.com",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		MissTTL:   5 * time.Minute,
		urls:      map[string]cachedURL{},
		now:       time.Now,
	}
}

// uploadResult holds the fields we read from upload and resource responses.
type uploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int    `json:"bytes"`
}

func (c *Cloudinary) publicID(key string) string {
	if c.Folder == "" {
		return key
	}
	return c.Folder + "/" + key
}

func (c *Cloudinary) endpoint(parts ...string) string {
	return strings.TrimRight(c.APIBase, "/") + "/v1_1/" + c.CloudName + "/" + strings.Join(parts, "/")
}

// Save uploads the image under the key's public_id, replacing any earlier one.
func (c *Cloudinary) Save(ctx context.Context, key, ext string, r io.Reader) (string, error) {
	params := map[string]string{
		"timestamp":  strconv.FormatInt(time.Now().Unix(), 10),
		"public_id":  c.publicID(key),
		"overwrite":  "true",
		"invalidate": "true",
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.APIKey

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", "upload."+ext)
	if err != nil {
		return "", fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("image", "upload"), &buf)
	if err != nil {
		return "", fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result uploadResult
	if _, err := c.do(req, &result); err != nil {
		return "", err
	}
	c.remember(key, result.SecureURL)
	return result.SecureURL, nil
}

// URL looks the key's image up through the Admin API, or "" when absent.
// Hits are remembered for the life of the process, misses for MissTTL.
func (c *Cloudinary) URL(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	cached, ok := c.urls[key]
	c.mu.RUnlock()
	if ok && (cached.expires.IsZero() || c.now().Before(cached.expires)) {
		return cached.url, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint("resources", "image", "upload", c.publicID(key)), nil)
	if err != nil {
		return "", fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.SetBasicAuth(c.APIKey, c.APISecret)

	var result uploadResult
	status, err := c.do(req, &result)
	if status == http.StatusNotFound {
		c.forget(key)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	c.remember(key, result.SecureURL)
	return result.SecureURL, nil
}

// Remove destroys the key's image. A missing image is not an error.
func (c *Cloudinary) Remove(ctx context.Context, key string) error {
	params := map[string]string{
		"timestamp":  strconv.FormatInt(time.Now().Unix(), 10),
		"public_id":  c.publicID(key),
		"invalidate": "true",
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.APIKey

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("image", "destroy"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result struct {
		Result string `json:"result"`
	}
	if _, err := c.do(req, &result); err != nil {
		return err
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("cloudinary: destroy %s: %s", key, result.Result)
	}
	c.forget(key)
	return nil
}

func (c *Cloudinary) remember(key, u string) {
	c.mu.Lock()
	c.urls[key] = cachedURL{url: u}
	c.mu.Unlock()
}

// forget records key as absent until MissTTL passes.
func (c *Cloudinary) forget(key string) {
	c.mu.Lock()
	c.urls[key] = cachedURL{expires: c.now().Add(c.MissTTL)}
	c.mu.Unlock()
}

func (c *Cloudinary) do(req *http.Request, out any) (int, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("cloudinary: %s failed (%d): %s", req.URL.Path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return resp.StatusCode, nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file and resource_type are not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
