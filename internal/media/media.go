// Package media resolves opaque image storage references into short-lived
// signed URLs and fetched bytes.
package media

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const maxImageBytes = 20 << 20

var (
	ErrExpired      = errors.New("signed url expired")
	ErrBadSignature = errors.New("signed url signature mismatch")
)

// Resolver signs storage references against a base URL and fetches them.
type Resolver struct {
	baseURL string
	key     []byte
	ttl     time.Duration
	client  *http.Client
	now     func() time.Time
}

// NewResolver creates a resolver. baseURL is the storage endpoint under
// which references live, e.g. "http://localhost:8080/media".
func NewResolver(baseURL, signingKey string, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     []byte(signingKey),
		ttl:     ttl,
		client:  &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

// SignedURL returns a URL for ref valid for the resolver's TTL.
func (r *Resolver) SignedURL(ref string) (string, error) {
	ref, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	if r.baseURL == "" {
		return "", errors.New("storage base url not configured")
	}
	expires := r.now().Add(r.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", r.sign(ref, expires))
	return r.baseURL + "/" + ref + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (r *Resolver) Verify(ref, expires, sig string) error {
	ref, err := cleanRef(ref)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return fmt.Errorf("parse expires: %w", err)
	}
	if r.now().Unix() > exp {
		return ErrExpired
	}
	if !hmac.Equal([]byte(sig), []byte(r.sign(ref, exp))) {
		return ErrBadSignature
	}
	return nil
}

// Fetch downloads ref through a freshly signed URL.
func (r *Resolver) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	u, err := r.SignedURL(ref)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, MediaType(ref, resp.Header.Get("Content-Type"), data), nil
}

func (r *Resolver) sign(ref string, expires int64) string {
	mac := hmac.New(sha256.New, r.key)
	fmt.Fprintf(mac, "%s\n%d", ref, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// MediaType picks an image media type from the response header, the
// reference extension, or the content itself.
func MediaType(ref, header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if mt := mime.TypeByExtension(path.Ext(ref)); strings.HasPrefix(mt, "image/") {
		mt, _, _ = strings.Cut(mt, ";")
		return mt
	}
	return http.DetectContentType(data)
}

func cleanRef(ref string) (string, error) {
	ref = strings.TrimLeft(path.Clean("/"+strings.TrimSpace(ref)), "/")
	if ref == "" || ref == "." {
		return "", errors.New("empty storage reference")
	}
	return ref, nil
}
