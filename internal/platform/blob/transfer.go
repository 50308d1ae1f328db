// Package blob moves novel text and generated images between the service and
// external object storage. Callers address objects either through presigned
// URLs or through bucket/key pairs resolved against Cloud Storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/storage"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	autoKeyPrefix      = "generated-images/"
	publicURLBase      = "https://storage.googleapis.com"
)

var (
	errNoStorageClient = errors.New("blob: storage client is required")
	errEmptySource     = errors.New("blob: source requires a url or a bucket and key")
	errEmptyObject     = errors.New("blob: object payload is empty")
)

// ErrNoDestination is returned by Upload when the destination names neither a
// presigned URL nor a bucket/key pair and no default bucket is configured.
// Callers treat it as invalid input rather than a transport failure.
var ErrNoDestination = errors.New("blob: destination requires a url, a bucket and key, or a default bucket")

// Source identifies where novel text is read from. URL takes precedence over
// the bucket/key pair when both are set.
type Source struct {
	URL    string
	Bucket string
	Key    string
}

// Destination identifies where a generated image is written. URL is treated
// as a presigned PUT target; otherwise Bucket/Key address Cloud Storage
// directly. Without a bucket the transfer falls back to the configured
// default bucket, generating a key when none was supplied.
type Destination struct {
	URL    string
	Bucket string
	Key    string
}

// Deps carries the collaborators a Transfer needs.
type Deps struct {
	Storage       *storage.Client
	HTTPClient    *http.Client
	DefaultBucket string
	Clock         func() time.Time
}

// Transfer downloads source text and uploads generated images.
type Transfer struct {
	storage       *storage.Client
	httpClient    *http.Client
	defaultBucket string
	now           func() time.Time
}

// NewTransfer constructs a Transfer from its dependencies.
func NewTransfer(deps Deps) (*Transfer, error) {
	if deps.Storage == nil {
		return nil, errNoStorageClient
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Transfer{
		storage:       deps.Storage,
		httpClient:    httpClient,
		defaultBucket: strings.TrimSpace(deps.DefaultBucket),
		now:           clock,
	}, nil
}

// HasDefaultBucket reports whether uploads without an explicit destination
// can land anywhere.
func (t *Transfer) HasDefaultBucket() bool {
	return t.defaultBucket != ""
}

// DownloadText fetches the source object and decodes it to UTF-8 text. A
// charset declared in the download's Content-Type header wins; without one,
// Korean novels are frequently stored as EUC-KR/CP949, so a payload that is
// not valid UTF-8 is re-decoded through the CP949 superset, dropping
// undecodable runs rather than failing.
func (t *Transfer) DownloadText(ctx context.Context, src Source) (string, error) {
	raw, charset, err := t.downloadBytes(ctx, src)
	if err != nil {
		return "", err
	}
	return decodeText(raw, charset), nil
}

func (t *Transfer) downloadBytes(ctx context.Context, src Source) ([]byte, string, error) {
	switch {
	case strings.TrimSpace(src.URL) != "":
		return t.fetchURL(ctx, src.URL)
	case strings.TrimSpace(src.Bucket) != "" && strings.TrimSpace(src.Key) != "":
		data, err := t.readObject(ctx, src.Bucket, src.Key)
		return data, "", err
	default:
		return nil, "", errEmptySource
	}
}

func (t *Transfer) fetchURL(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("blob: build download request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("blob: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("blob: download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("blob: read download body: %w", err)
	}
	return data, headerCharset(resp.Header.Get("Content-Type")), nil
}

// headerCharset extracts the charset parameter from a Content-Type value,
// returning "" when the header carries no usable hint.
func headerCharset(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

func (t *Transfer) readObject(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := t.storage.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob: open gs://%s/%s: %w", bucket, key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("blob: read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Upload writes the image to the destination and returns the URL the stored
// object is reachable at. Presigned destinations report the URL with its
// query string stripped, since the signature parameters are not part of the
// durable object address.
func (t *Transfer) Upload(ctx context.Context, dest Destination, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errEmptyObject
	}
	switch {
	case strings.TrimSpace(dest.URL) != "":
		return t.uploadPresigned(ctx, dest.URL, data, contentType)
	case strings.TrimSpace(dest.Bucket) != "" && strings.TrimSpace(dest.Key) != "":
		return t.writeObject(ctx, dest.Bucket, dest.Key, data, contentType)
	case t.defaultBucket != "":
		key := strings.TrimSpace(dest.Key)
		if key == "" {
			key = t.autoKey(data)
		}
		return t.writeObject(ctx, t.defaultBucket, key, data, contentType)
	default:
		return "", ErrNoDestination
	}
}

func (t *Transfer) uploadPresigned(ctx context.Context, rawURL string, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("blob: build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(data))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return "", fmt.Errorf("blob: upload returned status %d", resp.StatusCode)
	}
	return stripQuery(rawURL), nil
}

func (t *Transfer) writeObject(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	writer := t.storage.Bucket(bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("blob: write gs://%s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("blob: finalise gs://%s/%s: %w", bucket, key, err)
	}
	return fmt.Sprintf("%s/%s/%s", publicURLBase, bucket, key), nil
}

// autoKey derives an object key from the upload time and a small content
// hash. The hash is reduced modulo 10000, so key collisions within the same
// second are possible and simply overwrite the earlier object.
func (t *Transfer) autoKey(data []byte) string {
	hasher := fnv.New32a()
	_, _ = hasher.Write(data)
	return fmt.Sprintf("%s%s_%04d.png", autoKeyPrefix, t.now().Format("20060102_150405"), hasher.Sum32()%10000)
}

func stripQuery(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		if idx := strings.Index(rawURL, "?"); idx >= 0 {
			return rawURL[:idx]
		}
		return rawURL
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

func decodeText(raw []byte, charset string) string {
	normalized := strings.ToLower(strings.TrimSpace(charset))
	if normalized == "utf-8" || normalized == "utf8" {
		return string(raw)
	}
	if normalized == "euc-kr" || normalized == "cp949" || normalized == "ks_c_5601-1987" {
		return decodeEUCKR(raw)
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	return decodeEUCKR(raw)
}

// decodeEUCKR converts CP949 bytes to UTF-8, replacing undecodable sequences
// instead of aborting so a mostly-readable novel still yields usable text.
func decodeEUCKR(raw []byte) string {
	decoded, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
