package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pixelgate/pixelgate/internal/storage"
)

var (
	// ErrInvalidAddress marks an image address the service cannot resolve:
	// empty, an unsupported scheme, or an unparsable URI.
	ErrInvalidAddress = errors.New("invalid image address")

	// ErrFetchTimeout marks a remote fetch that exceeded the configured
	// network deadline.
	ErrFetchTimeout = errors.New("image fetch timed out")

	// ErrDownloadFailed covers transport and filesystem failures that are
	// not an upstream HTTP status.
	ErrDownloadFailed = errors.New("image download failed")
)

// StatusError carries a non-success upstream HTTP status so the response
// layer can mirror it to the client.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// Source is a resolved image: its bytes plus the modification time used for
// conditional-request handling. LastModified is zero when no meaningful
// timestamp exists for the address.
type Source struct {
	Data         []byte
	LastModified time.Time
}

// Provider resolves image addresses to bytes. Remote HTTP fetches are cached
// on disk under a root that mirrors the URL path; local paths and object
// store keys are read directly.
type Provider struct {
	logger    *log.Logger
	client    *http.Client
	cacheRoot string
	storage   *storage.Client
}

func New(logger *log.Logger, cacheRoot string, fetchTimeout time.Duration, storageClient *storage.Client) (*Provider, error) {
	if strings.TrimSpace(cacheRoot) == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if fetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch timeout must be positive")
	}

	return &Provider{
		logger: logger,
		client: &http.Client{
			Timeout: fetchTimeout,
		},
		cacheRoot: cacheRoot,
		storage:   storageClient,
	}, nil
}

// Fetch resolves address to bytes. HTTP addresses are served from the disk
// cache when present; a miss downloads, persists, and returns the bytes.
func (p *Provider) Fetch(ctx context.Context, address string) (Source, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Source{}, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	switch {
	case strings.HasPrefix(address, "http://"), strings.HasPrefix(address, "https://"):
		return p.fetchRemote(ctx, address)
	case strings.HasPrefix(address, "s3://"):
		return p.fetchObject(ctx, address)
	case strings.Contains(address, "://"):
		return Source{}, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidAddress, address)
	default:
		return p.fetchLocal(address)
	}
}

// Modified reports the last-known modification time for address without
// fetching its bytes. The second return is false when no timestamp is
// available, e.g. a remote URL that has never been cached.
func (p *Provider) Modified(ctx context.Context, address string) (time.Time, bool) {
	address = strings.TrimSpace(address)

	switch {
	case strings.HasPrefix(address, "http://"), strings.HasPrefix(address, "https://"):
		cachePath, err := p.cachePath(address)
		if err != nil {
			return time.Time{}, false
		}
		info, err := os.Stat(cachePath)
		if err != nil {
			return time.Time{}, false
		}
		return info.ModTime(), true
	case strings.HasPrefix(address, "s3://"):
		key, err := p.objectKey(address)
		if err != nil || p.storage == nil {
			return time.Time{}, false
		}
		info, err := p.storage.StatObject(ctx, key)
		if err != nil {
			return time.Time{}, false
		}
		return info.LastModified, true
	case address == "" || strings.Contains(address, "://"):
		return time.Time{}, false
	default:
		info, err := os.Stat(address)
		if err != nil {
			return time.Time{}, false
		}
		return info.ModTime(), true
	}
}

func (p *Provider) fetchLocal(address string) (Source, error) {
	data, err := os.ReadFile(address)
	if err != nil {
		return Source{}, fmt.Errorf("%w: read %s: %v", ErrDownloadFailed, address, err)
	}

	info, err := os.Stat(address)
	if err != nil {
		return Source{Data: data}, nil
	}
	return Source{Data: data, LastModified: info.ModTime()}, nil
}

func (p *Provider) fetchObject(ctx context.Context, address string) (Source, error) {
	if p.storage == nil {
		return Source{}, fmt.Errorf("%w: object store not configured for %q", ErrInvalidAddress, address)
	}

	key, err := p.objectKey(address)
	if err != nil {
		return Source{}, err
	}

	info, err := p.storage.StatObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Source{}, fmt.Errorf("fetch %s: %w", address, &StatusError{Code: http.StatusNotFound})
		}
		return Source{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	data, err := p.storage.ReadObject(ctx, key)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return Source{Data: data, LastModified: info.LastModified}, nil
}

func (p *Provider) fetchRemote(ctx context.Context, address string) (Source, error) {
	cachePath, err := p.cachePath(address)
	if err != nil {
		return Source{}, err
	}

	if data, err := os.ReadFile(cachePath); err == nil {
		info, statErr := os.Stat(cachePath)
		if statErr != nil {
			return Source{Data: data}, nil
		}
		return Source{Data: data, LastModified: info.ModTime()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Source{}, fmt.Errorf("fetch %s: %w", address, ErrFetchTimeout)
		}
		return Source{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Source{}, fmt.Errorf("fetch %s: %w", address, &StatusError{Code: resp.StatusCode})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return Source{}, fmt.Errorf("fetch %s: %w", address, ErrFetchTimeout)
		}
		return Source{}, fmt.Errorf("%w: read body: %v", ErrDownloadFailed, err)
	}

	p.persist(cachePath, data)

	modified := time.Now()
	if info, err := os.Stat(cachePath); err == nil {
		modified = info.ModTime()
	}
	return Source{Data: data, LastModified: modified}, nil
}

// persist writes the fetched bytes to the cache. Cache writes are best
// effort: a failure degrades to refetching, never to a failed request.
func (p *Provider) persist(cachePath string, data []byte) {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		p.logger.Printf("cache dir create failed path=%s err=%v", cachePath, err)
		return
	}
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		p.logger.Printf("cache write failed path=%s err=%v", cachePath, err)
	}
}

// cachePath maps a URL to its on-disk mirror under the cache root. The URL
// path is cleaned so ".." segments cannot escape the root.
func (p *Provider) cachePath(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("%w: URL has no path: %q", ErrInvalidAddress, address)
	}

	clean := path.Clean("/" + u.Path)
	return filepath.Join(p.cacheRoot, u.Host, filepath.FromSlash(clean)), nil
}

// objectKey extracts the object key from an s3://bucket/key address. The
// bucket must match the configured one; a single client serves one bucket.
func (p *Provider) objectKey(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", fmt.Errorf("%w: expected s3://bucket/key, got %q", ErrInvalidAddress, address)
	}
	if p.storage != nil && u.Host != p.storage.Bucket() {
		return "", fmt.Errorf("%w: bucket %q is not served here", ErrInvalidAddress, u.Host)
	}
	return key, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
