package labels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Brownie44l1/vision-api/internal/model"
)

const cacheKey = "labels:vocabulary"

// Cache stores the vocabulary text between restarts.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

// Loader resolves the vocabulary from, in order: the local file, the cache, the network.
// A network hit is written back to the cache and the local file.
type Loader struct {
	Path    string
	URL     string
	Timeout time.Duration

	logger *log.Logger
	client *http.Client
	cache  Cache
}

func NewLoader(logger *log.Logger, path, url string, timeout time.Duration) *Loader {
	return &Loader{
		Path:    path,
		URL:     url,
		Timeout: timeout,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
	}
}

func (l *Loader) SetCacheClient(cache Cache) {
	l.cache = cache
}

// Load returns the vocabulary or an error wrapping model.ErrSourceUnavailable.
func (l *Loader) Load(ctx context.Context) (*Vocabulary, error) {
	if l.Path != "" {
		vocab, err := l.loadFile()
		if err == nil {
			l.logger.Printf("loaded %d labels from %s\n", vocab.Len(), l.Path)
			return vocab, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Printf("local label file unusable: %v\n", err)
		}
	}

	if l.cache != nil {
		cached, found, err := l.cache.Get(ctx, cacheKey)
		if err != nil {
			l.logger.Printf("cache get error: %v\n", err)
		}
		if found {
			vocab, err := Parse(strings.NewReader(cached))
			if err == nil {
				l.logger.Printf("loaded %d labels from cache\n", vocab.Len())
				return vocab, nil
			}
			l.logger.Printf("cached labels unusable: %v\n", err)
		}
	}

	if l.URL == "" {
		return nil, fmt.Errorf("%w: no label file at %q and no fallback URL", model.ErrSourceUnavailable, l.Path)
	}

	vocab, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	l.logger.Printf("fetched %d labels from %s\n", vocab.Len(), l.URL)
	l.store(ctx, vocab)
	return vocab, nil
}

func (l *Loader) loadFile() (*Vocabulary, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func (l *Loader) fetch(ctx context.Context) (*Vocabulary, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}

	res, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching labels: %v", model.ErrSourceUnavailable, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching labels: unexpected status %s", model.ErrSourceUnavailable, res.Status)
	}

	content, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading labels: %v", model.ErrSourceUnavailable, err)
	}
	return Parse(strings.NewReader(string(content)))
}

func (l *Loader) store(ctx context.Context, vocab *Vocabulary) {
	text := vocab.String() + "\n"

	if l.cache != nil {
		if err := l.cache.Set(ctx, cacheKey, text); err != nil {
			l.logger.Printf("failed to set cache: %v\n", err)
		}
	}

	if l.Path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		l.logger.Printf("failed to create label dir: %v\n", err)
		return
	}
	if err := os.WriteFile(l.Path, []byte(text), 0o644); err != nil {
		l.logger.Printf("failed to write label file: %v\n", err)
	}
}
