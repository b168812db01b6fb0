// Package dataset loads the optional default marker and plan files a new
// session starts from, falling back through candidate names and sources.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// maxDatasetSize bounds a single dataset read
const maxDatasetSize = 16 << 20

// Source fetches named dataset files
type Source interface {
	// Describe names the source in logs
	Describe() string
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Resource is a fetched dataset
type Resource struct {
	Name   string
	Source string
	Data   []byte
}

// DirSource reads datasets from a local directory
type DirSource struct {
	Dir string
}

func (s DirSource) Describe() string { return "dir:" + s.Dir }

func (s DirSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// only plain file names, never paths out of the directory
	p := filepath.Join(s.Dir, filepath.Base(name))
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", engine.ErrResourceUnavailable, name)
		}
		return nil, fmt.Errorf("%w: %v", engine.ErrResourceUnavailable, err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxDatasetSize))
}

// HTTPSource fetches datasets relative to a base URL, bypassing caches
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func (s HTTPSource) Describe() string { return "http:" + s.BaseURL }

func (s HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", engine.ErrResourceUnavailable, err)
	}
	base.Path = path.Join("/", base.Path, path.Base(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrResourceUnavailable, err)
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrResourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", engine.ErrResourceUnavailable, name, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDatasetSize))
}

// Loader tries candidate dataset names across its sources in order
type Loader struct {
	sources []Source
	logger  zerolog.Logger
}

// NewLoader creates a loader over sources, consulted in the given order
func NewLoader(logger zerolog.Logger, sources ...Source) *Loader {
	return &Loader{sources: sources, logger: logger}
}

// Sources returns the configured sources
func (l *Loader) Sources() []Source {
	return l.sources
}

// First returns the first candidate name any source can provide. Every
// candidate is tried against every source before moving on to the next one.
// When nothing is found the error wraps engine.ErrResourceUnavailable.
func (l *Loader) First(ctx context.Context, names ...string) (*Resource, error) {
	for _, name := range names {
		for _, src := range l.sources {
			data, err := src.Fetch(ctx, name)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				l.logger.Debug().Err(err).Str("dataset", name).Str("source", src.Describe()).Msg("dataset not loaded")
				continue
			}
			return &Resource{Name: name, Source: src.Describe(), Data: data}, nil
		}
		l.logger.Warn().Str("dataset", name).Msg("dataset not found in any source")
	}
	return nil, fmt.Errorf("%w: none of %s", engine.ErrResourceUnavailable, strings.Join(names, ", "))
}
