// Package journal persists engine events as JSON-lines segments on any afs
// storage (local files, memory, cloud buckets).
package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/triage/internal/idgen"
	"github.com/viant/triage/telemetry"
)

const segmentExt = ".jsonl"

// Config holds journal configuration
type Config struct {
	// BaseURL is the directory segments are written to.
	BaseURL string `json:"baseURL" yaml:"baseURL"`
	// SegmentSize is the number of events per segment.
	SegmentSize int `json:"segmentSize" yaml:"segmentSize"`
}

// DefaultConfig returns a default journal configuration
func DefaultConfig() Config {
	return Config{BaseURL: "/tmp/triage/journal", SegmentSize: 500}
}

// Option configures the journal.
type Option func(j *Journal)

// WithErrorHandler sets the handler of write failures that happen while
// listening; the engine never sees them.
func WithErrorHandler(fn func(error)) Option {
	return func(j *Journal) {
		j.onError = fn
	}
}

// Journal buffers events and writes full segments.
type Journal struct {
	fs      afs.Service
	config  Config
	onError func(error)

	mu      sync.Mutex
	pending []*telemetry.Event
	segment int
}

var _ telemetry.Listener = (*Journal)(nil)

// New creates a journal, creating the base directory when missing
func New(ctx context.Context, fs afs.Service, config Config, options ...Option) (*Journal, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.SegmentSize <= 0 {
		config.SegmentSize = DefaultConfig().SegmentSize
	}
	if fs == nil {
		fs = afs.New()
	}
	j := &Journal{fs: fs, config: config, onError: func(error) {}}
	for _, opt := range options {
		opt(j)
	}
	exists, _ := fs.Exists(ctx, config.BaseURL)
	if !exists {
		if err := fs.Create(ctx, config.BaseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", config.BaseURL, err)
		}
	}
	return j, nil
}

// OnEvent buffers event and writes a segment once it is full.
func (j *Journal) OnEvent(event *telemetry.Event) {
	j.mu.Lock()
	j.pending = append(j.pending, event)
	full := len(j.pending) >= j.config.SegmentSize
	j.mu.Unlock()
	if full {
		if err := j.Flush(context.Background()); err != nil {
			j.onError(err)
		}
	}
}

// Flush writes buffered events as a new segment.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.Lock()
	events := j.pending
	j.pending = nil
	if len(events) == 0 {
		j.mu.Unlock()
		return nil
	}
	j.segment++
	name := fmt.Sprintf("%08d-%s%s", j.segment, idgen.New(), segmentExt)
	j.mu.Unlock()

	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
	}
	URL := path.Join(j.config.BaseURL, name)
	if err := j.fs.Upload(ctx, URL, file.DefaultFileOsMode, buf); err != nil {
		return fmt.Errorf("failed to upload segment %s: %w", URL, err)
	}
	return nil
}

// Load reads every segment under baseURL in write order.
func Load(ctx context.Context, fs afs.Service, baseURL string) ([]*telemetry.Event, error) {
	if fs == nil {
		fs = afs.New()
	}
	objects, err := fs.List(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	var names []string
	URLs := map[string]string{}
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), segmentExt) {
			continue
		}
		names = append(names, obj.Name())
		URLs[obj.Name()] = obj.URL()
	}
	sort.Strings(names)
	var ret []*telemetry.Event
	for _, name := range names {
		data, err := fs.DownloadWithURL(ctx, URLs[name])
		if err != nil {
			return nil, fmt.Errorf("failed to download segment %s: %w", name, err)
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			event := &telemetry.Event{}
			if err := json.Unmarshal(scanner.Bytes(), event); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event in %s: %w", name, err)
			}
			ret = append(ret, event)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read segment %s: %w", name, err)
		}
	}
	return ret, nil
}
