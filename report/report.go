package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/service/stats"
	"github.com/viant/triage/service/surge"
)

// Report is a point-in-time summary of a run.
type Report struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Days        []stats.Bucket  `json:"days"`
	Totals      stats.Bucket    `json:"totals"`
	Progress    progress.Counts `json:"progress"`
	Episodes    []surge.Episode `json:"episodes,omitempty"`
	Pools       []pool.Stats    `json:"pools,omitempty"`
}

// Service writes and reads reports.
type Service struct {
	fs afs.Service
}

// New creates a report service; a nil fs uses afs.New().
func New(fs afs.Service) *Service {
	if fs == nil {
		fs = afs.New()
	}
	return &Service{fs: fs}
}

// Export writes r as JSON to URL.
func (s *Service) Export(ctx context.Context, URL string, r *Report) error {
	if r == nil {
		return fmt.Errorf("report was nil")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload report to %s: %w", URL, err)
	}
	return nil
}

// Load reads a report previously written by Export.
func (s *Service) Load(ctx context.Context, URL string) (*Report, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download report %s: %w", URL, err)
	}
	ret := &Report{}
	if err = json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", URL, err)
	}
	return ret, nil
}

// ExportWorkbook writes r as an Excel workbook to URL.
func (s *Service) ExportWorkbook(ctx context.Context, URL string, r *Report) error {
	data, err := Workbook(r)
	if err != nil {
		return err
	}
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload workbook to %s: %w", URL, err)
	}
	return nil
}
