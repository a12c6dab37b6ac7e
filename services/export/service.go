// Package export serializes aggregated history into reports. Formatting is
// a pure function over the same time buckets the query endpoints expose;
// nothing here writes to the history store.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/registry"
)

// Config holds export tuning parameters.
type Config struct {
	// MaxDays caps the export window.
	MaxDays int
	// BucketWidth is the aggregation width for report rows.
	BucketWidth time.Duration
}

// ProviderReport is the per-provider section of a report.
type ProviderReport struct {
	Provider models.Provider     `json:"provider"`
	Buckets  []models.TimeBucket `json:"buckets"`
	Totals   models.TimeBucket   `json:"totals"`
}

// Report is a full stats report over one window.
type Report struct {
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	Days        int              `json:"days"`
	GeneratedAt time.Time        `json:"generated_at"`
	Providers   []ProviderReport `json:"providers"`
}

// Service produces reports from the registry and history store.
type Service struct {
	cfg      Config
	logger   *zap.Logger
	registry *registry.Service
	store    *history.Store
}

// NewService creates an export service.
func NewService(cfg Config, reg *registry.Service, store *history.Store, logger *zap.Logger) *Service {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 90
	}
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = 24 * time.Hour
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		store:    store,
	}
}

// Stats builds a report covering the trailing number of days, clamped to
// the maximum export window. Every registered provider appears, including
// ones with no samples.
func (s *Service) Stats(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		days = 7
	}
	if days > s.cfg.MaxDays {
		days = s.cfg.MaxDays
	}

	now := time.Now()
	report := &Report{
		From:        now.AddDate(0, 0, -days),
		To:          now,
		Days:        days,
		GeneratedAt: now,
	}

	for _, provider := range s.registry.List() {
		buckets, err := s.store.Query(ctx, provider.ID, report.From, report.To, s.cfg.BucketWidth)
		if err != nil {
			return nil, err
		}
		report.Providers = append(report.Providers, ProviderReport{
			Provider: provider,
			Buckets:  buckets,
			Totals:   totals(provider.ID, buckets),
		})
	}

	s.logger.Debug("stats report built",
		zap.Int("days", days),
		zap.Int("providers", len(report.Providers)))
	return report, nil
}

// totals reduces a provider's buckets to one row. The average latency is
// sample-weighted, not a mean of bucket means.
func totals(providerID uuid.UUID, buckets []models.TimeBucket) models.TimeBucket {
	t := models.TimeBucket{ProviderID: providerID}
	var latencyWeighted float64
	var successes float64
	for _, b := range buckets {
		t.SampleCount += b.SampleCount
		t.TotalCost += b.TotalCost
		t.TokensIn += b.TokensIn
		t.TokensOut += b.TokensOut
		latencyWeighted += b.AvgLatencyMS * float64(b.SampleCount)
		successes += b.SuccessRate * float64(b.SampleCount)
	}
	if t.SampleCount > 0 {
		t.AvgLatencyMS = latencyWeighted / float64(t.SampleCount)
		t.SuccessRate = successes / float64(t.SampleCount)
	}
	return t
}

// WriteCSV streams a report as CSV, one row per provider per bucket.
func (s *Service) WriteCSV(w io.Writer, report *Report) error {
	cw := csv.NewWriter(w)

	header := []string{"provider", "model", "bucket_start", "avg_latency_ms", "success_rate", "total_cost", "tokens_in", "tokens_out", "sample_count"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, pr := range report.Providers {
		for _, b := range pr.Buckets {
			row := []string{
				pr.Provider.Name,
				pr.Provider.Model,
				b.Start.UTC().Format(time.RFC3339),
				strconv.FormatFloat(b.AvgLatencyMS, 'f', 2, 64),
				strconv.FormatFloat(b.SuccessRate, 'f', 4, 64),
				strconv.FormatFloat(b.TotalCost, 'f', 6, 64),
				strconv.FormatInt(b.TokensIn, 10),
				strconv.FormatInt(b.TokensOut, 10),
				strconv.Itoa(b.SampleCount),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WritePDF renders a report as a one-table-per-provider PDF.
func (s *Service) WritePDF(w io.Writer, report *Report) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Provider Performance Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Provider Performance Report")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 8, fmt.Sprintf("Window: %s to %s (%d days), generated %s",
		report.From.UTC().Format("2006-01-02"),
		report.To.UTC().Format("2006-01-02"),
		report.Days,
		report.GeneratedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(12)

	widths := []float64{60, 35, 30, 30, 30, 30, 30}
	headers := []string{"Provider", "Avg latency (ms)", "Success rate", "Total cost", "Tokens in", "Tokens out", "Samples"}

	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, pr := range report.Providers {
		t := pr.Totals
		cells := []string{
			fmt.Sprintf("%s (%s)", pr.Provider.Name, pr.Provider.Model),
			strconv.FormatFloat(t.AvgLatencyMS, 'f', 1, 64),
			strconv.FormatFloat(t.SuccessRate, 'f', 4, 64),
			strconv.FormatFloat(t.TotalCost, 'f', 6, 64),
			strconv.FormatInt(t.TokensIn, 10),
			strconv.FormatInt(t.TokensOut, 10),
			strconv.Itoa(t.SampleCount),
		}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 7, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
