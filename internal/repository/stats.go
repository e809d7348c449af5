package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturanote/lecture-processor/internal/models"
)

// StatsRepo handles the processing-statistics singleton row. The row is
// lazily created with defaults on first read. Updates are read-modify-write
// without a spanning lock: two jobs completing at once race last-write-wins,
// tolerated because the figures only feed the ETA heuristic.
type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// GetOrCreate returns the singleton, inserting defaults when absent.
func (r *StatsRepo) GetOrCreate(ctx context.Context) (*models.ProcessingStats, error) {
	const q = `SELECT stt_sec_per_min, pdf_parse_sec_per_page, embed_sec_per_page,
		summarize_sec, pdf_combined_sec_per_page, updated_at
		FROM processing_stats WHERE id = 1`

	var stats models.ProcessingStats
	err := r.pool.QueryRow(ctx, q).Scan(&stats.SttSecPerMin, &stats.PdfParseSecPerPage,
		&stats.EmbedSecPerPage, &stats.SummarizeSec, &stats.PdfCombinedSecPerPage, &stats.UpdatedAt)
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	defaults := models.DefaultProcessingStats()
	const ins = `INSERT INTO processing_stats
		(id, stt_sec_per_min, pdf_parse_sec_per_page, embed_sec_per_page, summarize_sec, pdf_combined_sec_per_page)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, ins, defaults.SttSecPerMin, defaults.PdfParseSecPerPage,
		defaults.EmbedSecPerPage, defaults.SummarizeSec, defaults.PdfCombinedSecPerPage); err != nil {
		return nil, err
	}

	// Re-read in case a concurrent insert won.
	err = r.pool.QueryRow(ctx, q).Scan(&stats.SttSecPerMin, &stats.PdfParseSecPerPage,
		&stats.EmbedSecPerPage, &stats.SummarizeSec, &stats.PdfCombinedSecPerPage, &stats.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Save overwrites the singleton with already-smoothed values.
func (r *StatsRepo) Save(ctx context.Context, stats *models.ProcessingStats) error {
	const q = `UPDATE processing_stats
		SET stt_sec_per_min = $1, pdf_parse_sec_per_page = $2, embed_sec_per_page = $3,
			summarize_sec = $4, pdf_combined_sec_per_page = $5, updated_at = NOW()
		WHERE id = 1`
	_, err := r.pool.Exec(ctx, q, stats.SttSecPerMin, stats.PdfParseSecPerPage,
		stats.EmbedSecPerPage, stats.SummarizeSec, stats.PdfCombinedSecPerPage)
	return err
}

// Reset restores the singleton to defaults (operator command).
func (r *StatsRepo) Reset(ctx context.Context) (*models.ProcessingStats, error) {
	defaults := models.DefaultProcessingStats()
	const q = `INSERT INTO processing_stats
		(id, stt_sec_per_min, pdf_parse_sec_per_page, embed_sec_per_page, summarize_sec, pdf_combined_sec_per_page)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			stt_sec_per_min = EXCLUDED.stt_sec_per_min,
			pdf_parse_sec_per_page = EXCLUDED.pdf_parse_sec_per_page,
			embed_sec_per_page = EXCLUDED.embed_sec_per_page,
			summarize_sec = EXCLUDED.summarize_sec,
			pdf_combined_sec_per_page = EXCLUDED.pdf_combined_sec_per_page,
			updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, q, defaults.SttSecPerMin, defaults.PdfParseSecPerPage,
		defaults.EmbedSecPerPage, defaults.SummarizeSec, defaults.PdfCombinedSecPerPage); err != nil {
		return nil, err
	}
	return &defaults, nil
}
