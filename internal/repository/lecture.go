package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturanote/lecture-processor/internal/models"
)

// ErrNotFound is returned when a lecture does not exist.
var ErrNotFound = errors.New("lecture not found")

// LectureRepo handles lecture persistence, including the durable progress
// writes the orchestrator makes mid-job.
type LectureRepo struct {
	pool *pgxpool.Pool
}

func NewLectureRepo(pool *pgxpool.Pool) *LectureRepo {
	return &LectureRepo{pool: pool}
}

const lectureColumns = `id, owner_id, name, audio_object, pdf_object, source_url,
	COALESCE(full_script, ''), COALESCE(summary_json, ''),
	status, current_step, step_times, estimated_time_sec, created_at`

// Create inserts a new lecture in processing state at step 0.
func (r *LectureRepo) Create(ctx context.Context, lec *models.Lecture) error {
	const q = `INSERT INTO lectures (owner_id, name, audio_object, pdf_object, source_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, lec.OwnerID, lec.Name, lec.AudioObject, lec.PDFObject, lec.SourceURL).
		Scan(&lec.ID, &lec.CreatedAt)
}

// GetByID returns a lecture by ID.
func (r *LectureRepo) GetByID(ctx context.Context, id int64) (*models.Lecture, error) {
	q := `SELECT ` + lectureColumns + ` FROM lectures WHERE id = $1`
	row := r.pool.QueryRow(ctx, q, id)
	lec, err := scanLecture(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return lec, nil
}

// SetPDFObject records the storage key of the uploaded slide deck.
func (r *LectureRepo) SetPDFObject(ctx context.Context, id int64, key string) error {
	const q = `UPDATE lectures SET pdf_object = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, key, id)
	return err
}

// SetAudioObject records the storage key of a fetched audio artifact.
func (r *LectureRepo) SetAudioObject(ctx context.Context, id int64, key string) error {
	const q = `UPDATE lectures SET audio_object = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, key, id)
	return err
}

// UpdateStep advances the progress marker. Only non-terminal lectures are
// touched so a reaped job cannot resume reporting progress.
func (r *LectureRepo) UpdateStep(ctx context.Context, id int64, step int) error {
	const q = `UPDATE lectures SET current_step = $1 WHERE id = $2 AND status = 'processing'`
	_, err := r.pool.Exec(ctx, q, step, id)
	return err
}

// RecordStepTime durably writes one stage's elapsed seconds. Writes against
// a failed lecture are dropped, which freezes the step_times map at the
// failure point. Completed lectures still accept the final persist timing.
func (r *LectureRepo) RecordStepTime(ctx context.Context, id int64, step int, seconds float64) error {
	const q = `UPDATE lectures
		SET step_times = step_times || jsonb_build_object($2::text, $3::double precision)
		WHERE id = $1 AND status <> 'failed'`
	_, err := r.pool.Exec(ctx, q, id, strconv.Itoa(step), seconds)
	return err
}

// SetEstimate stores the precomputed total ETA.
func (r *LectureRepo) SetEstimate(ctx context.Context, id int64, seconds float64) error {
	const q = `UPDATE lectures SET estimated_time_sec = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, seconds, id)
	return err
}

// MarkCompleted performs the terminal persist write: transcript, summary,
// completed status and the terminal step marker in one statement.
func (r *LectureRepo) MarkCompleted(ctx context.Context, id int64, script, summaryJSON string) error {
	const q = `UPDATE lectures
		SET full_script = $1, summary_json = $2, status = 'completed', current_step = $3
		WHERE id = $4 AND status = 'processing'`
	tag, err := r.pool.Exec(ctx, q, script, summaryJSON, models.StepTerminal, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lecture %d is no longer processing", id)
	}
	return nil
}

// MarkFailedIfProcessing flips a lecture to failed under a row lock,
// re-checking the status first so it never races a concurrent completion.
// Returns true when the flip was applied.
func (r *LectureRepo) MarkFailedIfProcessing(ctx context.Context, id int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var status models.Status
	err = tx.QueryRow(ctx, `SELECT status FROM lectures WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	if status != models.StatusProcessing {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE lectures SET status = 'failed' WHERE id = $1`, id); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// FindStuck returns processing lectures created before the cutoff, oldest
// first.
func (r *LectureRepo) FindStuck(ctx context.Context, cutoff time.Time) ([]models.Lecture, error) {
	q := `SELECT ` + lectureColumns + ` FROM lectures
		WHERE status = 'processing' AND created_at < $1
		ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Lecture
	for rows.Next() {
		lec, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *lec)
	}
	return list, rows.Err()
}

// InsertPageChunks bulk-inserts the PdfParse output at persist time.
func (r *LectureRepo) InsertPageChunks(ctx context.Context, lectureID int64, pages []models.ParsedPage) error {
	if len(pages) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, []interface{}{lectureID, p.PageNum, p.Content})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"page_chunks"},
		[]string{"lecture_id", "page_num", "content"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertTopicMappings bulk-inserts the Map output at persist time.
func (r *LectureRepo) InsertTopicMappings(ctx context.Context, lectureID int64, mappings []models.TopicMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, []interface{}{lectureID, m.SummaryTopic, m.MappedPage, m.MappedContent})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"topic_mappings"},
		[]string{"lecture_id", "summary_topic", "mapped_page", "mapped_content"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Snapshot returns the read-only polling view.
func (r *LectureRepo) Snapshot(ctx context.Context, id int64) (*models.Snapshot, error) {
	const q = `SELECT status, current_step, step_times, estimated_time_sec
		FROM lectures WHERE id = $1`
	var (
		snap models.Snapshot
		raw  []byte
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(&snap.Status, &snap.CurrentStep, &raw, &snap.EstimatedTimeSec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	snap.StepTimes, err = decodeStepTimes(raw)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func scanLecture(row pgx.Row) (*models.Lecture, error) {
	var (
		lec models.Lecture
		raw []byte
	)
	err := row.Scan(&lec.ID, &lec.OwnerID, &lec.Name, &lec.AudioObject, &lec.PDFObject,
		&lec.SourceURL, &lec.FullScript, &lec.SummaryJSON, &lec.Status, &lec.CurrentStep,
		&raw, &lec.EstimatedTimeSec, &lec.CreatedAt)
	if err != nil {
		return nil, err
	}
	lec.StepTimes, err = decodeStepTimes(raw)
	if err != nil {
		return nil, err
	}
	return &lec, nil
}

// step_times is stored as a JSONB object keyed by the stringified step
// index.
func decodeStepTimes(raw []byte) (map[int]float64, error) {
	byName := map[string]float64{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &byName); err != nil {
			return nil, fmt.Errorf("decode step_times: %w", err)
		}
	}
	times := make(map[int]float64, len(byName))
	for k, v := range byName {
		step, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("decode step_times key %q: %w", k, err)
		}
		times[step] = v
	}
	return times, nil
}
