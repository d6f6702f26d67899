package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	FinishRun(ctx context.Context, id, status, errorMsg string) error
	IncrementRunParticipants(ctx context.Context, id string) error

	CreateVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	UpdateVideo(ctx context.Context, id, state, reason string, framesTotal, framesRecorded int) error
	ListVideos(ctx context.Context, f VideoFilter) ([]*Video, error)

	Summary(ctx context.Context) (*Summary, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, remote_addr, participants, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Status, nullString(run.RemoteAddr), run.Participants, run.StartedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, remote_addr, participants, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, remote_addr, participants, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) FinishRun(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?
	`, status, nullString(errorMsg), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) IncrementRunParticipants(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET participants = participants + 1 WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepository) CreateVideo(ctx context.Context, v *Video) error {
	now := v.StartedAt.UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (id, run_id, participant, filename, state, reason, frames_total, frames_recorded, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.RunID, v.Participant, v.Filename, v.State, nullString(v.Reason), v.FramesTotal, v.FramesRecorded, now, now)
	return err
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, participant, filename, state, reason, frames_total, frames_recorded, started_at, updated_at
		FROM videos WHERE id = ?
	`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *SQLiteRepository) UpdateVideo(ctx context.Context, id, state, reason string, framesTotal, framesRecorded int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET state = ?, reason = ?, frames_total = ?, frames_recorded = ?, updated_at = ?
		WHERE id = ?
	`, state, nullString(reason), framesTotal, framesRecorded, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) ListVideos(ctx context.Context, f VideoFilter) ([]*Video, error) {
	var where []string
	var args []any
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Participant != "" {
		where = append(where, "participant = ?")
		args = append(args, f.Participant)
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, f.State)
	}

	query := `SELECT id, run_id, participant, filename, state, reason, frames_total, frames_recorded, started_at, updated_at FROM videos`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (r *SQLiteRepository) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{VideosByState: map[string]int{}}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&s.Runs); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM videos GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		s.VideosByState[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	runs, err := r.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		s.LastRun = runs[0]
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var remoteAddr, errMsg, finishedAt sql.NullString
	var startedAt string

	if err := row.Scan(&run.ID, &run.Status, &remoteAddr, &run.Participants, &errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.RemoteAddr = remoteAddr.String
	run.Error = errMsg.String
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

func scanVideo(row scanner) (*Video, error) {
	var v Video
	var reason sql.NullString
	var startedAt, updatedAt string

	if err := row.Scan(&v.ID, &v.RunID, &v.Participant, &v.Filename, &v.State, &reason,
		&v.FramesTotal, &v.FramesRecorded, &startedAt, &updatedAt); err != nil {
		return nil, err
	}
	v.Reason = reason.String
	v.StartedAt = parseTime(startedAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

// parseTime accepts RFC3339 and sqlite's datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
