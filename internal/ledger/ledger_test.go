package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gazereplay/gazereplay/internal/db"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func TestRunRecorder_Lifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec, err := StartRun(ctx, repo, "127.0.0.1:5000")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	run, err := repo.GetRun(ctx, rec.RunID())
	if err != nil || run == nil {
		t.Fatalf("GetRun() = %v, %v", run, err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("Status = %s, want running", run.Status)
	}
	if run.FinishedAt != nil {
		t.Error("FinishedAt set on a running run")
	}

	for _, p := range []string{"P_01", "P_02"} {
		if err := rec.ParticipantStarted(ctx, p); err != nil {
			t.Fatalf("ParticipantStarted() error = %v", err)
		}
	}

	id, err := rec.StartVideo(ctx, "P_01", "a_writing.webm")
	if err != nil {
		t.Fatalf("StartVideo() error = %v", err)
	}
	v, err := repo.GetVideo(ctx, id)
	if err != nil || v == nil {
		t.Fatalf("GetVideo() = %v, %v", v, err)
	}
	if v.State != VideoStateExtracting || v.RunID != rec.RunID() {
		t.Errorf("video = %+v", v)
	}

	if err := rec.UpdateVideo(ctx, id, VideoStateCompleted, "", 120, 120); err != nil {
		t.Fatalf("UpdateVideo() error = %v", err)
	}
	v, _ = repo.GetVideo(ctx, id)
	if v.State != VideoStateCompleted || v.FramesTotal != 120 || v.FramesRecorded != 120 {
		t.Errorf("video after update = %+v", v)
	}

	if err := rec.Finish(ctx, RunStatusCompleted, ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	run, _ = repo.GetRun(ctx, rec.RunID())
	if run.Status != RunStatusCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
	if run.Participants != 2 {
		t.Errorf("Participants = %d, want 2", run.Participants)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestRepository_GetMissing(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	run, err := repo.GetRun(ctx, "nope")
	if err != nil || run != nil {
		t.Errorf("GetRun() = %v, %v; want nil, nil", run, err)
	}
	v, err := repo.GetVideo(ctx, "nope")
	if err != nil || v != nil {
		t.Errorf("GetVideo() = %v, %v; want nil, nil", v, err)
	}
}

func TestRepository_ListVideosFilter(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec, err := StartRun(ctx, repo, "")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	states := map[string]string{
		"a.webm": VideoStateCompleted,
		"b.webm": VideoStateFailed,
		"c.webm": VideoStateCompleted,
	}
	for name, state := range states {
		id, err := rec.StartVideo(ctx, "P_01", name)
		if err != nil {
			t.Fatalf("StartVideo(%s) error = %v", name, err)
		}
		reason := ""
		if state == VideoStateFailed {
			reason = "extraction produced no frames"
		}
		if err := rec.UpdateVideo(ctx, id, state, reason, 3, 0); err != nil {
			t.Fatalf("UpdateVideo(%s) error = %v", name, err)
		}
	}
	if _, err := rec.StartVideo(ctx, "P_02", "d.webm"); err != nil {
		t.Fatal(err)
	}

	all, err := repo.ListVideos(ctx, VideoFilter{})
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("len(all) = %d, want 4", len(all))
	}

	failed, err := repo.ListVideos(ctx, VideoFilter{State: VideoStateFailed})
	if err != nil {
		t.Fatalf("ListVideos(failed) error = %v", err)
	}
	if len(failed) != 1 || failed[0].Filename != "b.webm" {
		t.Fatalf("failed = %+v", failed)
	}
	if failed[0].Reason != "extraction produced no frames" {
		t.Errorf("Reason = %q", failed[0].Reason)
	}

	p2, _ := repo.ListVideos(ctx, VideoFilter{RunID: rec.RunID(), Participant: "P_02"})
	if len(p2) != 1 || p2[0].State != VideoStateExtracting {
		t.Errorf("P_02 videos = %+v", p2)
	}

	limited, _ := repo.ListVideos(ctx, VideoFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestRepository_Summary(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	empty, err := repo.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if empty.Runs != 0 || empty.LastRun != nil || len(empty.VideosByState) != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	first, _ := StartRun(ctx, repo, "")
	_ = first.Finish(ctx, RunStatusDisconnected, "client went away")
	second, _ := StartRun(ctx, repo, "")
	id, _ := second.StartVideo(ctx, "P_01", "a.webm")
	_ = second.UpdateVideo(ctx, id, VideoStateSkipped, "result already complete", 0, 0)

	s, err := repo.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if s.Runs != 2 {
		t.Errorf("Runs = %d, want 2", s.Runs)
	}
	if s.VideosByState[VideoStateSkipped] != 1 {
		t.Errorf("VideosByState = %v", s.VideosByState)
	}
	if s.LastRun == nil || s.LastRun.ID != second.RunID() {
		t.Errorf("LastRun = %+v, want %s", s.LastRun, second.RunID())
	}

	runs, _ := repo.ListRuns(ctx, 0)
	if len(runs) != 2 || runs[1].Error != "client went away" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestParseTime(t *testing.T) {
	if got := parseTime("2026-10-15T08:00:00Z"); got.Hour() != 8 {
		t.Errorf("RFC3339 parse = %v", got)
	}
	if got := parseTime("2026-10-15 09:30:00"); got.Minute() != 30 {
		t.Errorf("sqlite parse = %v", got)
	}
	if got := parseTime("garbage"); !got.IsZero() {
		t.Errorf("garbage parse = %v, want zero", got)
	}
}
