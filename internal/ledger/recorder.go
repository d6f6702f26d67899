package ledger

import (
	"context"
	"time"
)

// RunRecorder writes one run's progress. It is what the replay session talks
// to; it holds no state besides the run id.
type RunRecorder struct {
	repo  Repository
	runID string
}

// StartRun creates the run row and returns a recorder bound to it.
func StartRun(ctx context.Context, repo Repository, remoteAddr string) (*RunRecorder, error) {
	run := &Run{
		ID:         NewID(),
		Status:     RunStatusRunning,
		RemoteAddr: remoteAddr,
		StartedAt:  time.Now(),
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return &RunRecorder{repo: repo, runID: run.ID}, nil
}

func (r *RunRecorder) RunID() string { return r.runID }

// ParticipantStarted counts a participant announced to the client.
func (r *RunRecorder) ParticipantStarted(ctx context.Context, participant string) error {
	return r.repo.IncrementRunParticipants(ctx, r.runID)
}

// StartVideo records that a video has been picked up and returns its row id.
func (r *RunRecorder) StartVideo(ctx context.Context, participant, filename string) (string, error) {
	v := &Video{
		ID:          NewID(),
		RunID:       r.runID,
		Participant: participant,
		Filename:    filename,
		State:       VideoStateExtracting,
		StartedAt:   time.Now(),
	}
	if err := r.repo.CreateVideo(ctx, v); err != nil {
		return "", err
	}
	return v.ID, nil
}

// UpdateVideo moves a video to state.
func (r *RunRecorder) UpdateVideo(ctx context.Context, id, state, reason string, framesTotal, framesRecorded int) error {
	return r.repo.UpdateVideo(ctx, id, state, reason, framesTotal, framesRecorded)
}

// Finish closes the run.
func (r *RunRecorder) Finish(ctx context.Context, status, errorMsg string) error {
	return r.repo.FinishRun(ctx, r.runID, status, errorMsg)
}
