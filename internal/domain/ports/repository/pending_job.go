package repository

import (
	"context"

	"jobsync-client/internal/domain/model"
)

// PendingJobRepository persists records for jobs that have not settled yet.
// List skips entries it cannot decode.
type PendingJobRepository interface {
	Save(ctx context.Context, rec *model.PendingJobRecord) error
	Delete(ctx context.Context, kind model.JobKind, jobID string) error
	List(ctx context.Context) ([]*model.PendingJobRecord, error)

	SaveUploadMarker(ctx context.Context, m *model.UploadMarker) error
	GetUploadMarker(ctx context.Context) (*model.UploadMarker, error)
	ClearUploadMarker(ctx context.Context) error
}
