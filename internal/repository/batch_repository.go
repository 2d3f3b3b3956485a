package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/opentutor/tutor-ops-api/internal/models"
)

// BatchRepository reads batch roster data. The roster product owns these
// tables; this service never writes them.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FindByID loads a batch by id.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, name, capacity, active, created_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListSubjects returns the subjects taught in a batch with default teachers.
func (r *BatchRepository) ListSubjects(ctx context.Context, batchID string) ([]models.BatchSubject, error) {
	const query = `SELECT batch_id, subject, teacher_id FROM batch_subjects WHERE batch_id = $1 ORDER BY subject ASC`
	var subjects []models.BatchSubject
	if err := r.db.SelectContext(ctx, &subjects, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch subjects: %w", err)
	}
	return subjects, nil
}

// FindSubjectTeacher returns the default teacher for a subject in a batch.
// A nil teacher id means the subject exists but has no default assignment.
func (r *BatchRepository) FindSubjectTeacher(ctx context.Context, batchID, subject string) (*string, error) {
	const query = `SELECT teacher_id FROM batch_subjects WHERE batch_id = $1 AND subject = $2`
	var teacherID *string
	if err := r.db.GetContext(ctx, &teacherID, query, batchID, subject); err != nil {
		return nil, err
	}
	return teacherID, nil
}
