package models

import "time"

// Batch is a recurring teaching group. This service only reads batches; the
// roster product owns them.
type Batch struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BatchSubject maps a subject taught in a batch to its default teacher.
type BatchSubject struct {
	BatchID   string  `db:"batch_id" json:"batch_id"`
	Subject   string  `db:"subject" json:"subject"`
	TeacherID *string `db:"teacher_id" json:"teacher_id,omitempty"`
}
