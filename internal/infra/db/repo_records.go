package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.AttendanceRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model AttendanceRecordModel
	err := r.db.WithContext(ctx).Where("id = ?", key).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return recordFromModel(model), nil
}

// HasVerified reports whether the account already holds a VERIFIED record for
// the session under any idempotency key.
func (r *RecordRepository) HasVerified(ctx context.Context, studentID, sessionID string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&AttendanceRecordModel{}).
		Where("student_id = ? AND session_id = ? AND status = ?",
			studentID, sessionID, domain.RecordStatusVerified).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create appends the record. The primary key is the idempotency key, so a
// concurrent retry surfaces as gorm.ErrDuplicatedKey; the pipeline re-reads
// the winner instead of failing the caller.
func (r *RecordRepository) Create(ctx context.Context, record domain.AttendanceRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := AttendanceRecordModel{
		ID:             record.IdempotencyKey,
		SessionID:      record.SessionID,
		StudentID:      record.StudentID,
		DeviceID:       record.DeviceID,
		QRNonce:        record.Nonce,
		Lat:            record.Lat,
		Lon:            record.Lon,
		TsClient:       record.TsClient,
		StudentSig:     record.SignatureB64,
		AttendanceBlob: record.CanonicalBlob,
		Status:         record.Status,
		CreatedAt:      createdAt,
	}
	err := r.db.WithContext(ctx).Create(&model).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateRecord
	}
	return err
}

// HistoryForSubject lists the student's VERIFIED records for one subject,
// newest first, with the class name resolved through the session's subject.
func (r *RecordRepository) HistoryForSubject(ctx context.Context, studentID, subjectID string) ([]domain.HistoryItem, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	type row struct {
		ID       string
		TsClient time.Time
		Status   string
		Name     string
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("attendance_records").
		Select("attendance_records.id, attendance_records.ts_client, attendance_records.status, subjects.name").
		Joins("JOIN sessions ON sessions.id = attendance_records.session_id").
		Joins("JOIN subjects ON subjects.id = sessions.subject_id").
		Where("attendance_records.student_id = ? AND sessions.subject_id = ? AND attendance_records.status = ?",
			studentID, subjectID, domain.RecordStatusVerified).
		Order("attendance_records.ts_client DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoryItem, 0, len(rows))
	for _, item := range rows {
		out = append(out, domain.HistoryItem{
			ID:        item.ID,
			ClassName: item.Name,
			Status:    item.Status,
			Timestamp: item.TsClient,
		})
	}
	return out, nil
}

func recordFromModel(model AttendanceRecordModel) *domain.AttendanceRecord {
	return &domain.AttendanceRecord{
		IdempotencyKey: model.ID,
		SessionID:      model.SessionID,
		StudentID:      model.StudentID,
		DeviceID:       model.DeviceID,
		Nonce:          model.QRNonce,
		Lat:            model.Lat,
		Lon:            model.Lon,
		TsClient:       model.TsClient,
		SignatureB64:   model.StudentSig,
		CanonicalBlob:  model.AttendanceBlob,
		Status:         model.Status,
		CreatedAt:      model.CreatedAt,
	}
}
