package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type TimetableRepository struct {
	db *gorm.DB
}

func NewTimetableRepository(db *gorm.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// FindCurrent returns the slot covering localTime ("HH:MM") on dayOfWeek for a
// batch, or ErrNotFound when no class is scheduled right now.
func (r *TimetableRepository) FindCurrent(ctx context.Context, batchID string, dayOfWeek int, localTime string) (*domain.TimetableEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TimetableModel
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Where("batch_id = ? AND day_of_week = ? AND start_time <= ? AND end_time >= ?",
			batchID, dayOfWeek, localTime, localTime).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return timetableFromModel(model), nil
}

// FindCurrentForSubject is the teacher-side variant: the slot covering now for
// one subject regardless of batch.
func (r *TimetableRepository) FindCurrentForSubject(ctx context.Context, subjectID string, dayOfWeek int, localTime string) (*domain.TimetableEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TimetableModel
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Where("subject_id = ? AND day_of_week = ? AND start_time <= ? AND end_time >= ?",
			subjectID, dayOfWeek, localTime, localTime).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return timetableFromModel(model), nil
}

// SubjectsForBatch lists the distinct subjects appearing in a batch's timetable.
func (r *TimetableRepository) SubjectsForBatch(ctx context.Context, batchID string) ([]domain.Subject, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []TimetableModel
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Where("batch_id = ?", batchID).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(models))
	out := make([]domain.Subject, 0, len(models))
	for _, model := range models {
		if seen[model.SubjectID] {
			continue
		}
		seen[model.SubjectID] = true
		out = append(out, domain.Subject{
			ID:   model.Subject.ID,
			Code: model.Subject.Code,
			Name: model.Subject.Name,
		})
	}
	return out, nil
}

func timetableFromModel(model TimetableModel) *domain.TimetableEntry {
	return &domain.TimetableEntry{
		ID:        model.ID,
		BatchID:   model.BatchID,
		SubjectID: model.SubjectID,
		DayOfWeek: model.DayOfWeek,
		StartTime: model.StartTime,
		EndTime:   model.EndTime,
		Lat:       model.Lat,
		Lon:       model.Lon,
		Subject: domain.Subject{
			ID:   model.Subject.ID,
			Code: model.Subject.Code,
			Name: model.Subject.Name,
		},
	}
}
