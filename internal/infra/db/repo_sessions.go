package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.LiveSession, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SessionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return sessionFromModel(model), nil
}

func (r *SessionRepository) FindActive(ctx context.Context, subjectID string, now time.Time) (*domain.LiveSession, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SessionModel
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND expires_at >= ?", subjectID, now).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return sessionFromModel(model), nil
}

// Create inserts a new live session. A unique-constraint failure means another
// caller won the creation race; callers must re-query rather than fail.
func (r *SessionRepository) Create(ctx context.Context, session domain.LiveSession) (*domain.LiveSession, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := SessionModel{
		ID:        id,
		SubjectID: session.SubjectID,
		Lat:       session.Lat,
		Lon:       session.Lon,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: createdAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrSessionConflict
		}
		return nil, err
	}
	return sessionFromModel(model), nil
}

func sessionFromModel(model SessionModel) *domain.LiveSession {
	return &domain.LiveSession{
		ID:        model.ID,
		SubjectID: model.SubjectID,
		Lat:       model.Lat,
		Lon:       model.Lon,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
	}
}
