package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type StudentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model StudentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return studentFromModel(model), nil
}

func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*domain.Student, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model StudentModel
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return studentFromModel(model), nil
}

// LinkIdentity records the external identity subject on first sign-in and
// fills in the display name if the roster entry had none.
func (r *StudentRepository) LinkIdentity(ctx context.Context, id, googleSub, name string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	updates := map[string]any{"google_sub": googleSub}
	if name != "" {
		updates["name"] = gorm.Expr("CASE WHEN name = '' THEN ? ELSE name END", name)
	}
	return r.db.WithContext(ctx).
		Model(&StudentModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func studentFromModel(model StudentModel) *domain.Student {
	googleSub := ""
	if model.GoogleSub != nil {
		googleSub = *model.GoogleSub
	}
	return &domain.Student{
		ID:        model.ID,
		RollNo:    model.RollNo,
		Name:      model.Name,
		Email:     model.Email,
		GoogleSub: googleSub,
		BatchID:   model.BatchID,
	}
}
