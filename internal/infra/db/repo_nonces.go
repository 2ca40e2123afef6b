package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type NonceRepository struct {
	db *gorm.DB
}

func NewNonceRepository(db *gorm.DB) *NonceRepository {
	return &NonceRepository{db: db}
}

func (r *NonceRepository) Create(ctx context.Context, nonce domain.Nonce) error {
	if r.db == nil {
		return errDBUnavailable
	}
	issuedAt := nonce.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	model := NonceModel{
		Nonce:     nonce.Value,
		SessionID: nonce.SessionID,
		Ts:        issuedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *NonceRepository) GetByValue(ctx context.Context, value string) (*domain.Nonce, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model NonceModel
	err := r.db.WithContext(ctx).Where("nonce = ?", value).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &domain.Nonce{
		Value:     model.Nonce,
		SessionID: model.SessionID,
		IssuedAt:  model.Ts,
	}, nil
}
