package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) GetByID(ctx context.Context, deviceID string) (*domain.Device, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DeviceModel
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return deviceFromModel(model), nil
}

// Upsert registers a device or replaces its public key on re-enrollment. A
// replaced key immediately invalidates claims signed with the previous one.
func (r *DeviceRepository) Upsert(ctx context.Context, device domain.Device) error {
	if r.db == nil {
		return errDBUnavailable
	}
	now := time.Now().UTC()
	model := DeviceModel{
		DeviceID:  device.DeviceID,
		StudentID: device.StudentID,
		PubkeyPEM: device.PubkeyPEM,
		Active:    device.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"student_id", "pubkey_pem", "active", "updated_at",
		}),
	}).Create(&model).Error
}

func (r *DeviceRepository) Deactivate(ctx context.Context, deviceID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Model(&DeviceModel{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
}

func deviceFromModel(model DeviceModel) *domain.Device {
	return &domain.Device{
		DeviceID:  model.DeviceID,
		StudentID: model.StudentID,
		PubkeyPEM: model.PubkeyPEM,
		Active:    model.Active,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
