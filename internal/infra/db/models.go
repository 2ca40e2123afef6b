package db

import "time"

type BatchModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (BatchModel) TableName() string {
	return "batches"
}

type StudentModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	RollNo    string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"uniqueIndex;not null"`
	GoogleSub *string   `gorm:"uniqueIndex"`
	BatchID   string    `gorm:"type:uuid;index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (StudentModel) TableName() string {
	return "students"
}

type SubjectModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Code      string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (SubjectModel) TableName() string {
	return "subjects"
}

type TimetableModel struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	BatchID   string  `gorm:"type:uuid;index;not null"`
	SubjectID string  `gorm:"type:uuid;index;not null"`
	DayOfWeek int     `gorm:"not null"`
	StartTime string  `gorm:"not null"`
	EndTime   string  `gorm:"not null"`
	Lat       float64 `gorm:"not null"`
	Lon       float64 `gorm:"not null"`

	Subject SubjectModel `gorm:"foreignKey:SubjectID"`
}

func (TimetableModel) TableName() string {
	return "timetable"
}

type DeviceModel struct {
	DeviceID  string    `gorm:"primaryKey"`
	StudentID string    `gorm:"type:uuid;index;not null"`
	PubkeyPEM string    `gorm:"column:pubkey_pem;type:text;not null"`
	Active    bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (DeviceModel) TableName() string {
	return "devices"
}

type SessionModel struct {
	ID string `gorm:"type:uuid;primaryKey"`
	// expires_at is deterministic (the slot's end), so this unique pair is what
	// enforces at-most-one live session per (subject, time-window) under races.
	SubjectID string    `gorm:"type:uuid;uniqueIndex:idx_sessions_subject_expiry;not null"`
	Lat       float64   `gorm:"not null"`
	Lon       float64   `gorm:"not null"`
	ExpiresAt time.Time `gorm:"uniqueIndex:idx_sessions_subject_expiry;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

type NonceModel struct {
	Nonce     string    `gorm:"primaryKey"`
	SessionID string    `gorm:"type:uuid;index;not null"`
	Ts        time.Time `gorm:"column:ts;not null"`
}

func (NonceModel) TableName() string {
	return "nonces"
}

// AttendanceRecordModel rows are append-only; the client-generated idempotency
// key is the primary key, which is what makes persistence exactly-once under
// retransmission.
type AttendanceRecordModel struct {
	ID             string    `gorm:"primaryKey"`
	SessionID      string    `gorm:"type:uuid;index:idx_records_student_session;not null"`
	StudentID      string    `gorm:"type:uuid;index:idx_records_student_session;not null"`
	DeviceID       string    `gorm:"not null"`
	QRNonce        string    `gorm:"column:qr_nonce;not null"`
	Lat            float64   `gorm:"not null"`
	Lon            float64   `gorm:"not null"`
	TsClient       time.Time `gorm:"not null"`
	StudentSig     string    `gorm:"type:text;not null"`
	AttendanceBlob string    `gorm:"type:text;not null"`
	Status         string    `gorm:"index;not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (AttendanceRecordModel) TableName() string {
	return "attendance_records"
}
