package models

import (
	"time"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

const (
	AppointmentUnfinished = "Unfinished"
	AppointmentFinished   = "Finished"
	AppointmentCanceled   = "Canceled"
)

type Patient struct {
	Username     string     `gorm:"primaryKey"    json:"username"`
	PasswordHash string     `gorm:"not null"      json:"-"`
	Name         string     `gorm:"not null"      json:"name"`
	Gender       string     `json:"gender"`
	Birthday     *time.Time `json:"birthday,omitempty"`
	IDNumber     string     `json:"id_number"`
	Telephone    string     `json:"telephone"`
	IsBanned     bool       `gorm:"default:false" json:"is_banned"`
}

type Doctor struct {
	ID           string     `gorm:"primaryKey" json:"did"`
	Name         string     `gorm:"not null"   json:"name"`
	PasswordHash string     `gorm:"not null"   json:"-"`
	Gender       string     `json:"gender"`
	Birthday     *time.Time `json:"birthday,omitempty"`
	Department   string     `gorm:"index"      json:"department"`
	Rank         string     `json:"rank"`
	Information  string     `json:"information"`
}

type Administrator struct {
	ID           string `gorm:"primaryKey" json:"aid"`
	PasswordHash string `gorm:"not null"   json:"-"`
}

type Department struct {
	Name        string `gorm:"primaryKey" json:"depart_name"`
	Information string `json:"information"`
}

// LoginToken is one issued session credential. A subject may hold several
// live tokens at once; expiry is decided at lookup time from IssuedAt.
type LoginToken struct {
	ID        uint      `gorm:"primaryKey"     json:"id"`
	Token     string    `gorm:"index;not null" json:"token"`
	SubjectID string    `gorm:"index;not null" json:"subject_id"`
	Role      string    `gorm:"index;not null" json:"role"`
	IssuedAt  time.Time `gorm:"not null"       json:"issued_at"`
}

// Slot is a bookable time interval of one doctor. BookedCount mirrors the
// number of non-canceled appointments referencing the slot.
type Slot struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"tid"`
	DoctorID    string    `gorm:"index;not null"           json:"did"`
	StartTime   time.Time `gorm:"not null"                 json:"start_time"`
	EndTime     time.Time `gorm:"not null"                 json:"end_time"`
	Capacity    int       `gorm:"not null"                 json:"capacity"`
	BookedCount int       `gorm:"not null;default:0"       json:"booked_count"`
}

// Appointment is a patient's claim on one seat of one slot. The
// (PatientID, SlotID) pair is the identity: at most one row per pair, reused
// when a canceled booking is made again.
type Appointment struct {
	PatientID string    `gorm:"primaryKey" json:"username"`
	SlotID    uint64    `gorm:"primaryKey" json:"tid"`
	Status    string    `gorm:"not null"   json:"status"`
	BookedAt  time.Time `gorm:"not null"   json:"booked_at"`
}

type Comment struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"cid"`
	PatientID string    `gorm:"index;not null"           json:"username"`
	DoctorID  string    `gorm:"index;not null"           json:"did"`
	Content   string    `gorm:"type:varchar(1024)"       json:"comment"`
	CreatedAt time.Time `json:"time"`
}
