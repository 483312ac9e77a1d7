package model

import "time"

// Session status values. Rows are never deleted; a completed visit stays in
// the table as history.
const (
	SessionInside    = "inside"
	SessionCompleted = "completed"
)

// ParkingSession represents one vehicle visit, from entry to exit.
type ParkingSession struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Plate      string     `gorm:"size:32;not null;index:idx_sessions_facility_plate_status,priority:2" json:"plate"`
	FacilityID string     `gorm:"size:64;not null;index:idx_sessions_facility_plate_status,priority:1" json:"facilityId"`
	EntryTime  time.Time  `gorm:"not null" json:"entryTime"`
	ExitTime   *time.Time `json:"exitTime,omitempty"`
	Status     string     `gorm:"size:16;not null;index:idx_sessions_facility_plate_status,priority:3" json:"status"`
	CreatedAt  time.Time  `gorm:"not null" json:"-"`
	UpdatedAt  time.Time  `gorm:"not null" json:"-"`
}
