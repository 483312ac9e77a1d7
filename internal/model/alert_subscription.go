package model

import "time"

// AlertSubscription holds a browser push subscription for an operator who
// wants to be paged about barrier and ledger anomalies.
type AlertSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
