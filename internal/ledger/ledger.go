package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/dominikschweigl/ticketless-park-system/internal/model"
)

// Store defines the session ledger operations. All methods are scoped to the
// facility the store was created for.
//
// The ledger itself only guarantees that each call is a single transaction;
// serializing entry/exit calls for one plate is the orchestrator's job.
type Store interface {
	// GetActiveSession returns the most recent "inside" session for the
	// plate, or nil if the plate is not inside. Read-only.
	GetActiveSession(ctx context.Context, plate string) (*model.ParkingSession, error)

	// RegisterEntry creates an "inside" session for the plate. Idempotent:
	// if an active session already exists no new row is created.
	RegisterEntry(ctx context.Context, plate string) error

	// CompleteExit marks the most recent "inside" session as completed.
	// Returns false (and leaves state unchanged) when there is no active
	// session for the plate.
	CompleteExit(ctx context.Context, plate string) (bool, error)

	// ActiveSessions lists all sessions currently inside the facility.
	ActiveSessions(ctx context.Context) ([]model.ParkingSession, error)

	// SessionsForPlate returns the session history for a plate, most
	// recent first.
	SessionsForPlate(ctx context.Context, plate string) ([]model.ParkingSession, error)

	// DB exposes the underlying handle for components that share it.
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db         *gorm.DB
	facilityID string
}

// NewGormStore creates a new GORM-backed session ledger for one facility.
func NewGormStore(db *gorm.DB, facilityID string) Store {
	return &gormStore{db: db, facilityID: facilityID}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) GetActiveSession(ctx context.Context, plate string) (*model.ParkingSession, error) {
	var session model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("facility_id = ? AND plate = ? AND status = ?", s.facilityID, plate, model.SessionInside).
		Order("entry_time DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session for plate %s: %w", plate, err)
	}
	return &session, nil
}

func (s *gormStore) RegisterEntry(ctx context.Context, plate string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.ParkingSession{}).
			Where("facility_id = ? AND plate = ? AND status = ?", s.facilityID, plate, model.SessionInside).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check active session for plate %s: %w", plate, err)
		}
		if count > 0 {
			log.Printf("[LEDGER] active session already exists for plate=%s, skipping new entry row", plate)
			return nil
		}

		session := model.ParkingSession{
			Plate:      plate,
			FacilityID: s.facilityID,
			EntryTime:  time.Now().UTC(),
			Status:     model.SessionInside,
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create session for plate %s: %w", plate, err)
		}
		log.Printf("[LEDGER] registered entry for plate=%s facility=%s", plate, s.facilityID)
		return nil
	})
}

func (s *gormStore) CompleteExit(ctx context.Context, plate string) (bool, error) {
	completed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.ParkingSession
		err := tx.
			Where("facility_id = ? AND plate = ? AND status = ?", s.facilityID, plate, model.SessionInside).
			Order("entry_time DESC").
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query active session for plate %s: %w", plate, err)
		}

		now := time.Now().UTC()
		session.ExitTime = &now
		session.Status = model.SessionCompleted
		if err := tx.Save(&session).Error; err != nil {
			return fmt.Errorf("failed to complete session %d for plate %s: %w", session.ID, plate, err)
		}
		completed = true
		log.Printf("[LEDGER] completed exit for plate=%s facility=%s session=%d", plate, s.facilityID, session.ID)
		return nil
	})
	if err != nil {
		return false, err
	}
	if !completed {
		log.Printf("[LEDGER] no active session found for plate=%s to complete", plate)
	}
	return completed, nil
}

func (s *gormStore) ActiveSessions(ctx context.Context) ([]model.ParkingSession, error) {
	var sessions []model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("facility_id = ? AND status = ?", s.facilityID, model.SessionInside).
		Order("entry_time DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormStore) SessionsForPlate(ctx context.Context, plate string) ([]model.ParkingSession, error) {
	var sessions []model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("facility_id = ? AND plate = ?", s.facilityID, plate).
		Order("entry_time DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for plate %s: %w", plate, err)
	}
	return sessions, nil
}
