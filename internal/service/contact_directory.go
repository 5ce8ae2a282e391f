package service

import (
	"context"
	"time"

	"whatscrm/internal/models"
	"whatscrm/internal/validation"

	"github.com/sirupsen/logrus"
)

type DirectoryStore interface {
	SaveDirectoryContact(ctx context.Context, contact *models.DirectoryContact) error
	GetDirectoryContact(ctx context.Context, phone string) (*models.DirectoryContact, error)
	CleanupOldContacts(retentionDays int) (int64, error)
}

// ContactDirectory caches contact names observed on the wire. The cloud
// webhook carries profile names in its contacts array and the bridge
// carries push names on each message; neither transport offers a lookup
// API, so the directory is fed entirely by what passes through.
type ContactDirectory struct {
	store           DirectoryStore
	cacheValidHours int
	logger          *logrus.Logger
}

func NewContactDirectory(store DirectoryStore, cacheValidHours int, logger *logrus.Logger) *ContactDirectory {
	if cacheValidHours <= 0 {
		cacheValidHours = 24
	}
	return &ContactDirectory{
		store:           store,
		cacheValidHours: cacheValidHours,
		logger:          logger,
	}
}

// ObserveProfileName records a display name from a cloud webhook
// contacts entry. Cache write failures are logged, never propagated;
// a stale name must not fail message ingestion.
func (cd *ContactDirectory) ObserveProfileName(ctx context.Context, phone, name, numberID string) {
	cd.observe(ctx, phone, name, "", numberID)
}

// ObservePushName records a push name seen on a bridge message.
func (cd *ContactDirectory) ObservePushName(ctx context.Context, phone, name, numberID string) {
	cd.observe(ctx, phone, "", name, numberID)
}

func (cd *ContactDirectory) observe(ctx context.Context, phone, displayName, pushName, numberID string) {
	if phone == "" || (displayName == "" && pushName == "") {
		return
	}

	// Directory keys are bare E.164 numbers. Group and broadcast
	// identities carry names too but have no place in a phone directory.
	if err := validation.ValidatePhoneNumber(phone); err != nil {
		cd.logger.WithField("phone", SanitizePhoneNumber(phone)).Debug("Skipping contact observation for non-phone identity")
		return
	}

	existing, err := cd.store.GetDirectoryContact(ctx, phone)
	if err != nil {
		cd.logger.WithError(err).WithField("phone", SanitizePhoneNumber(phone)).Warn("Failed to read contact cache")
	}

	contact := &models.DirectoryContact{
		Phone:       phone,
		DisplayName: displayName,
		PushName:    pushName,
		NumberID:    numberID,
	}
	if existing != nil {
		// Keep whichever name kind this observation did not carry
		if contact.DisplayName == "" {
			contact.DisplayName = existing.DisplayName
		}
		if contact.PushName == "" {
			contact.PushName = existing.PushName
		}
		if !cd.isStale(existing) && contact.DisplayName == existing.DisplayName && contact.PushName == existing.PushName {
			return
		}
	}

	if err := cd.store.SaveDirectoryContact(ctx, contact); err != nil {
		cd.logger.WithError(err).WithField("phone", SanitizePhoneNumber(phone)).Warn("Failed to save contact cache")
	}
}

// BestName returns the freshest name on record for a phone number,
// falling back to the number itself when nothing was ever observed.
func (cd *ContactDirectory) BestName(ctx context.Context, phone string) string {
	contact, err := cd.store.GetDirectoryContact(ctx, phone)
	if err != nil {
		cd.logger.WithError(err).WithField("phone", SanitizePhoneNumber(phone)).Warn("Failed to read contact cache")
		return phone
	}
	if contact == nil {
		return phone
	}
	return contact.BestName()
}

func (cd *ContactDirectory) isStale(contact *models.DirectoryContact) bool {
	return time.Since(contact.CachedAt) >= time.Duration(cd.cacheValidHours)*time.Hour
}

// CleanupOldContacts removes cache entries older than the retention period
func (cd *ContactDirectory) CleanupOldContacts(retentionDays int) (int64, error) {
	return cd.store.CleanupOldContacts(retentionDays)
}
