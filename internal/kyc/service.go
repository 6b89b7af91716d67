// Package kyc holds driver identity verification: a driver submits licence
// and vehicle details, an admin approves or rejects them.
package kyc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/authz"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

type Service struct {
	store  store.KYC
	notify alerts.Notifier
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(s store.KYC, notify alerts.Notifier, log logrus.FieldLogger) *Service {
	return &Service{store: s, notify: notify, log: log, now: time.Now}
}

// SubmitInput fields left empty keep the value from an earlier submission.
type SubmitInput struct {
	CNICNumber              string `json:"cnicNumber"`
	CNICFrontImage          string `json:"cnicFrontImage"`
	CNICBackImage           string `json:"cnicBackImage"`
	LicenseNumber           string `json:"licenseNumber"`
	LicenseExpiry           string `json:"licenseExpiry"`
	LicensePhoto            string `json:"licensePhoto"`
	TruckRegistrationNumber string `json:"truckRegistrationNumber"`
	TruckType               string `json:"truckType"`
	TruckPhoto              string `json:"truckPhoto"`
	YearsOfExperience       *int   `json:"yearsOfExperience"`
	AdditionalNotes         string `json:"additionalNotes"`
}

// Status returns the caller's record, or a not_submitted placeholder.
func (s *Service) Status(ctx context.Context, actor models.Actor) (*models.KYC, error) {
	if err := authz.Require(actor, authz.KYCSubmit); err != nil {
		return nil, err
	}
	k, err := s.store.GetKYC(ctx, actor.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.KYC{UserID: actor.ID, Status: models.KYCNotSubmitted}, nil
	}
	if err != nil {
		return nil, apperr.Fatal(err, "Failed to fetch KYC status")
	}
	return k, nil
}

// Submit stores the driver's details and queues them for review. A
// resubmission replaces the previous verdict.
func (s *Service) Submit(ctx context.Context, actor models.Actor, in SubmitInput) (*models.KYC, error) {
	if err := authz.Require(actor, authz.KYCSubmit); err != nil {
		return nil, err
	}

	var d models.DriverDetails
	existing, err := s.store.GetKYC(ctx, actor.ID)
	switch {
	case err == nil:
		d = existing.Details
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Fatal(err, "Failed to submit driver KYC information")
	}

	merge(&d.CNICNumber, in.CNICNumber)
	merge(&d.LicenseNumber, in.LicenseNumber)
	merge(&d.TruckRegistrationNumber, in.TruckRegistrationNumber)
	if d.CNICNumber == "" || d.LicenseNumber == "" || d.TruckRegistrationNumber == "" {
		return nil, apperr.Invalid("CNIC, driving license number, and truck registration number are required.")
	}
	merge(&d.CNICFrontImage, in.CNICFrontImage)
	merge(&d.CNICBackImage, in.CNICBackImage)
	merge(&d.LicensePhoto, in.LicensePhoto)
	merge(&d.TruckType, in.TruckType)
	merge(&d.TruckPhoto, in.TruckPhoto)
	merge(&d.AdditionalNotes, in.AdditionalNotes)
	if expiry, ok := parseDate(in.LicenseExpiry); ok {
		d.LicenseExpiry = &expiry
	}
	if in.YearsOfExperience != nil {
		if *in.YearsOfExperience < 0 {
			return nil, apperr.Invalid("Years of experience cannot be negative")
		}
		years := *in.YearsOfExperience
		d.ExperienceYears = &years
	}

	k := &models.KYC{
		UserID:      actor.ID,
		Status:      models.KYCPending,
		Details:     d,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.store.SaveKYC(ctx, k); err != nil {
		return nil, apperr.Fatal(err, "Failed to submit driver KYC information")
	}

	lg := s.log.WithField("user_id", actor.ID)
	lg.Info("driver kyc submitted")
	if err := s.notify.NotifyRole(ctx, models.RoleAdmin, false, alerts.Notice{
		Type:      alerts.NoticeKYCSubmitted,
		Title:     "KYC awaiting review",
		Body:      "A driver submitted verification documents",
		Reference: actor.ID,
	}); err != nil {
		lg.WithError(err).Warn("kyc notification not queued")
	}
	return k, nil
}

// Review records an admin's verdict on a pending record. Rejections carry
// a reason the driver can act on.
func (s *Service) Review(ctx context.Context, actor models.Actor, userID string, approve bool, reason string) (*models.KYC, error) {
	if err := authz.Require(actor, authz.KYCReview); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if !approve && reason == "" {
		return nil, apperr.Invalid("A rejection reason is required")
	}

	k, err := s.store.GetKYC(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("KYC record not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "Failed to review KYC")
	}
	if k.Status != models.KYCPending {
		return nil, apperr.Conflict("KYC is already %s", k.Status)
	}

	now := s.now().UTC()
	k.Status = models.KYCApproved
	k.RejectionReason = ""
	if !approve {
		k.Status = models.KYCRejected
		k.RejectionReason = reason
	}
	k.ReviewedBy = actor.ID
	k.ReviewedAt = &now
	ok, err := s.store.ReviewKYC(ctx, k)
	if err != nil {
		return nil, apperr.Fatal(err, "Failed to review KYC")
	}
	if !ok {
		return nil, apperr.Conflict("KYC was reviewed by someone else")
	}

	lg := s.log.WithFields(logrus.Fields{"user_id": userID, "status": k.Status})
	lg.Info("driver kyc reviewed")
	body := "Your verification was approved"
	if !approve {
		body = "Your verification was rejected: " + reason
	}
	if err := s.notify.NotifyUser(ctx, alerts.Notice{
		UserID:    userID,
		Type:      alerts.NoticeKYCReviewed,
		Title:     "KYC reviewed",
		Body:      body,
		Reference: userID,
	}); err != nil {
		lg.WithError(err).Warn("kyc notification not queued")
	}
	return k, nil
}

// Queue lists records for admins, oldest submission first.
func (s *Service) Queue(ctx context.Context, actor models.Actor, status models.KYCStatus, page models.Page) ([]models.KYC, int, error) {
	if err := authz.Require(actor, authz.KYCReview); err != nil {
		return nil, 0, err
	}
	if status != "" && !status.Valid() {
		return nil, 0, apperr.Invalid("Invalid status filter")
	}
	items, total, err := s.store.ListKYC(ctx, status, page)
	if err != nil {
		return nil, 0, apperr.Fatal(err, "Failed to load KYC records")
	}
	return items, total, nil
}

func merge(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func parseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
