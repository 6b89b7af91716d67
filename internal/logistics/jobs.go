package logistics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/authz"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

type PostJobInput struct {
	OrderID         string            `json:"orderId"`
	ListingID       string            `json:"productId"`
	BuyerID         string            `json:"buyerId"`
	Origin          models.Place      `json:"origin"`
	Destination     models.Place      `json:"destination"`
	PickupContact   models.Contact    `json:"pickupContact"`
	DeliveryContact models.Contact    `json:"deliveryContact"`
	Cargo           models.Cargo      `json:"cargoDetails"`
	Price           float64           `json:"price"`
	VisibleTo       models.Visibility `json:"visibleTo"`
	Notes           string            `json:"notes"`
}

func (in *PostJobInput) validate() error {
	switch {
	case in.OrderID == "" && in.ListingID == "":
		return apperr.Invalid("Either orderId or productId is required")
	case strings.TrimSpace(in.Origin.Address) == "" || strings.TrimSpace(in.Destination.Address) == "":
		return apperr.Invalid("Origin and destination addresses are required")
	case !in.Origin.Point().Valid() || !in.Destination.Point().Valid():
		return apperr.Invalid("Invalid coordinates")
	case in.Price < 0:
		return apperr.Invalid("Price cannot be negative")
	}
	switch in.VisibleTo {
	case "":
		in.VisibleTo = models.VisibleToAll
	case models.VisibleToAll, models.VisibleToPrivate:
	default:
		return apperr.Invalid("visibleTo must be all or private")
	}
	if in.Cargo.Unit == "" {
		in.Cargo.Unit = defaultCargoUnit
	}
	return nil
}

// PostJob opens a cargo job for an order, or for a listing when there is
// no order yet. The buyer must be resolvable either way.
func (s *Service) PostJob(ctx context.Context, actor models.Actor, in PostJobInput) (*models.Job, error) {
	if err := authz.Require(actor, authz.JobPost); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var job *models.Job
	err := s.tx(ctx, "Error creating cargo job", func(tx store.Repo) error {
		now := s.now()
		job = &models.Job{
			ID:              uuid.NewString(),
			Origin:          in.Origin,
			Destination:     in.Destination,
			PickupContact:   in.PickupContact,
			DeliveryContact: in.DeliveryContact,
			Cargo:           in.Cargo,
			Price:           in.Price,
			VisibleTo:       in.VisibleTo,
			Status:          models.JobOpen,
			Notes:           strings.TrimSpace(in.Notes),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		var order *models.Order
		if in.OrderID != "" {
			o, err := tx.LockOrder(ctx, in.OrderID)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("Order not found")
			}
			if err != nil {
				return err
			}
			if o.SellerID != actor.ID && !actor.IsAdmin() {
				return apperr.Forbidden("Not authorized to ship this order")
			}
			if o.Status != models.OrderActive {
				return apperr.Conflict("Cannot ship a %s order", strings.ToLower(string(o.Status)))
			}
			if o.JobID != "" {
				if prev, err := tx.GetJob(ctx, o.JobID); err == nil && prev.Status != models.JobCancelled {
					return apperr.Conflict("A cargo job already exists for this order").With("jobId", prev.ID)
				}
			}
			order = o
			job.OrderID, job.VendorID, job.BuyerID, job.ListingID = o.ID, o.SellerID, o.BuyerID, o.ListingID
		} else {
			l, err := tx.GetListing(ctx, in.ListingID)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("Product not found")
			}
			if err != nil {
				return err
			}
			if l.SellerID != actor.ID && !actor.IsAdmin() {
				return apperr.Forbidden("Not authorized to ship this product")
			}
			job.VendorID, job.ListingID = l.SellerID, l.ID
			job.BuyerID = in.BuyerID
			if job.BuyerID == "" {
				job.BuyerID = l.SoldTo
			}
		}
		if job.BuyerID == "" {
			return apperr.Invalid("Unable to determine the buyer for this job")
		}

		job.Append(models.JobOpen, actor.ID, "Job posted", now)
		if err := tx.CreateJob(ctx, job); err != nil {
			return err
		}
		if order != nil {
			order.JobID = job.ID
			order.UpdatedAt = now
			return tx.UpdateOrder(ctx, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"job_id": job.ID, "order_id": job.OrderID}).Info("cargo job posted")
	if job.VisibleTo == models.VisibleToAll {
		n := alerts.Notice{
			Type:      alerts.NoticeJobAvailable,
			Title:     "New cargo job available",
			Body:      fmt.Sprintf("%s to %s", placeName(job.Origin), placeName(job.Destination)),
			Reference: job.ID,
		}
		if err := s.notify.NotifyRole(ctx, models.RoleDriver, true, n); err != nil {
			s.log.WithError(err).WithField("job_id", job.ID).Warn("driver broadcast not queued")
		}
	}
	s.publish(ctx, events.New(events.JobPosted, job.ID, actor.ID, map[string]any{
		"order_id": job.OrderID,
		"price":    job.Price,
	}))
	return job, nil
}

func placeName(p models.Place) string {
	if p.City != "" {
		return p.City
	}
	return p.Address
}

type ClaimInput struct {
	Notes     string `json:"notes"`
	VehicleID string `json:"vehicleId"`
}

// ClaimJob assigns an open job to the calling driver and creates its
// shipment. Only one driver can win a given job.
func (s *Service) ClaimJob(ctx context.Context, actor models.Actor, jobID string, in ClaimInput) (*models.Job, *models.Shipment, error) {
	if err := authz.Require(actor, authz.JobClaim); err != nil {
		return nil, nil, err
	}

	var (
		job *models.Job
		sh  *models.Shipment
	)
	err := s.tx(ctx, "Error accepting job", func(tx store.Repo) error {
		current, err := lockJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if current.Status != models.JobOpen {
			return apperr.Conflict("Job is no longer available")
		}

		now := s.now()
		notes := strings.TrimSpace(in.Notes)
		if notes == "" {
			notes = "Job accepted by driver"
		}
		won, err := tx.AssignJob(ctx, jobID, actor.ID, models.JobStatusEntry{
			Status:    models.JobAssigned,
			UpdatedAt: now,
			UpdatedBy: actor.ID,
			Notes:     notes,
		})
		if err != nil {
			return err
		}
		if !won {
			return apperr.Conflict("Job is no longer available")
		}
		if job, err = lockJob(ctx, tx, jobID); err != nil {
			return err
		}

		item := models.ShipmentItem{Name: "Stone cargo", Quantity: 1, Weight: job.Cargo.Weight}
		if l, err := tx.GetListing(ctx, job.ListingID); err == nil {
			item.Name = l.Title
		}
		if job.OrderID != "" {
			if o, err := tx.GetOrder(ctx, job.OrderID); err == nil {
				item.Quantity = o.Quantity
			}
		}

		sh = &models.Shipment{
			ID:                uuid.NewString(),
			JobID:             job.ID,
			OrderID:           job.OrderID,
			DriverID:          actor.ID,
			VehicleID:         strings.TrimSpace(in.VehicleID),
			Origin:            models.Waypoint{Name: job.Origin.Label, Address: job.Origin.Address, Point: job.Origin.Point()},
			Destination:       models.Waypoint{Name: job.Destination.Label, Address: job.Destination.Address, Point: job.Destination.Point()},
			Status:            models.ShipmentPending,
			EstimatedDelivery: now.Add(defaultDeliveryWindow),
			Items:             []models.ShipmentItem{item},
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		sh.Append(models.ShipmentPending, "Shipment created", now)
		mirrored, _ := models.ShipmentStatusFor(models.JobAssigned)
		sh.Status = mirrored
		sh.Append(mirrored, notes, now)
		if err := tx.CreateShipment(ctx, sh); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("Job is no longer available")
			}
			return err
		}

		job.ShipmentID = sh.ID
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{"job_id": job.ID, "shipment_id": sh.ID, "driver_id": actor.ID}).Info("cargo job claimed")
	for _, uid := range []string{job.VendorID, job.BuyerID} {
		s.notifyUser(ctx, alerts.Notice{
			UserID:    uid,
			Type:      alerts.NoticeJobClaimed,
			Title:     "Driver assigned",
			Body:      "A driver accepted the cargo job and is heading to pickup",
			Reference: job.ID,
		})
	}
	s.publish(ctx, events.New(events.JobClaimed, job.ID, actor.ID, map[string]any{"shipment_id": sh.ID}))
	return job, sh, nil
}

type JobStatusInput struct {
	Status models.JobStatus `json:"status"`
	Notes  string           `json:"notes"`
}

// UpdateJobStatus moves a job along its transition table and mirrors the
// change onto the shipment and, for delivery or cancellation, the order.
func (s *Service) UpdateJobStatus(ctx context.Context, actor models.Actor, jobID string, in JobStatusInput) (*models.Job, error) {
	if err := authz.Require(actor, authz.JobUpdateStatus); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, apperr.Invalid("Invalid status")
	}
	notes := strings.TrimSpace(in.Notes)

	var (
		job    *models.Job
		order  *models.Order
		driver string
	)
	err := s.tx(ctx, "Error updating job status", func(tx store.Repo) error {
		var err error
		if job, err = lockJob(ctx, tx, jobID); err != nil {
			return err
		}
		if actor.ID != job.VendorID && actor.ID != job.DriverID && !actor.IsAdmin() {
			return apperr.Forbidden("Not authorized to update this job")
		}
		if !job.Status.CanTransitionTo(in.Status) {
			return apperr.Conflict("Cannot change status from %s to %s", job.Status, in.Status)
		}
		if in.Status == models.JobAssigned && job.DriverID == "" {
			return apperr.Conflict("A driver must accept the job before it is assigned")
		}

		now := s.now()
		driver = job.DriverID
		job.Status = in.Status
		if in.Status == models.JobCancelled {
			job.DriverID = ""
		}
		job.Append(in.Status, actor.ID, notes, now)
		job.UpdatedAt = now
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}

		if job.ShipmentID != "" {
			if err := mirrorShipment(ctx, tx, job, notes, now); err != nil {
				return err
			}
		}
		if job.OrderID != "" && (in.Status == models.JobDelivered || in.Status == models.JobCancelled) {
			o, err := tx.LockOrder(ctx, job.OrderID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if o != nil && o.Status == models.OrderActive {
				if in.Status == models.JobDelivered {
					o.Complete(models.SideLogistics, notes, now)
					o.Delivery.ActualDelivery = &now
				} else {
					reason := notes
					if reason == "" {
						reason = "Cargo job cancelled"
					}
					o.Cancel(models.SideLogistics, reason, now)
				}
				if err := tx.UpdateOrder(ctx, o); err != nil {
					return err
				}
				order = o
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"job_id": job.ID, "status": job.Status}).Info("cargo job status changed")
	for _, uid := range []string{job.VendorID, job.BuyerID, driver} {
		if uid == actor.ID {
			continue
		}
		s.notifyUser(ctx, alerts.Notice{
			UserID:    uid,
			Type:      alerts.NoticeJobStatus,
			Title:     "Cargo job update",
			Body:      fmt.Sprintf("Job is now %s", strings.ReplaceAll(string(job.Status), "_", " ")),
			Reference: job.ID,
		})
	}
	s.publish(ctx, events.New(events.JobStatus, job.ID, actor.ID, map[string]any{"status": string(job.Status)}))
	if order != nil {
		typ := events.OrderCompleted
		if order.Status == models.OrderCanceled {
			typ = events.OrderCanceled
		}
		s.publish(ctx, events.New(typ, order.ID, actor.ID, map[string]any{"job_id": job.ID}))
	}
	return job, nil
}

func mirrorShipment(ctx context.Context, tx store.Repo, job *models.Job, notes string, now time.Time) error {
	status, ok := models.ShipmentStatusFor(job.Status)
	if !ok {
		return nil
	}
	sh, err := tx.LockShipment(ctx, job.ShipmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sh.Status = status
	sh.Append(status, notes, now)
	switch status {
	case models.ShipmentInTransit:
		if sh.PickupTime == nil {
			sh.PickupTime = &now
		}
	case models.ShipmentDelivered:
		sh.ActualDelivery = &now
	}
	sh.UpdatedAt = now
	return tx.UpdateShipment(ctx, sh)
}

// GetJob shows a job to its vendor, driver, buyer or an admin. Drivers may
// also view open jobs posted to all drivers.
func (s *Service) GetJob(ctx context.Context, actor models.Actor, id string) (*models.Job, error) {
	j, err := loadJob(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin(), actor.ID == j.VendorID, actor.ID == j.DriverID, actor.ID == j.BuyerID:
		return j, nil
	case actor.Role == models.RoleDriver && j.Status == models.JobOpen && j.VisibleTo == models.VisibleToAll:
		return j, nil
	}
	return nil, apperr.Forbidden("Not authorized to view this job")
}

// ListVendorJobs returns the vendor's jobs, optionally by status. Admins see
// every vendor's jobs.
func (s *Service) ListVendorJobs(ctx context.Context, actor models.Actor, status models.JobStatus) ([]models.Job, error) {
	if err := authz.Require(actor, authz.JobVendorList); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Invalid("Invalid status filter")
	}
	f := models.JobFilter{VendorID: actor.ID, Status: status}
	if actor.IsAdmin() {
		f.VendorID = ""
	}
	jobs, err := s.store.ListJobs(ctx, f)
	if err != nil {
		return nil, apperr.Fatal(err, "Error fetching jobs")
	}
	return jobs, nil
}

// ListDriverJobs returns the open jobs any driver may claim plus the
// caller's own jobs.
func (s *Service) ListDriverJobs(ctx context.Context, actor models.Actor) ([]models.Job, error) {
	if err := authz.Require(actor, authz.JobBrowse); err != nil {
		return nil, err
	}
	jobs, err := s.store.ListDriverJobs(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Fatal(err, "Error fetching jobs")
	}
	return jobs, nil
}
