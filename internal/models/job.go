package models

import "time"

type JobStatus string

const (
	JobOpen      JobStatus = "open"
	JobAssigned  JobStatus = "assigned"
	JobInTransit JobStatus = "in_transit"
	JobDelivered JobStatus = "delivered"
	JobCancelled JobStatus = "cancelled"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobOpen:      {JobAssigned, JobCancelled},
	JobAssigned:  {JobInTransit, JobCancelled},
	JobInTransit: {JobDelivered, JobCancelled},
	JobDelivered: nil,
	JobCancelled: nil,
}

func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

func (s JobStatus) Terminal() bool {
	return s == JobDelivered || s == JobCancelled
}

// CanTransitionTo checks next against the job transition table.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HasDriver reports whether a job in this status must carry a driver.
func (s JobStatus) HasDriver() bool {
	return s == JobAssigned || s == JobInTransit || s == JobDelivered
}

type Visibility string

const (
	VisibleToAll     Visibility = "all"
	VisibleToPrivate Visibility = "private"
)

type Place struct {
	Label        string  `json:"label,omitempty"`
	Address      string  `json:"address"`
	City         string  `json:"city,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Instructions string  `json:"instructions,omitempty"`
}

func (p Place) Point() GeoPoint {
	return GeoPoint{Lat: p.Latitude, Lng: p.Longitude}
}

type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Notes string `json:"notes,omitempty"`
}

type Cargo struct {
	Weight     float64 `json:"weight,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	Dimensions string  `json:"dimensions,omitempty"`
	CargoType  string  `json:"cargo_type,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

type JobStatusEntry struct {
	Status    JobStatus `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
	Notes     string    `json:"notes,omitempty"`
}

type Job struct {
	ID              string           `json:"id"`
	VendorID        string           `json:"vendor_id"`
	BuyerID         string           `json:"buyer_id"`
	ListingID       string           `json:"listing_id"`
	OrderID         string           `json:"order_id,omitempty"`
	DriverID        string           `json:"driver_id,omitempty"`
	ShipmentID      string           `json:"shipment_id,omitempty"`
	Origin          Place            `json:"origin"`
	Destination     Place            `json:"destination"`
	PickupContact   Contact          `json:"pickup_contact"`
	DeliveryContact Contact          `json:"delivery_contact"`
	Cargo           Cargo            `json:"cargo"`
	Price           float64          `json:"price"`
	VisibleTo       Visibility       `json:"visible_to"`
	Status          JobStatus        `json:"status"`
	History         []JobStatusEntry `json:"status_history"`
	Notes           string           `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Append records a status change on the job's history.
func (j *Job) Append(status JobStatus, by, notes string, at time.Time) {
	j.History = append(j.History, JobStatusEntry{Status: status, UpdatedAt: at, UpdatedBy: by, Notes: notes})
}

type JobFilter struct {
	VendorID string
	Status   JobStatus
}
