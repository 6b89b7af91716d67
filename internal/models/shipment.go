package models

import "time"

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentPickedUp  ShipmentStatus = "picked_up"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentCancelled ShipmentStatus = "cancelled"
)

func (s ShipmentStatus) Terminal() bool {
	return s == ShipmentDelivered || s == ShipmentCancelled
}

// ShipmentStatusFor mirrors a job status onto its shipment. Open jobs have
// no shipment, so they report false.
func ShipmentStatusFor(js JobStatus) (ShipmentStatus, bool) {
	switch js {
	case JobAssigned:
		return ShipmentPickedUp, true
	case JobInTransit:
		return ShipmentInTransit, true
	case JobDelivered:
		return ShipmentDelivered, true
	case JobCancelled:
		return ShipmentCancelled, true
	}
	return "", false
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid rejects coordinates outside WGS84 bounds.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type Waypoint struct {
	Name    string   `json:"name,omitempty"`
	Address string   `json:"address"`
	Point   GeoPoint `json:"point"`
}

type ShipmentItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Weight   float64 `json:"weight,omitempty"`
}

type ShipmentEvent struct {
	Status    ShipmentStatus `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Shipment struct {
	ID                 string          `json:"id"`
	JobID              string          `json:"job_id"`
	OrderID            string          `json:"order_id,omitempty"`
	DriverID           string          `json:"driver_id"`
	VehicleID          string          `json:"vehicle_id,omitempty"`
	Origin             Waypoint        `json:"origin"`
	Destination        Waypoint        `json:"destination"`
	Status             ShipmentStatus  `json:"status"`
	History            []ShipmentEvent `json:"status_history"`
	CurrentLocation    *GeoPoint       `json:"current_location,omitempty"`
	LastLocationUpdate *time.Time      `json:"last_location_update,omitempty"`
	PickupTime         *time.Time      `json:"pickup_time,omitempty"`
	EstimatedDelivery  time.Time       `json:"estimated_delivery"`
	ActualDelivery     *time.Time      `json:"actual_delivery,omitempty"`
	Items              []ShipmentItem  `json:"items"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (s *Shipment) Append(status ShipmentStatus, message string, at time.Time) {
	s.History = append(s.History, ShipmentEvent{Status: status, Message: message, Timestamp: at})
}

// LocationPing is one reported driver position.
type LocationPing struct {
	DriverID   string    `json:"driver_id"`
	ShipmentID string    `json:"shipment_id"`
	Point      GeoPoint  `json:"point"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type LocationQuery struct {
	ShipmentID string
	From       *time.Time
	To         *time.Time
	Limit      int
}

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)
