package models

import "time"

type KYCStatus string

const (
	KYCNotSubmitted KYCStatus = "not_submitted"
	KYCPending      KYCStatus = "pending"
	KYCApproved     KYCStatus = "approved"
	KYCRejected     KYCStatus = "rejected"
)

func (s KYCStatus) Valid() bool {
	switch s {
	case KYCPending, KYCApproved, KYCRejected:
		return true
	}
	return false
}

// DriverDetails is what a driver submits for verification. Image fields
// hold URLs of documents already uploaded by the client.
type DriverDetails struct {
	CNICNumber              string     `json:"cnic_number"`
	CNICFrontImage          string     `json:"cnic_front_image,omitempty"`
	CNICBackImage           string     `json:"cnic_back_image,omitempty"`
	LicenseNumber           string     `json:"license_number"`
	LicenseExpiry           *time.Time `json:"license_expiry,omitempty"`
	LicensePhoto            string     `json:"license_photo,omitempty"`
	TruckRegistrationNumber string     `json:"truck_registration_number"`
	TruckType               string     `json:"truck_type,omitempty"`
	TruckPhoto              string     `json:"truck_photo,omitempty"`
	ExperienceYears         *int       `json:"driving_experience_years,omitempty"`
	AdditionalNotes         string     `json:"additional_notes,omitempty"`
}

// KYC is a driver's verification record. There is at most one per user;
// resubmitting replaces it and sends it back for review.
type KYC struct {
	UserID          string        `json:"user_id"`
	Status          KYCStatus     `json:"status"`
	Details         DriverDetails `json:"driver_details"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ReviewedBy      string        `json:"reviewed_by,omitempty"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
}
