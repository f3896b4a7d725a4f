package handler

import (
	"time"
	"unicode/utf8"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
)

const (
	dateLayout     = "2006-01-02"
	maxTextLength  = 1000
	maxFieldLength = 200
)

// RecipientRequest is the patient and hospital block of a create request.
type RecipientRequest struct {
	Name            string `json:"name"`
	District        string `json:"district"`
	SubDistrict     string `json:"sub_district"`
	HospitalName    string `json:"hospital_name"`
	HospitalAddress string `json:"hospital_address"`
}

// CreateRequest is the HTTP request body for POST /donation-requests.
type CreateRequest struct {
	Recipient     RecipientRequest `json:"recipient"`
	BloodGroup    string           `json:"blood_group"`
	DonationDate  string           `json:"donation_date"`
	DonationTime  string           `json:"donation_time"`
	Message       string           `json:"message"`
	Urgency       string           `json:"urgency"`
	UnitsRequired int              `json:"units_required"`

	parsedDate time.Time
}

// Validate implements httputil.Validatable. Domain rules such as message
// length and date bounds are checked by the models package.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	sanitize(r)

	if utf8.RuneCountInString(r.Message) > maxTextLength {
		return dErrors.New(dErrors.CodeValidation, "message must be at most 1000 characters")
	}
	for _, f := range []string{r.Recipient.Name, r.Recipient.District, r.Recipient.SubDistrict, r.Recipient.HospitalName, r.Recipient.HospitalAddress} {
		if utf8.RuneCountInString(f) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, "recipient fields must be at most 200 characters")
		}
	}
	if r.DonationDate == "" {
		return dErrors.New(dErrors.CodeValidation, "donation_date is required")
	}
	date, err := time.Parse(dateLayout, r.DonationDate)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "donation_date must be YYYY-MM-DD")
	}
	r.parsedDate = date
	return nil
}

func (r *CreateRequest) ParsedDate() time.Time { return r.parsedDate }

func (r *CreateRequest) ParsedRecipient() models.Recipient {
	return models.Recipient{
		Name:            r.Recipient.Name,
		District:        r.Recipient.District,
		SubDistrict:     r.Recipient.SubDistrict,
		HospitalName:    r.Recipient.HospitalName,
		HospitalAddress: r.Recipient.HospitalAddress,
	}
}

// ChangeStatusRequest is the body of POST /donation-requests/{id}/status.
type ChangeStatusRequest struct {
	Status  string  `json:"status"`
	Note    string  `json:"note"`
	DonorID *string `json:"donor_id,omitempty"`

	parsedStatus  models.Status
	parsedDonorID *id.UserID
}

func (r *ChangeStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	sanitize(r)

	if utf8.RuneCountInString(r.Note) > maxTextLength {
		return dErrors.New(dErrors.CodeValidation, "note must be at most 1000 characters")
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsedStatus = status

	if r.DonorID != nil && *r.DonorID != "" {
		donorID, err := id.ParseUserID(*r.DonorID)
		if err != nil {
			return err
		}
		r.parsedDonorID = &donorID
	}
	return nil
}

func (r *ChangeStatusRequest) ParsedStatus() models.Status { return r.parsedStatus }

func (r *ChangeStatusRequest) ParsedDonorID() *id.UserID { return r.parsedDonorID }

// ReasonRequest is the optional body of cancel and delete.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Validate() error {
	if r == nil {
		return nil
	}
	sanitize(r)
	if utf8.RuneCountInString(r.Reason) > maxTextLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 1000 characters")
	}
	return nil
}

// SuggestRequest is the body of POST /donation-requests/{id}/suggestions.
type SuggestRequest struct {
	DonorID string `json:"donor_id"`
	Note    string `json:"note"`

	parsedDonorID id.UserID
}

func (r *SuggestRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	sanitize(r)
	if utf8.RuneCountInString(r.Note) > maxTextLength {
		return dErrors.New(dErrors.CodeValidation, "note must be at most 1000 characters")
	}
	donorID, err := id.ParseUserID(r.DonorID)
	if err != nil {
		return err
	}
	r.parsedDonorID = donorID
	return nil
}

func (r *SuggestRequest) ParsedDonorID() id.UserID { return r.parsedDonorID }
