package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
)

// MongoStore persists donation requests as documents. Acceptance uses
// FindOneAndUpdate with the pending/unclaimed guard in the filter.
type MongoStore struct {
	c *mongo.Collection
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{c: db.Collection("donation_requests")}
}

// EnsureIndexes creates the indexes the store's filters rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "is_active", Value: 1}, {Key: "blood_group", Value: 1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "donor_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := s.c.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create donation request indexes: %w", err)
	}
	return nil
}

type historyDoc struct {
	Status    string    `bson:"status"`
	ChangedBy string    `bson:"changed_by"`
	ChangedAt time.Time `bson:"changed_at"`
	Note      string    `bson:"note,omitempty"`
}

type suggestionDoc struct {
	VolunteerID string    `bson:"volunteer_id"`
	DonorID     string    `bson:"donor_id"`
	SuggestedAt time.Time `bson:"suggested_at"`
	Note        string    `bson:"note,omitempty"`
}

type requestDoc struct {
	ID              string          `bson:"_id"`
	RequesterID     string          `bson:"requester_id"`
	RequesterName   string          `bson:"requester_name"`
	RequesterEmail  string          `bson:"requester_email"`
	RecipientName   string          `bson:"recipient_name"`
	District        string          `bson:"recipient_district"`
	SubDistrict     string          `bson:"recipient_sub_district"`
	HospitalName    string          `bson:"hospital_name"`
	HospitalAddress string          `bson:"hospital_address"`
	BloodGroup      string          `bson:"blood_group"`
	DonationDate    time.Time       `bson:"donation_date"`
	DonationTime    string          `bson:"donation_time"`
	ScheduledAt     time.Time       `bson:"scheduled_at"`
	Message         string          `bson:"message"`
	Urgency         string          `bson:"urgency"`
	UnitsRequired   int             `bson:"units_required"`
	DonorID         *string         `bson:"donor_id"`
	DonorName       string          `bson:"donor_name,omitempty"`
	DonorEmail      string          `bson:"donor_email,omitempty"`
	Status          string          `bson:"status"`
	StatusHistory   []historyDoc    `bson:"status_history"`
	Suggestions     []suggestionDoc `bson:"suggestions"`
	IsActive        bool            `bson:"is_active"`
	Version         int64           `bson:"version"`
	CreatedAt       time.Time       `bson:"created_at"`
	UpdatedAt       time.Time       `bson:"updated_at"`
}

func (s *MongoStore) Create(ctx context.Context, r *models.DonationRequest) error {
	if _, err := s.c.InsertOne(ctx, toDoc(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert donation request: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, requestID id.DonationRequestID) (*models.DonationRequest, error) {
	var doc requestDoc
	err := s.c.FindOne(ctx, bson.M{"_id": requestID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find donation request: %w", err)
	}
	return fromDoc(doc)
}

func (s *MongoStore) ClaimIfPending(ctx context.Context, requestID id.DonationRequestID, claim models.Claim) (*models.DonationRequest, error) {
	filter := bson.M{
		"_id":          requestID.String(),
		"status":       string(models.StatusPending),
		"donor_id":     nil,
		"is_active":    true,
		"scheduled_at": bson.M{"$gt": claim.At},
	}
	donorID := claim.Donor.ID.String()
	update := bson.M{
		"$set": bson.M{
			"status":      string(models.StatusInProgress),
			"donor_id":    donorID,
			"donor_name":  claim.Donor.Name,
			"donor_email": claim.Donor.Email,
			"updated_at":  claim.At,
		},
		"$push": bson.M{"status_history": historyDoc{
			Status:    string(models.StatusInProgress),
			ChangedBy: claim.Actor().String(),
			ChangedAt: claim.At,
			Note:      claim.Note,
		}},
		"$inc": bson.M{"version": 1},
	}
	var doc requestDoc
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missOrConflict(ctx, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim donation request: %w", err)
	}
	return fromDoc(doc)
}

func (s *MongoStore) Update(ctx context.Context, r *models.DonationRequest, expectedVersion int64) error {
	doc := toDoc(r)
	set := bson.M{
		"status":         doc.Status,
		"donor_id":       doc.DonorID,
		"donor_name":     doc.DonorName,
		"donor_email":    doc.DonorEmail,
		"status_history": doc.StatusHistory,
		"is_active":      doc.IsActive,
		"updated_at":     doc.UpdatedAt,
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": doc.ID, "version": expectedVersion},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return fmt.Errorf("update donation request: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.missOrConflict(ctx, r.ID)
	}
	r.Version = expectedVersion + 1
	return nil
}

func (s *MongoStore) AppendSuggestion(ctx context.Context, requestID id.DonationRequestID, suggestion models.VolunteerSuggestion) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": requestID.String(), "status": string(models.StatusPending), "is_active": true},
		bson.M{"$push": bson.M{"suggestions": suggestionDoc{
			VolunteerID: suggestion.VolunteerID.String(),
			DonorID:     suggestion.DonorID.String(),
			SuggestedAt: suggestion.SuggestedAt,
			Note:        suggestion.Note,
		}}},
	)
	if err != nil {
		return fmt.Errorf("append suggestion: %w", err)
	}
	if res.MatchedCount == 0 {
		err := s.missOrConflict(ctx, requestID)
		if errors.Is(err, sentinel.ErrConflict) {
			return sentinel.ErrInvalidState
		}
		return err
	}
	return nil
}

func (s *MongoStore) missOrConflict(ctx context.Context, requestID id.DonationRequestID) error {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": requestID.String()}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check donation request: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func toDoc(r *models.DonationRequest) requestDoc {
	doc := requestDoc{
		ID:              r.ID.String(),
		RequesterID:     r.RequesterID.String(),
		RequesterName:   r.RequesterName,
		RequesterEmail:  r.RequesterEmail,
		RecipientName:   r.Recipient.Name,
		District:        r.Recipient.District,
		SubDistrict:     r.Recipient.SubDistrict,
		HospitalName:    r.Recipient.HospitalName,
		HospitalAddress: r.Recipient.HospitalAddress,
		BloodGroup:      string(r.BloodGroup),
		DonationDate:    r.DonationDate,
		DonationTime:    r.DonationTime,
		ScheduledAt:     r.ScheduledAt(),
		Message:         r.Message,
		Urgency:         string(r.Urgency),
		UnitsRequired:   r.UnitsRequired,
		Status:          string(r.Status),
		StatusHistory:   make([]historyDoc, 0, len(r.StatusHistory)),
		Suggestions:     make([]suggestionDoc, 0, len(r.Suggestions)),
		IsActive:        r.IsActive,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Donor != nil {
		donorID := r.Donor.ID.String()
		doc.DonorID = &donorID
		doc.DonorName = r.Donor.Name
		doc.DonorEmail = r.Donor.Email
	}
	for _, h := range r.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, historyDoc{
			Status: string(h.Status), ChangedBy: h.ChangedBy.String(), ChangedAt: h.ChangedAt, Note: h.Note,
		})
	}
	for _, sg := range r.Suggestions {
		doc.Suggestions = append(doc.Suggestions, suggestionDoc{
			VolunteerID: sg.VolunteerID.String(), DonorID: sg.DonorID.String(), SuggestedAt: sg.SuggestedAt, Note: sg.Note,
		})
	}
	return doc
}

func fromDoc(doc requestDoc) (*models.DonationRequest, error) {
	parse := func(s string) (uuid.UUID, error) {
		u, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, fmt.Errorf("decode donation request %s: %w", doc.ID, err)
		}
		return u, nil
	}
	rawID, err := parse(doc.ID)
	if err != nil {
		return nil, err
	}
	requester, err := parse(doc.RequesterID)
	if err != nil {
		return nil, err
	}
	r := &models.DonationRequest{
		ID:             id.DonationRequestID(rawID),
		RequesterID:    id.UserID(requester),
		RequesterName:  doc.RequesterName,
		RequesterEmail: doc.RequesterEmail,
		Recipient: models.Recipient{
			Name:            doc.RecipientName,
			District:        doc.District,
			SubDistrict:     doc.SubDistrict,
			HospitalName:    doc.HospitalName,
			HospitalAddress: doc.HospitalAddress,
		},
		BloodGroup:    id.BloodGroup(doc.BloodGroup),
		DonationDate:  models.CivilDate(doc.DonationDate),
		DonationTime:  doc.DonationTime,
		Message:       doc.Message,
		Urgency:       models.Urgency(doc.Urgency),
		UnitsRequired: doc.UnitsRequired,
		Status:        models.Status(doc.Status),
		IsActive:      doc.IsActive,
		Version:       doc.Version,
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
	if doc.DonorID != nil {
		donor, err := parse(*doc.DonorID)
		if err != nil {
			return nil, err
		}
		r.Donor = &models.DonorRef{ID: id.UserID(donor), Name: doc.DonorName, Email: doc.DonorEmail}
	}
	for _, h := range doc.StatusHistory {
		by, err := parse(h.ChangedBy)
		if err != nil {
			return nil, err
		}
		r.StatusHistory = append(r.StatusHistory, models.StatusChange{
			Status: models.Status(h.Status), ChangedBy: id.UserID(by), ChangedAt: h.ChangedAt.UTC(), Note: h.Note,
		})
	}
	for _, sg := range doc.Suggestions {
		vol, err := parse(sg.VolunteerID)
		if err != nil {
			return nil, err
		}
		donor, err := parse(sg.DonorID)
		if err != nil {
			return nil, err
		}
		r.Suggestions = append(r.Suggestions, models.VolunteerSuggestion{
			VolunteerID: id.UserID(vol), DonorID: id.UserID(donor), SuggestedAt: sg.SuggestedAt.UTC(), Note: sg.Note,
		})
	}
	return r, nil
}
