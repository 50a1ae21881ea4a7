package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/blobstore"
	"github.com/healthmate/healthmate/internal/platform/db"
)

var (
	ErrDoctorNotFound  = apperr.NotFound("doctor")
	ErrAlreadyReviewed = apperr.Validation("you have already reviewed this doctor")
	ErrNoPicture       = apperr.NotFound("profile picture")
)

var pictureTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type Service struct {
	profiles ProfileRepository
	reviews  ReviewRepository
	tx       db.Transactor
	blobs    blobstore.Store
	logger   zerolog.Logger
}

func NewService(profiles ProfileRepository, reviews ReviewRepository, tx db.Transactor, blobs blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{profiles: profiles, reviews: reviews, tx: tx, blobs: blobs, logger: logger}
}

// ProvisionProfile creates an empty profile for a new doctor account.
func (s *Service) ProvisionProfile(ctx context.Context, accountID uuid.UUID) error {
	return s.profiles.Create(ctx, &Profile{AccountID: accountID})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

func (s *Service) GetByAccount(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	return s.profiles.GetByAccount(ctx, accountID)
}

func (s *Service) Search(ctx context.Context, f Filter, limit, offset int) ([]*Profile, int, error) {
	if f.RatingMin != nil && f.RatingMax != nil && *f.RatingMin > *f.RatingMax {
		return nil, 0, apperr.Validation("rating_min must not exceed rating_max")
	}
	return s.profiles.Search(ctx, f, limit, offset)
}

// UpdateOwn edits the profile of the doctor account accountID.
func (s *Service) UpdateOwn(ctx context.Context, accountID uuid.UUID, u ProfileUpdate) (*Profile, error) {
	p, err := s.profiles.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if u.Specialties != nil {
		p.Specialties = cleanList(u.Specialties)
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.Education != nil {
		p.Education = *u.Education
	}
	if u.ExperienceYears != nil {
		if *u.ExperienceYears < 0 {
			return nil, apperr.Validation("experience_years must not be negative")
		}
		p.ExperienceYears = *u.ExperienceYears
	}
	if u.Location != nil {
		p.Location = *u.Location
	}
	if u.AvailableTimes != nil {
		times, err := normalizeAvailability(u.AvailableTimes)
		if err != nil {
			return nil, err
		}
		p.AvailableTimes = times
	}
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddReview stores a patient's review and refreshes the doctor's average
// rating in the same transaction, holding the profile row lock throughout.
func (s *Service) AddReview(ctx context.Context, patientID, doctorID uuid.UUID, req ReviewRequest) (*Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperr.Validation("rating must be between 1 and 5")
	}
	if _, err := s.profiles.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}

	review := &Review{
		DoctorID:  doctorID,
		PatientID: patientID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.reviews.LockDoctor(ctx, doctorID); err != nil {
			return err
		}
		if err := s.reviews.Create(ctx, review); err != nil {
			return err
		}
		_, err := s.reviews.AverageRating(ctx, doctorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (s *Service) ListReviews(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	if _, err := s.profiles.GetByID(ctx, doctorID); err != nil {
		return nil, 0, err
	}
	return s.reviews.ListByDoctor(ctx, doctorID, limit, offset)
}

// UploadPicture replaces the profile picture of the doctor account accountID.
func (s *Service) UploadPicture(ctx context.Context, accountID uuid.UUID, fileName, contentType string, content io.Reader) (*Profile, error) {
	if !pictureTypes[contentType] {
		return nil, apperr.Validationf("unsupported image type: %s", contentType)
	}
	name := blobstore.CleanFileName(fileName)
	if name == "" {
		return nil, apperr.Validation(blobstore.ErrMissingFileName.Error())
	}
	p, err := s.profiles.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	key := blobstore.Join("doctors", p.ID.String(), "picture", name)
	if _, err := s.blobs.Put(ctx, key, content, contentType); err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return nil, apperr.Validation(err.Error())
		}
		return nil, fmt.Errorf("store profile picture: %w", err)
	}
	if err := s.profiles.SetPicture(ctx, p.ID, key); err != nil {
		return nil, err
	}

	if old := p.ProfilePictureKey; old != "" && old != key {
		if err := s.blobs.Delete(ctx, old); err != nil {
			s.logger.Warn().Err(err).Str("key", old).Msg("failed to delete previous profile picture")
		}
	}
	p.ProfilePictureKey = key
	p.HasPicture = true
	return p, nil
}

// Picture opens the profile picture of doctor id.
func (s *Service) Picture(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.Object, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p.ProfilePictureKey == "" {
		return nil, nil, ErrNoPicture
	}
	rc, obj, err := s.blobs.Get(ctx, p.ProfilePictureKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrNoPicture
	}
	return rc, obj, err
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

// normalizeAvailability lower-cases weekday keys and rejects unknown days.
func normalizeAvailability(in map[string][]string) (map[string][]string, error) {
	out := make(map[string][]string, len(in))
	for day, slots := range in {
		key := strings.ToLower(strings.TrimSpace(day))
		if !weekdays[key] {
			return nil, apperr.Validationf("invalid weekday in available_times: %s", day)
		}
		out[key] = cleanList(slots)
	}
	return out, nil
}
