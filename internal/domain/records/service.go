package records

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/blobstore"
)

var (
	ErrNotFound      = apperr.NotFound("medical record")
	ErrTitleRequired = apperr.Validation("title is required")
	ErrTitleTooLong  = apperr.Validationf("title must be at most %d characters", MaxTitleLength)
)

type Service struct {
	repo   Repository
	blobs  blobstore.Store
	logger zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		blobs:  blobs,
		logger: logger.With().Str("component", "records").Logger(),
	}
}

// Upload stores the file under records/<type>/<id>/<name> and creates the
// record. The blob is removed again if the row cannot be written.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, u Upload, content io.Reader) (*Record, error) {
	title, err := validateTitle(u.Title)
	if err != nil {
		return nil, err
	}
	if _, ok := recordTypes[u.RecordType]; !ok {
		return nil, apperr.Validationf("invalid record_type: %q", u.RecordType)
	}
	name := blobstore.CleanFileName(u.FileName)
	if name == "" {
		return nil, apperr.Validation(blobstore.ErrMissingFileName.Error())
	}

	rec := &Record{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		RecordType:  u.RecordType,
		Description: strings.TrimSpace(u.Description),
		FileName:    name,
	}
	rec.FileKey = blobstore.Join("records", rec.RecordType, rec.ID.String(), name)

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj, err := s.blobs.Put(ctx, rec.FileKey, content, contentType)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return nil, apperr.Validation(err.Error())
		}
		return nil, fmt.Errorf("store record file: %w", err)
	}
	rec.ContentType = obj.ContentType
	rec.Size = obj.Size

	if err := s.repo.Create(ctx, rec); err != nil {
		s.removeBlob(ctx, rec.FileKey)
		return nil, err
	}
	rec.setDisplay()
	return rec, nil
}

// Get returns a record owned by ownerID. Records of other accounts are
// reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	if f.RecordType != "" {
		if _, ok := recordTypes[f.RecordType]; !ok {
			return nil, 0, apperr.Validationf("invalid record_type: %q", f.RecordType)
		}
	}
	return s.repo.Search(ctx, f, limit, offset)
}

// Update edits title and description. The file and type are fixed at upload.
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateRequest) (*Record, error) {
	rec, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		if rec.Title, err = validateTitle(*req.Title); err != nil {
			return nil, err
		}
	}
	if req.Description != nil {
		rec.Description = strings.TrimSpace(*req.Description)
	}
	if err := s.repo.UpdateMetadata(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record and then its file.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	rec, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		return err
	}
	s.removeBlob(ctx, rec.FileKey)
	return nil
}

// Open returns the stored file of a record.
func (s *Service) Open(ctx context.Context, ownerID, id uuid.UUID) (io.ReadCloser, *Record, error) {
	rec, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Get(ctx, rec.FileKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFound("record file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open record file: %w", err)
	}
	return rc, rec, nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete record file")
	}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}
