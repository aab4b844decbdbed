package records

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/medjson/internal/platform/filestore"
	"github.com/ehr/medjson/internal/platform/metrics"
	"github.com/ehr/medjson/internal/platform/uploads"
)

type Service struct {
	store   RecordStore
	stager  uploads.Stager
	logger  zerolog.Logger
	metrics *metrics.Collector
	now     func() time.Time
	newID   func() uuid.UUID
}

func NewService(store RecordStore, stager uploads.Stager, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		stager: stager,
		logger: logger.With().Str("component", "records").Logger(),
		now:    time.Now,
		newID:  uuid.New,
	}
}

func (s *Service) SetMetrics(m *metrics.Collector) { s.metrics = m }

// Created is the result of a successful Create.
type Created struct {
	Record   *MedicalRecord `json:"record"`
	Filename string         `json:"filename"`
}

// Uploaded is the result of a successful Upload.
type Uploaded struct {
	Filename     string         `json:"filename"`
	OriginalName string         `json:"original_name"`
	Size         int64          `json:"size"`
	Hash         string         `json:"hash"`
	Document     map[string]any `json:"document"`
}

// Create validates the form and writes exactly one new record file. A
// *ValidationError means nothing was written.
func (s *Service) Create(ctx context.Context, in FormInput) (Created, error) {
	rec, err := NewRecord(in, s.newID(), s.now())
	if err != nil {
		s.metrics.ValidationFailed()
		return Created{}, err
	}

	filename, err := s.store.Save(ctx, rec.ID.String(), rec)
	if err != nil {
		return Created{}, fmt.Errorf("saving record %s: %w", rec.ID, err)
	}

	s.metrics.RecordCreated()
	s.logger.Info().Str("record_id", rec.ID.String()).Str("file", filename).Msg("medical record saved")
	return Created{Record: rec, Filename: filename}, nil
}

// Upload stages content, validates it and, when valid, stores the uploaded
// bytes unchanged as uploaded_<uuid>.json next to the created records. The
// staged candidate never outlives the call.
func (s *Service) Upload(ctx context.Context, originalName string, content io.Reader) (Uploaded, error) {
	cand, err := s.stager.Stage(ctx, originalName, content)
	if err != nil {
		switch {
		case errors.Is(err, uploads.ErrFileTooLarge):
			s.metrics.UploadRejected()
			return Uploaded{}, &UploadValidationError{Reason: s.tooLargeReason()}
		case errors.Is(err, uploads.ErrMissingFileName):
			s.metrics.UploadRejected()
			return Uploaded{}, &UploadValidationError{Reason: "file name is required"}
		default:
			return Uploaded{}, fmt.Errorf("staging upload: %w", err)
		}
	}
	defer s.discard(ctx, cand)

	data, err := s.stager.Read(ctx, cand)
	if err != nil {
		return Uploaded{}, err
	}

	doc, err := ValidateUpload(data)
	if err != nil {
		s.metrics.UploadRejected()
		s.logger.Info().Str("upload", cand.OriginalName).Err(err).Msg("upload rejected")
		return Uploaded{}, err
	}

	filename, err := s.store.SaveRaw(ctx, "uploaded_"+cand.ID+filestore.Ext, data)
	if err != nil {
		return Uploaded{}, fmt.Errorf("storing upload %s: %w", cand.OriginalName, err)
	}

	s.metrics.UploadAccepted()
	s.logger.Info().Str("upload", cand.OriginalName).Str("file", filename).Str("sha256", cand.Hash).Msg("upload stored")
	return Uploaded{
		Filename:     filename,
		OriginalName: cand.OriginalName,
		Size:         cand.Size,
		Hash:         cand.Hash,
		Document:     doc,
	}, nil
}

func (s *Service) discard(ctx context.Context, cand *uploads.Candidate) {
	if err := s.stager.Discard(ctx, cand); err != nil {
		s.logger.Error().Err(err).Str("path", cand.Path).Msg("failed to remove upload candidate")
	}
}

func (s *Service) tooLargeReason() string {
	if max := s.MaxUploadSize(); max > 0 {
		return fmt.Sprintf("file too large: maximum size is %s", humanSize(max))
	}
	return "file too large"
}

// ListFiles returns every parseable stored document in directory order.
func (s *Service) ListFiles(ctx context.Context) ([]filestore.StoredFile, error) {
	return s.store.ListAll(ctx)
}

// ListRecords returns stored documents, most recently created first.
func (s *Service) ListRecords(ctx context.Context) ([]filestore.StoredFile, error) {
	return s.store.ListSortedByCreatedAt(ctx)
}

// StoreExists reports whether the record directory has been created yet.
func (s *Service) StoreExists(ctx context.Context) (bool, error) {
	return s.store.Exists(ctx)
}

// MaxUploadSize is the largest upload the stager accepts, or 0 if unknown.
func (s *Service) MaxUploadSize() int64 {
	if ms, ok := s.stager.(interface{ MaxSize() int64 }); ok {
		return ms.MaxSize()
	}
	return 0
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
