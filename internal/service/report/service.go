// Package report runs the upload analysis pipeline.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medreport/internal/completion"
	"medreport/internal/logging"
	"medreport/internal/models"
	"medreport/internal/normalize"
	"medreport/internal/prompt"
)

// ErrNotMedical is returned when the domain gate rejects a document.
var ErrNotMedical = errors.New("document does not appear to be medical")

type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (*models.ExtractedDocument, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string) bool
}

type Backend interface {
	For(choice string) completion.Client
}

type Repository interface {
	Save(ctx context.Context, a *models.Analysis) error
}

type Service struct {
	extractor  Extractor
	gate       Classifier
	prompts    *prompt.Builder
	backend    Backend
	normalizer *normalize.Normalizer
	repo       Repository
	logger     *slog.Logger
}

type Options struct {
	Extractor  Extractor
	Gate       Classifier // nil disables the domain gate
	Prompts    *prompt.Builder
	Backend    Backend
	Normalizer *normalize.Normalizer
	Repository Repository // nil disables persistence
	Logger     *slog.Logger
}

func NewService(opts Options) *Service {
	if opts.Prompts == nil {
		opts.Prompts = prompt.NewBuilder(prompt.ModeDynamic, 0)
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(opts.Prompts.Mode(), opts.Logger)
	}
	return &Service{
		extractor:  opts.Extractor,
		gate:       opts.Gate,
		prompts:    opts.Prompts,
		backend:    opts.Backend,
		normalizer: opts.Normalizer,
		repo:       opts.Repository,
		logger:     logging.OrDiscard(opts.Logger),
	}
}

// Analyze extracts, classifies, prompts, completes and normalizes one upload.
//
// Errors: extract.ErrNoText when the document has no text, ErrNotMedical when
// the gate rejects it, and completion.ErrUnavailable when no backend answered.
// On ErrUnavailable the returned analysis carries the unavailability record.
// Rejected documents are stored with Medical false and an empty record.
func (s *Service) Analyze(ctx context.Context, filename string, data []byte, modelChoice string) (*models.Analysis, error) {
	log := logging.FromContext(ctx, s.logger)
	start := time.Now()
	choice := completion.NormalizeChoice(modelChoice)

	doc, err := s.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	analysis := &models.Analysis{
		Filename:    doc.Filename,
		MimeType:    doc.MimeType,
		ModelChoice: choice,
		Medical:     true,
	}
	if s.gate != nil && !s.gate.Classify(ctx, doc.Text) {
		log.Info("report.rejected", "filename", filename)
		analysis.Medical = false
		analysis.Record = models.NewRecord()
		s.save(ctx, analysis)
		return analysis, ErrNotMedical
	}

	log.Info("report.analyze", "filename", filename, "mode", s.prompts.Mode(), "choice", choice)
	raw, err := completion.Prompt(ctx, s.backend.For(choice), s.prompts.Build(doc.Text))
	if err != nil {
		analysis.Record = s.normalizer.Normalize(ctx, nil)
		if !errors.Is(err, completion.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", completion.ErrUnavailable, err)
		}
		return analysis, err
	}

	analysis.Record = s.normalizer.Normalize(ctx, &raw)
	s.save(ctx, analysis)
	log.Info("report.done", "filename", filename, "keys", analysis.Record.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	return analysis, nil
}

func (s *Service) save(ctx context.Context, a *models.Analysis) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, a); err != nil {
		logging.FromContext(ctx, s.logger).Error("report.save_failed", "filename", a.Filename, "error", err)
	}
}
