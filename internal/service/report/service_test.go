package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"medreport/internal/completion"
	"medreport/internal/extract"
	"medreport/internal/models"
	"medreport/internal/prompt"
)

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) Extract(ctx context.Context, filename string, data []byte) (*models.ExtractedDocument, error) {
	doc := &models.ExtractedDocument{Filename: filename, MimeType: extract.MimeType(filename), Text: s.text}
	return doc, s.err
}

type stubGate bool

func (g stubGate) Classify(ctx context.Context, text string) bool { return bool(g) }

type stubBackend struct {
	reply   string
	err     error
	choices []string
	prompts []string
}

func (b *stubBackend) For(choice string) completion.Client {
	b.choices = append(b.choices, choice)
	return completion.ClientFunc(func(ctx context.Context, msgs []models.Message) (string, error) {
		b.prompts = append(b.prompts, msgs[0].Content)
		return b.reply, b.err
	})
}

type memRepo struct{ saved []*models.Analysis }

func (m *memRepo) Save(ctx context.Context, a *models.Analysis) error {
	a.ID = "id-1"
	m.saved = append(m.saved, a)
	return nil
}

func TestAnalyzeHappyPath(t *testing.T) {
	backend := &stubBackend{reply: "```json\n{\"conditions\": [\"flu\"], \"Patient Name\": \"X\"}\n```"}
	repo := &memRepo{}
	svc := NewService(Options{
		Extractor:  stubExtractor{text: strings.Repeat("r", 3000)},
		Gate:       stubGate(true),
		Prompts:    prompt.NewBuilder(prompt.ModeDynamic, 2500),
		Backend:    backend,
		Repository: repo,
	})

	a, err := svc.Analyze(context.Background(), "scan.png", []byte("img"), "LOCAL")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Record.String() != `{"conditions":["flu"]}` {
		t.Fatalf("unexpected record %s", a.Record.String())
	}
	if a.ModelChoice != "local" || backend.choices[0] != "local" {
		t.Fatalf("model choice not forwarded: %q %v", a.ModelChoice, backend.choices)
	}
	if strings.Contains(backend.prompts[0], strings.Repeat("r", 2501)) {
		t.Fatalf("prompt excerpt exceeds cap")
	}
	if len(repo.saved) != 1 || a.ID != "id-1" || a.MimeType != "image/png" {
		t.Fatalf("analysis not persisted: %+v", a)
	}
}

func TestAnalyzeExtractionFailureSkipsCompletion(t *testing.T) {
	backend := &stubBackend{}
	svc := NewService(Options{Extractor: stubExtractor{err: extract.ErrNoText}, Backend: backend})
	if _, err := svc.Analyze(context.Background(), "a.pdf", nil, ""); !errors.Is(err, extract.ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
	if len(backend.choices) != 0 {
		t.Fatalf("no completion call expected")
	}
}

func TestAnalyzeRejectsNonMedical(t *testing.T) {
	backend := &stubBackend{}
	repo := &memRepo{}
	svc := NewService(Options{Extractor: stubExtractor{text: "invoice"}, Gate: stubGate(false), Backend: backend, Repository: repo})
	a, err := svc.Analyze(context.Background(), "a.txt", nil, "")
	if !errors.Is(err, ErrNotMedical) {
		t.Fatalf("expected ErrNotMedical, got %v", err)
	}
	if len(backend.choices) != 0 {
		t.Fatalf("no analysis call expected")
	}
	if len(repo.saved) != 1 || repo.saved[0] != a {
		t.Fatalf("rejection not persisted")
	}
	if a.Medical || a.Record.Len() != 0 {
		t.Fatalf("expected non-medical analysis with empty record, got %+v", a)
	}
}

func TestAnalyzeRecordsMedicalVerdict(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(Options{
		Extractor:  stubExtractor{text: "BP 120/80"},
		Gate:       stubGate(true),
		Backend:    &stubBackend{reply: `{"vitals": ["BP 120/80"]}`},
		Repository: repo,
	})
	if _, err := svc.Analyze(context.Background(), "a.txt", nil, ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(repo.saved) != 1 || !repo.saved[0].Medical {
		t.Fatalf("expected persisted medical analysis")
	}
}

func TestAnalyzeCompletionUnavailable(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(Options{
		Extractor:  stubExtractor{text: "BP 120/80"},
		Backend:    &stubBackend{err: errors.New("dial tcp: refused")},
		Repository: repo,
	})
	a, err := svc.Analyze(context.Background(), "a.txt", nil, "")
	if !errors.Is(err, completion.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if a == nil || !a.Record.Has("Error") {
		t.Fatalf("expected unavailability record")
	}
	if len(repo.saved) != 0 {
		t.Fatalf("failed analyses must not be persisted")
	}
}
