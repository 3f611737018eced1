package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type processRepoFake struct {
	doc              *domain.Document
	getErr           error
	saveErr          error
	statusErr        error
	failStatusErr    error
	statusCalls      []statusCall
	classification   domain.Classification
	classificationID string
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error { return nil }

func (f *processRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *processRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusError && f.failStatusErr != nil {
		return f.failStatusErr
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	return nil
}

func (f *processRepoFake) SaveClassification(_ context.Context, id string, cls domain.Classification) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.classificationID = id
	f.classification = cls
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type classifierFake struct {
	cls domain.Classification
	err error
}

func (f *classifierFake) Classify(context.Context, string) (domain.Classification, error) {
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.cls, nil
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(string) []string { return f.chunks }

type embedderFake struct {
	vectors [][]float32
	err     error
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) { return nil, nil }

type vectorFake struct {
	fragments []domain.Fragment
	err       error
}

func (f *vectorFake) Upsert(_ context.Context, fragments []domain.Fragment, _ [][]float32) error {
	f.fragments = fragments
	return f.err
}

func (f *vectorFake) SimilaritySearch(context.Context, []float32, int) ([]domain.Fragment, error) {
	return nil, nil
}

func pendingDoc() *domain.Document {
	return &domain.Document{ID: "doc-1", Filename: "policy.txt", Status: domain.StatusPending}
}

func TestProcessByIDSuccess(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	vector := &vectorFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&classifierFake{cls: domain.Classification{Category: "insurance", Tags: []string{"health"}}},
		&chunkerFake{chunks: []string{"a", "b"}},
		&embedderFake{vectors: [][]float32{{1}, {2}}},
		vector,
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[0].status != domain.StatusProcessing || repo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected status sequence: %+v", repo.statusCalls)
	}
	if repo.classificationID != "doc-1" || repo.classification.Category != "insurance" {
		t.Fatalf("expected classification save for doc-1, got %s %+v", repo.classificationID, repo.classification)
	}

	want := []domain.Fragment{
		{DocumentID: "doc-1", Source: "policy.txt", Section: "chunk 1", Tags: []string{"insurance", "health"}, Text: "a"},
		{DocumentID: "doc-1", Source: "policy.txt", Section: "chunk 2", Tags: []string{"insurance", "health"}, Text: "b"},
	}
	if !reflect.DeepEqual(vector.fragments, want) {
		t.Fatalf("unexpected upserted fragments: %+v", vector.fragments)
	}
}

func TestProcessByIDRejectsInvalidTransition(t *testing.T) {
	doc := pendingDoc()
	doc.Status = domain.StatusProcessing
	repo := &processRepoFake{doc: doc}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "text"}, nil, &chunkerFake{chunks: []string{"a"}}, &embedderFake{}, &vectorFake{})

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if len(repo.statusCalls) != 0 {
		t.Fatalf("expected no status updates, got %+v", repo.statusCalls)
	}
}

func TestProcessByIDClassificationFailureDoesNotFailIngestion(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	vector := &vectorFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&classifierFake{err: errors.New("oracle down")},
		&chunkerFake{chunks: []string{"a"}},
		&embedderFake{vectors: [][]float32{{1}}},
		vector,
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if repo.statusCalls[len(repo.statusCalls)-1].status != domain.StatusReady {
		t.Fatalf("expected ready status, got %+v", repo.statusCalls)
	}
	if len(vector.fragments) != 1 || len(vector.fragments[0].Tags) != 0 {
		t.Fatalf("expected untagged fragment, got %+v", vector.fragments)
	}
}

func TestProcessByIDMarksErrorOnExtractFailure(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{err: errors.New("extract fail")},
		&classifierFake{},
		&chunkerFake{chunks: []string{"a"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&vectorFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected processing + error status updates, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[1].status != domain.StatusError || repo.statusCalls[1].errMsg == "" {
		t.Fatalf("expected error status with message, got %+v", repo.statusCalls[1])
	}
}

func TestProcessByIDMarksErrorOnVectorMismatch(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&classifierFake{},
		&chunkerFake{chunks: []string{"a", "b"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&vectorFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[1].status != domain.StatusError {
		t.Fatalf("expected final error status, got %+v", repo.statusCalls)
	}
}

func TestProcessByIDReportsMarkFailedError(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc(), failStatusErr: errors.New("db down")}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&classifierFake{},
		&chunkerFake{chunks: []string{"a"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&vectorFake{err: errors.New("qdrant down")},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "qdrant down") || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected both errors in message, got %q", err.Error())
	}
}
