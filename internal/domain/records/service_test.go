package records

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/blobstore"
)

type mockRecordRepo struct {
	records    map[uuid.UUID]*Record
	failCreate error
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *mockRecordRepo) Create(_ context.Context, r *Record) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	r.UploadedAt = time.Now()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.setDisplay()
	return &cp, nil
}

func (m *mockRecordRepo) UpdateMetadata(_ context.Context, r *Record) error {
	existing, ok := m.records[r.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = r.Title
	existing.Description = r.Description
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockRecordRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	var out []*Record
	for _, r := range m.records {
		if r.OwnerID != f.OwnerID {
			continue
		}
		if f.RecordType != "" && r.RecordType != f.RecordType {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(r.Title+" "+r.Description), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	total := len(out)
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func newTestService() (*Service, *mockRecordRepo, *blobstore.InMemoryStore) {
	repo := newMockRecordRepo()
	blobs := blobstore.NewInMemoryStore(1024)
	return NewService(repo, blobs, zerolog.Nop()), repo, blobs
}

func upload(t *testing.T, svc *Service, owner uuid.UUID, recordType string) *Record {
	t.Helper()
	rec, err := svc.Upload(context.Background(), owner, Upload{
		Title:       "Blood panel",
		RecordType:  recordType,
		Description: "fasting",
		FileName:    "panel.pdf",
		ContentType: "application/pdf",
	}, strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return rec
}

func TestUpload_StoresFileUnderTypedKey(t *testing.T) {
	svc, _, blobs := newTestService()
	owner := uuid.New()

	rec := upload(t, svc, owner, "lab")
	want := "records/lab/" + rec.ID.String() + "/panel.pdf"
	if rec.FileKey != want {
		t.Errorf("expected key %s, got %s", want, rec.FileKey)
	}
	if rec.Size != int64(len("%PDF-1.4")) {
		t.Errorf("unexpected size %d", rec.Size)
	}
	if rec.RecordTypeDisplay != "Lab Report" {
		t.Errorf("unexpected display %q", rec.RecordTypeDisplay)
	}
	if blobs.Len() != 1 {
		t.Errorf("expected 1 blob, got %d", blobs.Len())
	}
}

func TestUpload_Validation(t *testing.T) {
	svc, _, blobs := newTestService()
	owner := uuid.New()
	ctx := context.Background()

	tests := []struct {
		name string
		u    Upload
	}{
		{"missing title", Upload{RecordType: "lab", FileName: "a.pdf"}},
		{"long title", Upload{Title: strings.Repeat("x", MaxTitleLength+1), RecordType: "lab", FileName: "a.pdf"}},
		{"bad type", Upload{Title: "t", RecordType: "xray", FileName: "a.pdf"}},
		{"no file name", Upload{Title: "t", RecordType: "lab", FileName: ".."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, owner, tt.u, strings.NewReader("data"))
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	_, err := svc.Upload(ctx, owner, Upload{Title: "big", RecordType: "lab", FileName: "big.bin"}, strings.NewReader(strings.Repeat("x", 2048)))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error for oversize file, got %v", err)
	}
	if blobs.Len() != 0 {
		t.Errorf("expected no blobs stored, got %d", blobs.Len())
	}
}

func TestUpload_TitleAtLimit(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Upload(context.Background(), uuid.New(), Upload{
		Title: strings.Repeat("é", MaxTitleLength), RecordType: "other", FileName: "a.txt",
	}, strings.NewReader("x"))
	if err != nil {
		t.Errorf("100-character title should be accepted: %v", err)
	}
}

func TestUpload_RemovesBlobWhenRowFails(t *testing.T) {
	svc, repo, blobs := newTestService()
	repo.failCreate = errors.New("db down")

	if _, err := svc.Upload(context.Background(), uuid.New(), Upload{Title: "t", RecordType: "lab", FileName: "a.pdf"}, strings.NewReader("x")); err == nil {
		t.Fatal("expected error")
	}
	if blobs.Len() != 0 {
		t.Errorf("expected orphan blob to be removed, got %d", blobs.Len())
	}
}

func TestGet_OwnerScoped(t *testing.T) {
	svc, _, _ := newTestService()
	owner := uuid.New()
	rec := upload(t, svc, owner, "imaging")

	if _, err := svc.Get(context.Background(), owner, rec.ID); err != nil {
		t.Errorf("owner should see record: %v", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for other user, got %v", err)
	}
}

func TestUpdate_OnlyMetadata(t *testing.T) {
	svc, repo, _ := newTestService()
	owner := uuid.New()
	rec := upload(t, svc, owner, "lab")

	title, desc := "Lipid panel", "repeat in 6 months"
	got, err := svc.Update(context.Background(), owner, rec.ID, UpdateRequest{Title: &title, Description: &desc})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != title || got.Description != desc {
		t.Errorf("unexpected record: %+v", got)
	}
	stored := repo.records[rec.ID]
	if stored.FileKey != rec.FileKey || stored.RecordType != "lab" {
		t.Error("file and type must not change")
	}

	empty := "  "
	if _, err := svc.Update(context.Background(), owner, rec.ID, UpdateRequest{Title: &empty}); !errors.Is(err, ErrTitleRequired) {
		t.Errorf("expected title required, got %v", err)
	}
}

func TestDelete_RemovesBlob(t *testing.T) {
	svc, repo, blobs := newTestService()
	owner := uuid.New()
	rec := upload(t, svc, owner, "lab")

	if err := svc.Delete(context.Background(), uuid.New(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for other user, got %v", err)
	}
	if err := svc.Delete(context.Background(), owner, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(repo.records) != 0 || blobs.Len() != 0 {
		t.Errorf("expected record and blob removed, have %d records %d blobs", len(repo.records), blobs.Len())
	}
}

func TestOpen(t *testing.T) {
	svc, _, _ := newTestService()
	owner := uuid.New()
	rec := upload(t, svc, owner, "prescription")

	rc, got, err := svc.Open(context.Background(), owner, rec.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF-1.4" || got.ContentType != "application/pdf" {
		t.Errorf("unexpected file: %q %s", data, got.ContentType)
	}
}

func TestList_FiltersByType(t *testing.T) {
	svc, _, _ := newTestService()
	owner := uuid.New()
	upload(t, svc, owner, "lab")
	upload(t, svc, owner, "imaging")
	upload(t, svc, uuid.New(), "lab")

	_, total, err := svc.List(context.Background(), Filter{OwnerID: owner, RecordType: "lab"}, 20, 0)
	if err != nil || total != 1 {
		t.Errorf("expected 1 lab record, got %d (%v)", total, err)
	}
	if _, _, err := svc.List(context.Background(), Filter{OwnerID: owner, RecordType: "xray"}, 20, 0); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}
