package symptoms

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/domain/account"
	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/db"
	"github.com/healthmate/healthmate/pkg/date"
)

// -- Mock Repositories --

type mockCatalog struct {
	items map[uuid.UUID]*Symptom
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{items: make(map[uuid.UUID]*Symptom)}
}

func (m *mockCatalog) add(name string) *Symptom {
	s := &Symptom{ID: uuid.New(), Name: name, SeverityScale: 5, CommonRelatedConditions: []string{}}
	m.items[s.ID] = s
	return s
}

func (m *mockCatalog) Search(_ context.Context, f CatalogFilter, limit, offset int) ([]*Symptom, int, error) {
	var out []*Symptom
	for _, s := range m.items {
		if f.Query != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Query)) {
			continue
		}
		if f.BodyPart != "" && s.BodyPart != f.BodyPart {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (m *mockCatalog) GetByID(_ context.Context, id uuid.UUID) (*Symptom, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, ErrSymptomNotFound
	}
	return s, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*Symptom, error) {
	var out []*Symptom
	for _, id := range ids {
		if s, ok := m.items[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockCatalog) Upsert(_ context.Context, s *Symptom) error {
	for _, existing := range m.items {
		if existing.Name == s.Name {
			s.ID = existing.ID
			cp := *s
			m.items[s.ID] = &cp
			return nil
		}
	}
	s.ID = uuid.New()
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

type mockUserSymptoms struct {
	items map[uuid.UUID]*UserSymptom
}

func newMockUserSymptoms() *mockUserSymptoms {
	return &mockUserSymptoms{items: make(map[uuid.UUID]*UserSymptom)}
}

func (m *mockUserSymptoms) Create(_ context.Context, u *UserSymptom) error {
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.items[u.ID] = &cp
	return nil
}

func (m *mockUserSymptoms) GetByID(_ context.Context, id uuid.UUID) (*UserSymptom, error) {
	u, ok := m.items[id]
	if !ok {
		return nil, ErrUserSymptomNotFound
	}
	cp := *u
	cp.setDisplay()
	return &cp, nil
}

func (m *mockUserSymptoms) Update(_ context.Context, u *UserSymptom) error {
	if _, ok := m.items[u.ID]; !ok {
		return ErrUserSymptomNotFound
	}
	cp := *u
	m.items[u.ID] = &cp
	return nil
}

func (m *mockUserSymptoms) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrUserSymptomNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockUserSymptoms) Search(_ context.Context, f UserSymptomFilter, limit, offset int) ([]*UserSymptom, int, error) {
	var out []*UserSymptom
	for _, u := range m.items {
		if u.OwnerID != f.OwnerID {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if f.Severity != nil && u.Severity != *f.Severity {
			continue
		}
		if f.SymptomID != nil && u.SymptomID != *f.SymptomID {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

type mockChecks struct {
	items    map[uuid.UUID]*Check
	order    []uuid.UUID
	analyzed map[uuid.UUID]int
}

func newMockChecks() *mockChecks {
	return &mockChecks{items: make(map[uuid.UUID]*Check), analyzed: make(map[uuid.UUID]int)}
}

func (m *mockChecks) Create(_ context.Context, c *Check) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.PossibleConditions = []advisory.Condition{}
	cp := *c
	m.items[c.ID] = &cp
	m.order = append(m.order, c.ID)
	return nil
}

func (m *mockChecks) GetByID(_ context.Context, id uuid.UUID) (*Check, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, ErrCheckNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockChecks) Latest(_ context.Context, ownerID uuid.UUID) (*Check, error) {
	for i := len(m.order) - 1; i >= 0; i-- {
		if c := m.items[m.order[i]]; c.OwnerID == ownerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNoChecks
}

func (m *mockChecks) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*Check, int, error) {
	var out []*Check
	for i := len(m.order) - 1; i >= 0; i-- {
		if c := m.items[m.order[i]]; c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *mockChecks) SaveAnalysis(_ context.Context, id uuid.UUID, a advisory.SymptomAnalysis) (*Check, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, ErrCheckNotFound
	}
	if c.AnalyzedAt != nil {
		return nil, ErrAlreadyAnalyzed
	}
	m.analyzed[id]++
	now := time.Now()
	c.AIAnalysis = a.Analysis
	c.PossibleConditions = a.PossibleConditions
	c.Recommendations = a.Recommendations
	c.EmergencyLevel = a.Emergency
	c.AnalyzedAt = &now
	cp := *c
	return &cp, nil
}

type mockAccounts map[uuid.UUID]*account.Account

func (m mockAccounts) Get(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a, ok := m[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a, nil
}

type fakeCompleter struct {
	reply string
	err   error
	calls []advisory.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req advisory.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

// -- Fixture --

type fixture struct {
	svc       *Service
	catalog   *mockCatalog
	symptoms  *mockUserSymptoms
	checks    *mockChecks
	accounts  mockAccounts
	completer *fakeCompleter
}

func newFixture() *fixture {
	f := &fixture{
		catalog:   newMockCatalog(),
		symptoms:  newMockUserSymptoms(),
		checks:    newMockChecks(),
		accounts:  mockAccounts{},
		completer: &fakeCompleter{},
	}
	advisor := advisory.New(f.completer, zerolog.Nop(), nil, time.Second)
	f.svc = NewService(f.catalog, f.symptoms, f.checks, db.NopTransactor{}, advisor, f.accounts, zerolog.Nop())
	f.svc.today = func() date.Date { return date.Of(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)) }
	return f
}

func intPtr(v int) *int { return &v }

const analysisReply = "```json\n" + `{
  "analysis": "Likely a viral infection.",
  "possible_conditions": [
    {"condition": "Influenza", "confidence": "high", "match_percentage": 80, "description": "Flu"},
    {"condition": "Common Cold", "confidence": "medium", "match_percentage": 55, "description": "Cold"}
  ],
  "recommendations": "Rest and fluids.",
  "emergency": false
}` + "\n```"

// -- Tests --

func TestSeverityLabel(t *testing.T) {
	tests := map[int]string{0: "", 1: "Very Mild", 5: "Concerning", 10: "Emergency", 11: ""}
	for severity, want := range tests {
		if got := SeverityLabel(severity); got != want {
			t.Errorf("SeverityLabel(%d) = %q, want %q", severity, got, want)
		}
	}
}

func TestCreateUserSymptom(t *testing.T) {
	f := newFixture()
	headache := f.catalog.add("Headache")
	owner := uuid.New()

	u, err := f.svc.CreateUserSymptom(context.Background(), owner, UserSymptomRequest{
		SymptomID: headache.ID,
		Severity:  7,
		OnsetDate: date.Of(time.Now()),
	})
	if err != nil {
		t.Fatalf("CreateUserSymptom: %v", err)
	}
	if !u.IsActive || u.SymptomName != "Headache" || u.SeverityDisplay != "Very Severe" {
		t.Errorf("unexpected symptom: %+v", u)
	}
}

func TestCreateUserSymptom_Validation(t *testing.T) {
	f := newFixture()
	headache := f.catalog.add("Headache")
	onset := date.Of(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	before := date.Of(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name string
		req  UserSymptomRequest
		kind apperr.Kind
	}{
		{"severity too low", UserSymptomRequest{SymptomID: headache.ID, Severity: 0, OnsetDate: onset}, apperr.KindValidation},
		{"severity too high", UserSymptomRequest{SymptomID: headache.ID, Severity: 11, OnsetDate: onset}, apperr.KindValidation},
		{"missing onset", UserSymptomRequest{SymptomID: headache.ID, Severity: 3}, apperr.KindValidation},
		{"resolved before onset", UserSymptomRequest{SymptomID: headache.ID, Severity: 3, OnsetDate: onset, ResolvedDate: before}, apperr.KindValidation},
		{"unknown symptom", UserSymptomRequest{SymptomID: uuid.New(), Severity: 3, OnsetDate: onset}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateUserSymptom(context.Background(), uuid.New(), tt.req)
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestUserSymptoms_OwnerScopedAndActive(t *testing.T) {
	f := newFixture()
	headache := f.catalog.add("Headache")
	owner := uuid.New()
	ctx := context.Background()

	u, err := f.svc.CreateUserSymptom(ctx, owner, UserSymptomRequest{SymptomID: headache.ID, Severity: 4, OnsetDate: f.svc.today()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GetUserSymptom(ctx, uuid.New(), u.ID); !errors.Is(err, ErrUserSymptomNotFound) {
		t.Errorf("expected not found for stranger, got %v", err)
	}

	inactive := false
	resolved := f.svc.today()
	if _, err := f.svc.UpdateUserSymptom(ctx, owner, u.ID, UserSymptomUpdate{IsActive: &inactive, ResolvedDate: &resolved}); err != nil {
		t.Fatalf("UpdateUserSymptom: %v", err)
	}
	_, total, err := f.svc.ActiveUserSymptoms(ctx, owner, 20, 0)
	if err != nil || total != 0 {
		t.Errorf("expected no active symptoms, got %d (%v)", total, err)
	}

	if err := f.svc.DeleteUserSymptom(ctx, uuid.New(), u.ID); !errors.Is(err, ErrUserSymptomNotFound) {
		t.Errorf("stranger delete: expected not found, got %v", err)
	}
	if err := f.svc.DeleteUserSymptom(ctx, owner, u.ID); err != nil {
		t.Errorf("DeleteUserSymptom: %v", err)
	}
}

func TestCreateCheck_CreatesSymptomsAndAnalysis(t *testing.T) {
	f := newFixture()
	f.completer.reply = analysisReply
	fever, cough := f.catalog.add("Fever"), f.catalog.add("Cough")
	owner := uuid.New()
	f.accounts[owner] = &account.Account{ID: owner, Age: intPtr(34), Gender: "F"}

	var info map[string]interface{}
	raw := `{"severity":[{"symptom_id":"` + fever.ID.String() + `","severity":8}],"duration_days":3}`
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		t.Fatal(err)
	}

	check, err := f.svc.CreateCheck(context.Background(), owner, CheckRequest{
		SymptomIDs:     []uuid.UUID{fever.ID, cough.ID, fever.ID},
		AdditionalInfo: info,
	})
	if err != nil {
		t.Fatalf("CreateCheck: %v", err)
	}

	if len(check.Symptoms) != 2 {
		t.Fatalf("expected 2 user symptoms, got %d", len(check.Symptoms))
	}
	severities := map[string]int{}
	for _, u := range check.Symptoms {
		severities[u.SymptomName] = u.Severity
		if !u.IsActive || u.OnsetDate.String() != "2025-03-04" {
			t.Errorf("unexpected symptom state: %+v", u)
		}
	}
	if severities["Fever"] != 8 || severities["Cough"] != DefaultSeverity {
		t.Errorf("unexpected severities: %v", severities)
	}
	if len(f.symptoms.items) != 2 {
		t.Errorf("expected 2 stored user symptoms, got %d", len(f.symptoms.items))
	}

	if check.AIAnalysis != "Likely a viral infection." || len(check.PossibleConditions) != 2 {
		t.Errorf("analysis not stored: %+v", check)
	}
	if f.checks.analyzed[check.ID] != 1 {
		t.Errorf("expected analysis written once, got %d", f.checks.analyzed[check.ID])
	}

	prompt := f.completer.calls[0].Messages[1].Content
	for _, want := range []string{"Age: 34", "Gender: Female", `"severity": "Extreme"`, "Since 2025-03-04", "duration_days"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestCreateCheck_FallbackStillPersists(t *testing.T) {
	f := newFixture()
	f.completer.err = errors.New("upstream 503")
	fever := f.catalog.add("Fever")
	owner := uuid.New()

	check, err := f.svc.CreateCheck(context.Background(), owner, CheckRequest{SymptomIDs: []uuid.UUID{fever.ID}})
	if err != nil {
		t.Fatalf("CreateCheck: %v", err)
	}
	want := advisory.FallbackAnalysis()
	if check.AIAnalysis != want.Analysis || check.Recommendations != want.Recommendations || check.EmergencyLevel {
		t.Errorf("expected fallback analysis, got %+v", check)
	}
	if check.PossibleConditions == nil || len(check.PossibleConditions) != 0 {
		t.Errorf("expected empty condition list, got %v", check.PossibleConditions)
	}
}

func TestCreateCheck_Validation(t *testing.T) {
	f := newFixture()
	fever := f.catalog.add("Fever")
	ctx := context.Background()

	if _, err := f.svc.CreateCheck(ctx, uuid.New(), CheckRequest{}); !errors.Is(err, ErrNoSymptoms) {
		t.Errorf("expected no symptoms error, got %v", err)
	}
	if _, err := f.svc.CreateCheck(ctx, uuid.New(), CheckRequest{SymptomIDs: []uuid.UUID{uuid.New()}}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error for unknown symptom, got %v", err)
	}

	bad := map[string]interface{}{
		"severity": []interface{}{map[string]interface{}{"symptom_id": fever.ID.String(), "severity": float64(12)}},
	}
	if _, err := f.svc.CreateCheck(ctx, uuid.New(), CheckRequest{SymptomIDs: []uuid.UUID{fever.ID}, AdditionalInfo: bad}); !errors.Is(err, ErrInvalidSeverity) {
		t.Errorf("expected invalid severity, got %v", err)
	}
	if len(f.checks.items) != 0 {
		t.Errorf("no check should be created on validation failure")
	}
}

func TestSeverityOverrides_FirstEntryWins(t *testing.T) {
	id := uuid.New()
	info := map[string]interface{}{
		"severity": []interface{}{
			map[string]interface{}{"symptom_id": id.String(), "severity": float64(3)},
			map[string]interface{}{"symptom_id": id.String(), "severity": float64(9)},
		},
	}

	got, err := severityOverrides(info)
	if err != nil {
		t.Fatalf("severityOverrides: %v", err)
	}
	if got[id] != 3 {
		t.Errorf("expected first severity 3, got %d", got[id])
	}
}

func TestChecks_OwnerScopedAndRecent(t *testing.T) {
	f := newFixture()
	fever := f.catalog.add("Fever")
	owner := uuid.New()
	ctx := context.Background()

	if _, err := f.svc.RecentCheck(ctx, owner); !errors.Is(err, ErrNoChecks) {
		t.Fatalf("expected no checks, got %v", err)
	}
	if ErrNoChecks.Error() != "No symptom checks found" {
		t.Errorf("unexpected message %q", ErrNoChecks.Error())
	}

	first, _ := f.svc.CreateCheck(ctx, owner, CheckRequest{SymptomIDs: []uuid.UUID{fever.ID}})
	second, _ := f.svc.CreateCheck(ctx, owner, CheckRequest{SymptomIDs: []uuid.UUID{fever.ID}})

	recent, err := f.svc.RecentCheck(ctx, owner)
	if err != nil || recent.ID != second.ID {
		t.Errorf("expected most recent check %s, got %v (%v)", second.ID, recent, err)
	}
	if _, err := f.svc.GetCheck(ctx, uuid.New(), first.ID); !errors.Is(err, ErrCheckNotFound) {
		t.Errorf("expected not found for stranger, got %v", err)
	}
}

func TestSeedCatalog_UpsertsByName(t *testing.T) {
	f := newFixture()
	existing := f.catalog.add("Headache")

	n, err := f.svc.SeedCatalog(context.Background(), []Symptom{
		{Name: "Headache", BodyPart: "Head", SeverityScale: 5},
		{Name: "Fever", BodyPart: "Whole Body", SeverityScale: 6},
	})
	if err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	if n != 2 || len(f.catalog.items) != 2 {
		t.Errorf("expected 2 entries, wrote %d have %d", n, len(f.catalog.items))
	}
	if f.catalog.items[existing.ID].BodyPart != "Head" {
		t.Error("existing entry should be updated in place")
	}
}
