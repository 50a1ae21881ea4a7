package date

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestParse(t *testing.T) {
	d, err := Parse("2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.March || d.Day() != 15 {
		t.Errorf("unexpected date %v", d)
	}
	if _, err := Parse("15/03/2024"); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestOf_TruncatesTime(t *testing.T) {
	d := Of(time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC))
	if d.Hour() != 0 || d.Minute() != 0 {
		t.Errorf("expected midnight, got %v", d.Time)
	}
	if !d.Equal(Date{time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}) {
		t.Errorf("unexpected date %v", d)
	}
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		When Date `json:"when"`
	}

	b, err := json.Marshal(wrapper{When: Of(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC))})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"when":"2024-01-02"}` {
		t.Errorf("unexpected JSON %s", b)
	}

	b, _ = json.Marshal(wrapper{})
	if string(b) != `{"when":null}` {
		t.Errorf("expected null for zero date, got %s", b)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"when":"2024-05-06"}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.When.String() != "2024-05-06" {
		t.Errorf("expected 2024-05-06, got %s", w.When)
	}
	if err := json.Unmarshal([]byte(`{"when":"yesterday"}`), &w); err == nil {
		t.Error("expected error for invalid date")
	}
}

func TestPgxRoundTrip(t *testing.T) {
	var d Date
	if err := d.ScanDate(pgtype.Date{}); err != nil || !d.IsZero() {
		t.Errorf("expected zero date for NULL, got %v (%v)", d, err)
	}

	src := pgtype.Date{Time: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), Valid: true}
	if err := d.ScanDate(src); err != nil {
		t.Fatalf("scan: %v", err)
	}
	v, err := d.DateValue()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if !v.Valid || !v.Time.Equal(src.Time) {
		t.Errorf("unexpected value %+v", v)
	}

	v, _ = Date{}.DateValue()
	if v.Valid {
		t.Error("expected invalid value for zero date")
	}
}
