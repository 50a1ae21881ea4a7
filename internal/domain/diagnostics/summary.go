package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
)

const summaryLineHeight = 6

// SummaryPDF renders a diagnosis with its treatments and follow-ups as an A4
// PDF document.
func (s *Service) SummaryPDF(ctx context.Context, ownerID, id uuid.UUID) ([]byte, error) {
	d, err := s.GetDiagnosis(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Diagnosis summary: "+d.Title, true)
	pdf.SetCreator("HealthMate", true)
	pdf.SetCreationDate(s.today().Time)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10,
			tr("Generated by HealthMate. This summary does not replace advice from a healthcare professional."),
			"", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(d.Title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	field := func(label, value string) {
		if value == "" {
			return
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, summaryLineHeight, tr(label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, summaryLineHeight, tr(value), "", "L", false)
	}
	heading := func(text string) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 8, tr(text), "B", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	field("Status", d.Status)
	field("Source", d.Source)
	field("Confidence", d.Confidence)
	field("ICD code", d.ICDCode)
	field("Diagnosed", d.DiagnosisDate.String())
	field("Resolved", d.ResolvedDate.String())
	field("Related symptoms", strings.Join(d.RelatedSymptoms, ", "))
	field("Description", d.Description)
	field("Notes", d.Notes)

	heading(fmt.Sprintf("Treatments (%d)", len(d.Treatments)))
	if len(d.Treatments) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.CellFormat(0, summaryLineHeight, "No treatments recorded.", "", 1, "L", false, 0, "")
	}
	for i, t := range d.Treatments {
		if i > 0 {
			pdf.Ln(3)
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 7, tr(fmt.Sprintf("%s (%s, %s)", t.Title, t.TreatmentType, t.Status)), "", "L", false)
		field("Period", period(t.StartDate.String(), t.EndDate.String()))
		field("Medication", t.MedicationName)
		field("Dosage", t.Dosage)
		field("Frequency", t.Frequency)
		field("Duration", t.Duration)
		field("Instructions", t.Instructions)
		field("Side effects", t.SideEffects)
		field("Precautions", t.Precautions)
		if t.EffectivenessRating != nil {
			field("Effectiveness", fmt.Sprintf("%d/%d", *t.EffectivenessRating, MaxRating))
		}
		if t.AdherenceRating != nil {
			field("Adherence", fmt.Sprintf("%d/%d", *t.AdherenceRating, MaxRating))
		}
	}

	heading(fmt.Sprintf("Follow-ups (%d)", len(d.FollowUps)))
	if len(d.FollowUps) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.CellFormat(0, summaryLineHeight, "No follow-ups recorded.", "", 1, "L", false, 0, "")
	}
	for i, f := range d.FollowUps {
		if i > 0 {
			pdf.Ln(3)
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 7, tr(fmt.Sprintf("%s (%s, %s)", f.Title, f.FollowUpType, f.Status)), "", "L", false)
		field("Recommended", f.RecommendedDate.String())
		field("Scheduled", f.ScheduledDate.String())
		field("Completed", f.CompletedDate.String())
		field("Results", f.Results)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render diagnosis summary: %w", err)
	}
	return buf.Bytes(), nil
}

func period(start, end string) string {
	if end == "" {
		return "from " + start
	}
	return start + " to " + end
}
