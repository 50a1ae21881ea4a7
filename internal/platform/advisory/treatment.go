package advisory

import (
	"context"
	"fmt"
	"strings"
)

// Treatment types a recommendation may carry.
var treatmentTypes = map[string]bool{
	"medication": true,
	"procedure":  true,
	"therapy":    true,
	"lifestyle":  true,
	"monitoring": true,
	"other":      true,
}

var treatmentRequiredKeys = []string{"title", "description", "type"}

const treatmentSystemPrompt = `You are a medical treatment recommendation AI. Based on the diagnosis information provided,
suggest an appropriate treatment plan. Consider the condition, patient demographics, and symptoms.

Format your response as a JSON object with these keys:
{
    "title": "Brief treatment plan title",
    "description": "Detailed description of the treatment approach",
    "type": "One of: medication, procedure, therapy, lifestyle, monitoring, other",
    "medication_name": "Name of medication (if applicable)",
    "dosage": "Recommended dosage (if applicable)",
    "frequency": "How often to take/do (if applicable)",
    "duration": "How long to continue treatment",
    "instructions": "Detailed instructions for following the treatment",
    "side_effects": "Potential side effects to watch for",
    "precautions": "Precautions and warnings"
}

IMPORTANT: Begin with general treatment approaches. DO NOT prescribe specific medications with specific dosages,
as this requires a doctor's supervision. Instead, mention classes of medications that might be appropriate and
general dosing considerations. Always recommend consulting with a healthcare professional.`

// DiagnosisContext is the diagnosis data sent with a treatment request.
type DiagnosisContext struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ICDCode         string   `json:"icd_code"`
	Status          string   `json:"status"`
	RelatedSymptoms []string `json:"related_symptoms"`
	// Age and Gender hold "Unknown" when the account leaves them empty.
	Age    interface{} `json:"user_age"`
	Gender string      `json:"user_gender"`
}

// TreatmentAdvice is a suggested treatment plan.
type TreatmentAdvice struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Type           string `json:"type"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
	Instructions   string `json:"instructions"`
	SideEffects    string `json:"side_effects"`
	Precautions    string `json:"precautions"`

	// Fallback is set when the advice is the fixed default plan.
	Fallback bool `json:"-"`
}

// FallbackTreatment is returned when no usable recommendation is available.
func FallbackTreatment() TreatmentAdvice {
	return TreatmentAdvice{
		Title:        "General management approach",
		Description:  "This is a general management approach. Please consult with a healthcare professional for a personalized treatment plan.",
		Type:         "other",
		Instructions: "Consult with a healthcare professional for proper diagnosis and treatment.",
		Fallback:     true,
	}
}

// RecommendTreatment suggests a treatment plan for a diagnosis.
func (a *Advisor) RecommendTreatment(ctx context.Context, dx DiagnosisContext) TreatmentAdvice {
	if dx.Age == nil {
		dx.Age = "Unknown"
	}
	if dx.Gender == "" {
		dx.Gender = "Unknown"
	}
	if dx.RelatedSymptoms == nil {
		dx.RelatedSymptoms = []string{}
	}

	prompt := fmt.Sprintf("Diagnosis Information:\n%s\n\nPlease suggest an appropriate treatment plan for this diagnosis.",
		indentJSON(dx))

	text, err := a.complete(ctx, FlowTreatment, CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: treatmentSystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   800,
	})
	if err != nil {
		a.fallback(ctx, FlowTreatment, err)
		return FallbackTreatment()
	}

	var advice TreatmentAdvice
	if err := decodeObject(text, treatmentRequiredKeys, &advice); err != nil {
		a.fallback(ctx, FlowTreatment, err)
		return FallbackTreatment()
	}

	advice.Type = strings.ToLower(strings.TrimSpace(advice.Type))
	if !treatmentTypes[advice.Type] {
		advice.Type = "other"
	}
	return advice
}
