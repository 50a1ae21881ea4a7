package advisory

import (
	"context"
	"encoding/json"
	"fmt"
)

var symptomRequiredKeys = []string{"analysis", "possible_conditions", "recommendations", "emergency"}

const symptomSystemPrompt = `You are a medical assistant AI. Analyze the following symptoms and provide:
1. A brief analysis of the symptoms
2. A list of possible conditions with confidence levels (low, medium, high)
3. Recommendations for the patient
4. Whether this requires emergency attention (true/false)

Format your response as a JSON object with these keys:
{
    "analysis": "Your detailed analysis here",
    "possible_conditions": [
        {"condition": "Condition name", "confidence": "low/medium/high", "match_percentage": 0-100, "description": "Brief description"}
    ],
    "recommendations": "Your recommendations here",
    "emergency": true/false
}`

// PatientInfo describes the patient behind a symptom check.
type PatientInfo struct {
	Age            *int
	Gender         string
	AdditionalInfo map[string]interface{}
}

// SymptomInput is one reported symptom.
type SymptomInput struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Duration string `json:"duration"`
	Notes    string `json:"notes"`
}

type Condition struct {
	Condition       string  `json:"condition"`
	Confidence      string  `json:"confidence"`
	MatchPercentage float64 `json:"match_percentage"`
	Description     string  `json:"description"`
}

type SymptomAnalysis struct {
	Analysis           string      `json:"analysis"`
	PossibleConditions []Condition `json:"possible_conditions"`
	Recommendations    string      `json:"recommendations"`
	Emergency          bool        `json:"emergency"`

	Fallback bool `json:"-"`
}

// FallbackAnalysis is returned when no usable analysis is available.
func FallbackAnalysis() SymptomAnalysis {
	return SymptomAnalysis{
		Analysis:           "Unable to complete symptom analysis. Please consult with a healthcare professional.",
		PossibleConditions: []Condition{},
		Recommendations:    "Please consult with a healthcare professional for a proper diagnosis.",
		Emergency:          false,
		Fallback:           true,
	}
}

// AnalyzeSymptoms assesses a set of symptoms.
func (a *Advisor) AnalyzeSymptoms(ctx context.Context, patient PatientInfo, symptoms []SymptomInput) SymptomAnalysis {
	age := "None"
	if patient.Age != nil {
		age = fmt.Sprintf("%d", *patient.Age)
	}
	extra, err := json.Marshal(patient.AdditionalInfo)
	if err != nil || patient.AdditionalInfo == nil {
		extra = []byte("{}")
	}
	if symptoms == nil {
		symptoms = []SymptomInput{}
	}

	prompt := fmt.Sprintf("Patient Information:\n- Age: %s\n- Gender: %s\n- Additional Info: %s\n\nSymptoms:\n%s\n\nPlease analyze these symptoms and provide an assessment.",
		age, patient.Gender, extra, indentJSON(symptoms))

	text, err := a.complete(ctx, FlowSymptoms, CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: symptomSystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		a.fallback(ctx, FlowSymptoms, err)
		return FallbackAnalysis()
	}

	var analysis SymptomAnalysis
	if err := decodeObject(text, symptomRequiredKeys, &analysis); err != nil {
		a.fallback(ctx, FlowSymptoms, err)
		return FallbackAnalysis()
	}
	if analysis.PossibleConditions == nil {
		analysis.PossibleConditions = []Condition{}
	}
	return analysis
}
