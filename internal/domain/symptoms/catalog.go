package symptoms

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile is the layout of the seed file:
//
//	symptoms:
//	  - name: Headache
//	    body_part: Head
//	    severity_scale: 5
type catalogFile struct {
	Symptoms []Symptom `yaml:"symptoms"`
}

// LoadCatalog parses a YAML symptom catalog and validates every entry.
func LoadCatalog(r io.Reader) ([]Symptom, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse symptom catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Symptoms))
	for i := range f.Symptoms {
		s := &f.Symptoms[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return nil, fmt.Errorf("symptom %d: name is required", i+1)
		}
		if seen[strings.ToLower(s.Name)] {
			return nil, fmt.Errorf("symptom %q is listed twice", s.Name)
		}
		seen[strings.ToLower(s.Name)] = true
		if s.SeverityScale == 0 {
			s.SeverityScale = 1
		}
		if s.SeverityScale < MinSeverity || s.SeverityScale > MaxSeverity {
			return nil, fmt.Errorf("symptom %q: severity_scale must be between %d and %d", s.Name, MinSeverity, MaxSeverity)
		}
		if s.CommonRelatedConditions == nil {
			s.CommonRelatedConditions = []string{}
		}
	}
	return f.Symptoms, nil
}

// SeedCatalog upserts the entries by name in one transaction and returns how
// many were written.
func (s *Service) SeedCatalog(ctx context.Context, entries []Symptom) (int, error) {
	n := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for i := range entries {
			sym := entries[i]
			if err := s.catalog.Upsert(ctx, &sym); err != nil {
				return fmt.Errorf("upsert symptom %q: %w", sym.Name, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int("symptoms", n).Msg("symptom catalog seeded")
	return n, nil
}
