package engine

// mapping.go resolves detected source fields into canonical target
// attributes. Mappings start as a one-to-one projection of the detected
// schema and are then operator-edited; every edit goes through
// ValidateMappings before the set is accepted.

import (
	"fmt"
	"strings"
)

// GenerateMappings produces one mapping per detected field. The detected
// type is carried over, the field named by primaryID (usually the suggestion
// from InferSchema) gets the primary-identifier flag, and target fields
// default to a snake_case form of the source name.
func GenerateMappings(fields []DetectedField, primaryID string) []FieldMapping {
	mappings := make([]FieldMapping, 0, len(fields))
	for _, f := range fields {
		mappings = append(mappings, FieldMapping{
			SourceField: f.Name,
			TargetField: targetName(f.Name),
			PrimaryID:   f.Name == primaryID,
			Required:    f.Required,
			Type:        f.Type,
		})
	}
	return mappings
}

// targetName normalizes a source field name into a canonical attribute name:
// lowercase, word breaks as underscores.
func targetName(name string) string {
	var b strings.Builder
	prevUnderscore := true
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevUnderscore = false
		case r == ' ' || r == '-' || r == '.' || r == '_':
			if !prevUnderscore {
				b.WriteByte('_')
			}
			prevUnderscore = true
		default:
			b.WriteRune(r)
			prevUnderscore = false
		}
	}
	return strings.Trim(b.String(), "_")
}

// ReconcileMappings reconstructs a synthetic schema view from stored
// mappings, used when a previously configured source is reopened without
// re-sampling its data. Downstream rule configuration keyed by field names
// stays valid across edits that do not touch the sample.
func ReconcileMappings(mappings []FieldMapping) []DetectedField {
	fields := make([]DetectedField, 0, len(mappings))
	for _, m := range mappings {
		fields = append(fields, DetectedField{
			Name:           m.SourceField,
			Type:           m.Type,
			Confidence:     1,
			Required:       m.Required,
			LooksLikeID:    m.PrimaryID,
			SuggestedLabel: suggestLabel(m.SourceField),
		})
	}
	return fields
}

// FieldTypes returns the declared type of each target attribute, the
// vocabulary rule conditions are validated and evaluated against.
func FieldTypes(mappings []FieldMapping) map[string]FieldType {
	types := make(map[string]FieldType, len(mappings))
	for _, m := range mappings {
		types[m.TargetField] = m.Type
	}
	return types
}

// ValidateMappings checks the invariants a mapping set must satisfy before
// it is accepted: at least one mapping, exactly one primary identifier, and
// non-empty, unique source fields.
func ValidateMappings(mappings []FieldMapping) ValidationResult {
	var errs []ValidationError

	if len(mappings) == 0 {
		errs = append(errs, ValidationError{Message: "at least one field mapping is required"})
	}

	primaries := 0
	seen := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if m.PrimaryID {
			primaries++
		}
		src := strings.TrimSpace(m.SourceField)
		if src == "" {
			errs = append(errs, ValidationError{
				Field:   m.TargetField,
				Message: "source field must not be empty",
			})
			continue
		}
		if seen[src] {
			errs = append(errs, ValidationError{
				Field:   src,
				Message: "duplicate source field",
			})
		}
		seen[src] = true
	}

	if len(mappings) > 0 && primaries != 1 {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("exactly one mapping must be the primary identifier, found %d", primaries),
		})
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ApplyMappings projects a source record onto the canonical target
// attributes, applying static defaults. A required attribute that is still
// empty after defaults fails the row.
func ApplyMappings(rec Record, mappings []FieldMapping, row int) (Record, *RowError) {
	mapped := make(Record, len(mappings))
	for _, m := range mappings {
		val := strings.TrimSpace(rec[m.SourceField])
		if val == "" && m.Default != "" {
			val = m.Default
		}
		if val == "" && m.Required {
			return nil, &RowError{
				Row:    row,
				Field:  m.SourceField,
				Reason: "required field is empty",
			}
		}
		mapped[m.TargetField] = val
	}
	return mapped, nil
}

// primaryMapping returns the mapping carrying the primary-identifier flag.
func primaryMapping(mappings []FieldMapping) (FieldMapping, bool) {
	for _, m := range mappings {
		if m.PrimaryID {
			return m, true
		}
	}
	return FieldMapping{}, false
}
