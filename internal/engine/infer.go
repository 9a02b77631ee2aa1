package engine

// infer.go implements field type inference over a bounded sample.
//
// Each non-empty value is tested against an ordered list of type patterns,
// narrow types first: email, url, phone, timestamp, date, currency, boolean,
// then numeric. The first type matched by at least 80% of the non-empty
// values wins; the matching fraction becomes the confidence. A field with no
// non-empty values is typed "empty".
//
// The engine is pure and deterministic: identical values always produce the
// identical DetectedField.

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// InferenceSampleSize caps how many rows feed inference. All rows remain
// available for row-level processing during a commit.
const InferenceSampleSize = 100

// typeMatchThreshold is the fraction of non-empty values that must match a
// type's pattern before the type is assigned.
const typeMatchThreshold = 0.8

// maxSampleValues bounds the value preview carried on a DetectedField.
const maxSampleValues = 5

// idUniquenessRatio and idCompletenessRatio gate the primary-identifier
// heuristic; minIDDistinctValues guards against trivially small samples.
const (
	idUniquenessRatio   = 0.95
	idCompletenessRatio = 0.95
	minIDDistinctValues = 10
)

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	urlRegex   = regexp.MustCompile(`^(https?|ftp)://\S+$`)
	// phoneRegex is deliberately loose on punctuation; matchesPhone applies
	// the digit and formatting requirements on top.
	phoneRegex   = regexp.MustCompile(`^\+?[0-9 ().\-]{7,20}$`)
	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	// currencyRegex requires an explicit currency symbol; a bare number is
	// numeric, not currency.
	currencyRegex = regexp.MustCompile(`^\(?[+-]?[$€£¥]\s?\d{1,3}(,\d{3})*(\.\d+)?\)?$|^\(?[+-]?\d{1,3}(,\d{3})*(\.\d+)?\s?[$€£¥]\)?$`)
	epochRegex    = regexp.MustCompile(`^\d{10}(\d{3})?$`)

	idNameHints = []string{"id", "key", "code", "number", "ref", "identifier", "uuid", "guid"}

	booleanTokens = map[string]bool{
		"true": true, "false": true, "yes": true, "no": true,
		"1": true, "0": true, "y": true, "n": true,
	}
)

// Date layouts split by year format, two-digit years last so unambiguous
// layouts win.
var (
	dateLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
		"1/2/06", "01/02/06",
	}
	dateTimeLayouts = []string{
		time.RFC3339, time.RFC3339Nano,
		"2006-01-02 15:04:05", "2006-01-02T15:04:05",
		"2006-01-02 15:04", "01/02/2006 15:04:05", "1/2/2006 15:04",
		time.RFC1123, time.RFC1123Z,
	}
)

// typeTest is one ordered membership test for inference.
type typeTest struct {
	fieldType FieldType
	match     func(string) bool
}

// typeTests is the inference priority order. Narrow, specific types come
// before the generic numeric and string fallbacks.
var typeTests = []typeTest{
	{TypeEmail, func(s string) bool { return emailRegex.MatchString(s) }},
	{TypeURL, func(s string) bool { return urlRegex.MatchString(s) }},
	{TypePhone, matchesPhone},
	{TypeTimestamp, matchesTimestamp},
	{TypeDate, matchesDate},
	{TypeCurrency, matchesCurrency},
	{TypeBoolean, matchesBoolean},
	// Numeric is split into integer and number after the match counts are
	// known; see InferField.
	{TypeNumber, func(s string) bool { return numericRegex.MatchString(s) }},
}

// matchesPhone requires at least seven digits and at least one formatting
// character. A bare digit string is never a phone; it stays eligible for the
// epoch-timestamp and integer tests further down the priority order.
func matchesPhone(s string) bool {
	if !phoneRegex.MatchString(s) {
		return false
	}
	digits, punct := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		default:
			punct++
		}
	}
	return digits >= 7 && punct > 0
}

func matchesTimestamp(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return epochRegex.MatchString(s)
}

func matchesDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func matchesCurrency(s string) bool {
	if !currencyRegex.MatchString(s) {
		return false
	}
	_, ok := parseNumeric(s)
	return ok
}

func matchesBoolean(s string) bool {
	return booleanTokens[strings.ToLower(s)]
}

// parseNumeric strips currency symbols, parentheses, and thousand
// separators, then parses the remainder as a float. Parenthesized values are
// negative, accountant style.
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ':
			return -1
		}
		return r
	}, s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

func isWholeNumber(s string) bool {
	if !numericRegex.MatchString(s) {
		return false
	}
	f, ok := parseNumeric(s)
	return ok && f == float64(int64(f)) && !strings.ContainsAny(s, "eE")
}

// InferField infers the semantic type and identifier heuristics for one
// field. values holds the field's value for every sampled row, empties
// included, so required-ness and completeness can be derived.
func InferField(name string, values []string) DetectedField {
	field := DetectedField{
		Name:           name,
		SuggestedLabel: suggestLabel(name),
	}

	distinct := make(map[string]struct{})
	var nonEmpty []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		nonEmpty = append(nonEmpty, v)
		distinct[v] = struct{}{}
	}

	field.NonEmpty = len(nonEmpty)
	field.UniqueValues = len(distinct)
	field.Required = len(values) > 0 && len(nonEmpty) == len(values)
	for _, v := range nonEmpty {
		if len(field.Samples) >= maxSampleValues {
			break
		}
		field.Samples = append(field.Samples, v)
	}

	if len(nonEmpty) == 0 {
		field.Type = TypeEmpty
		field.Confidence = 1
		return field
	}

	field.Type = TypeString
	field.Confidence = 1
	for _, test := range typeTests {
		matched := 0
		for _, v := range nonEmpty {
			if test.match(v) {
				matched++
			}
		}
		fraction := float64(matched) / float64(len(nonEmpty))
		if fraction < typeMatchThreshold {
			continue
		}
		field.Type = test.fieldType
		field.Confidence = fraction
		if test.fieldType == TypeNumber && allWhole(nonEmpty) {
			field.Type = TypeInteger
		}
		break
	}

	field.LooksLikeID = looksLikeID(name, field.UniqueValues, field.NonEmpty, len(values))
	return field
}

// allWhole reports whether every numeric-matching value is a whole number,
// which distinguishes integer from number.
func allWhole(values []string) bool {
	for _, v := range values {
		if numericRegex.MatchString(v) && !isWholeNumber(v) {
			return false
		}
	}
	return true
}

// looksLikeID applies the primary-identifier heuristic: an id-ish name plus
// high uniqueness, or high uniqueness plus high completeness on a
// non-trivial sample.
func looksLikeID(name string, distinct, nonEmpty, total int) bool {
	if nonEmpty == 0 {
		return false
	}
	uniqueness := float64(distinct) / float64(nonEmpty)
	if hasIDName(name) && uniqueness >= idUniquenessRatio {
		return true
	}
	if total == 0 {
		return false
	}
	completeness := float64(nonEmpty) / float64(total)
	return uniqueness >= idUniquenessRatio &&
		completeness >= idCompletenessRatio &&
		distinct > minIDDistinctValues
}

func hasIDName(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range idNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// suggestLabel turns a raw field name into a human-readable label:
// "order_id" -> "Order Id", "createdAt" -> "Created At".
func suggestLabel(name string) string {
	if name == "" {
		return ""
	}
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	var prev rune
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case r >= 'A' && r <= 'Z' && prev >= 'a' && prev <= 'z':
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	flush()
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// InferSchema runs inference over a parsed batch and suggests a primary
// identifier. Only the first InferenceSampleSize records feed inference; the
// returned sample rows are a short preview for the mapping UI.
func InferSchema(parsed *ParseResult) *SchemaReport {
	sample := parsed.Records
	if len(sample) > InferenceSampleSize {
		sample = sample[:InferenceSampleSize]
	}

	report := &SchemaReport{
		TotalRows:  parsed.TotalRows,
		FailedRows: parsed.FailedRows,
	}

	for _, col := range parsed.Columns {
		values := make([]string, len(sample))
		for i, rec := range sample {
			values[i] = rec[col]
		}
		report.Fields = append(report.Fields, InferField(col, values))
	}

	previewLen := len(sample)
	if previewLen > 10 {
		previewLen = 10
	}
	report.SampleRows = sample[:previewLen]
	report.SuggestedPrimaryID = suggestPrimaryID(report.Fields)
	return report
}

// suggestPrimaryID picks the best identifier candidate: among looksLikeId
// fields, prefer names containing "id", then higher distinct-value counts.
// Returns "" when no field qualifies; the operator chooses manually then.
func suggestPrimaryID(fields []DetectedField) string {
	var candidates []DetectedField
	for _, f := range fields {
		if f.LooksLikeID {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		iName := strings.Contains(strings.ToLower(candidates[i].Name), "id")
		jName := strings.Contains(strings.ToLower(candidates[j].Name), "id")
		if iName != jName {
			return iName
		}
		return candidates[i].UniqueValues > candidates[j].UniqueValues
	})
	return candidates[0].Name
}
