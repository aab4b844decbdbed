package records

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the value type a form field is parsed into.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindChoice
)

// FieldRule describes one form field. Numeric bounds are inclusive and only
// apply to KindInt and KindFloat; MaxLen counts characters and 0 means
// unbounded.
type FieldRule struct {
	Name     string
	Kind     Kind
	Required bool
	Min      float64
	Max      float64
	MaxLen   int
	Choices  []string
}

// Schema lists the create-form fields in the order they are checked and
// reported.
var Schema = []FieldRule{
	{Name: FieldPatientName, Kind: KindString, Required: true, MaxLen: 100},
	{Name: FieldAge, Kind: KindInt, Required: true, Min: 0, Max: 150},
	{Name: FieldGender, Kind: KindChoice, Required: true, Choices: []string{string(GenderMale), string(GenderFemale)}},
	{Name: FieldHeight, Kind: KindFloat, Required: true, Min: 0, Max: 300},
	{Name: FieldWeight, Kind: KindFloat, Required: true, Min: 0, Max: 500},
	{Name: FieldBloodPressure, Kind: KindString, MaxLen: 10},
	{Name: FieldHeartRate, Kind: KindInt, Min: 0, Max: 300},
	{Name: FieldTemperature, Kind: KindFloat, Min: 30, Max: 45},
	{Name: FieldSymptoms, Kind: KindString},
	{Name: FieldDiagnosis, Kind: KindString, MaxLen: 200},
}

// genderAliases maps the single-letter codes older forms submit.
var genderAliases = map[string]string{
	"m": string(GenderMale),
	"f": string(GenderFemale),
}

// FormInput is raw submitted form data keyed by field name.
type FormInput map[string]string

// FormInputFromValues takes the first value of every key in v.
func FormInputFromValues(v url.Values) FormInput {
	in := make(FormInput, len(v))
	for k := range v {
		in[k] = v.Get(k)
	}
	return in
}

// cleaned holds parsed values keyed by field name. Optional fields that were
// left blank are absent.
type cleaned map[string]any

// validate checks every rule in schema against in and collects all failures.
func validate(schema []FieldRule, in FormInput) (cleaned, *ValidationError) {
	out := cleaned{}
	verr := &ValidationError{}

	for _, rule := range schema {
		raw := strings.TrimSpace(in[rule.Name])
		if raw == "" {
			if rule.Required {
				verr.add(rule.Name, "this field is required")
			}
			continue
		}

		v, msg := rule.parse(raw)
		if msg != "" {
			verr.add(rule.Name, msg)
			continue
		}
		out[rule.Name] = v
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

func (r FieldRule) parse(raw string) (any, string) {
	switch r.Kind {
	case KindInt:
		n, ok := parseWholeNumber(raw)
		if !ok {
			return nil, "enter a whole number"
		}
		if msg := r.checkRange(float64(n)); msg != "" {
			return nil, msg
		}
		return n, ""

	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, "enter a number"
		}
		if msg := r.checkRange(f); msg != "" {
			return nil, msg
		}
		return f, ""

	case KindChoice:
		v := strings.ToLower(raw)
		if alias, ok := genderAliases[v]; ok && r.Name == FieldGender {
			v = alias
		}
		for _, c := range r.Choices {
			if v == c {
				return v, ""
			}
		}
		return nil, fmt.Sprintf("select a valid choice: %s", strings.Join(r.Choices, ", "))

	default:
		if r.MaxLen > 0 {
			if n := utf8.RuneCountInString(raw); n > r.MaxLen {
				return nil, fmt.Sprintf("ensure this value has at most %d characters (it has %d)", r.MaxLen, n)
			}
		}
		return raw, ""
	}
}

func (r FieldRule) checkRange(v float64) string {
	if v < r.Min {
		return "ensure this value is greater than or equal to " + formatBound(r.Min)
	}
	if v > r.Max {
		return "ensure this value is less than or equal to " + formatBound(r.Max)
	}
	return ""
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseWholeNumber accepts integers and decimals with a zero fraction,
// so "150" and "150.0" both give 150.
func parseWholeNumber(raw string) (int, bool) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
