package vitals

import (
	"regexp"
	"strconv"

	"github.com/medprompt/backend/internal/risk"
)

// Record holds vitals found in free text. A nil field was not found.
type Record struct {
	Glucose       *float64 `json:"glucose,omitempty"`
	BMI           *float64 `json:"bmi,omitempty"`
	BloodPressure *float64 `json:"blood_pressure,omitempty"`
	Age           *float64 `json:"age,omitempty"`
}

// Labels may be followed by up to a few non-digit characters on the same
// line ("Glucose (fasting): 110", "BMI - 24.5") before the value. OCR often
// drops the space entirely ("glucose110"), so the label needs no trailing
// word boundary.
var (
	glucosePattern = regexp.MustCompile(`(?i)\bglucose[^\d\n]{0,30}?(\d+(?:\.\d+)?)`)
	bmiPattern     = regexp.MustCompile(`(?i)\bbmi[^\d\n]{0,30}?(\d+(?:\.\d+)?)`)
	bpPattern      = regexp.MustCompile(`(?i)\b(?:bp|blood\s+pressure)[^\d\n]{0,30}?(\d+(?:\.\d+)?)(?:\s*/\s*(\d+(?:\.\d+)?))?`)
	agePattern     = regexp.MustCompile(`(?i)\bage[^\d\n]{0,15}?(\d{1,3})\b`)
)

// Extract applies each pattern independently; the first match wins.
// A "120/80" blood pressure yields the diastolic value, which is what the
// risk model was trained on.
func Extract(text string) Record {
	var r Record
	r.Glucose = firstNumber(glucosePattern, text)
	r.BMI = firstNumber(bmiPattern, text)
	r.Age = firstNumber(agePattern, text)

	if m := bpPattern.FindStringSubmatch(text); m != nil {
		value := m[1]
		if m[2] != "" {
			value = m[2]
		}
		r.BloodPressure = parse(value)
	}

	return r
}

func (r Record) Empty() bool {
	return r.Glucose == nil && r.BMI == nil && r.BloodPressure == nil && r.Age == nil
}

// Features fills the model inputs from the record, taking every value the
// record lacks from defaults.
func (r Record) Features(defaults risk.Features) risk.Features {
	f := defaults
	if r.Glucose != nil {
		f.Glucose = *r.Glucose
	}
	if r.BMI != nil {
		f.BMI = *r.BMI
	}
	if r.BloodPressure != nil {
		f.BloodPressure = *r.BloodPressure
	}
	if r.Age != nil {
		f.Age = *r.Age
	}
	return f
}

func firstNumber(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parse(m[1])
}

func parse(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
