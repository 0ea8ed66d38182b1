package risk

import (
	"fmt"
	"strings"
)

// FeatureOrder is the column order the classifier was trained on. Inference
// vectors are always assembled in this order.
var FeatureOrder = []string{
	"Pregnancies",
	"Glucose",
	"BloodPressure",
	"SkinThickness",
	"Insulin",
	"BMI",
	"DiabetesPedigreeFunction",
	"Age",
}

const OutcomeColumn = "Outcome"

type Features struct {
	Pregnancies              float64 `json:"Pregnancies"`
	Glucose                  float64 `json:"Glucose"`
	BloodPressure            float64 `json:"BloodPressure"`
	SkinThickness            float64 `json:"SkinThickness"`
	Insulin                  float64 `json:"Insulin"`
	BMI                      float64 `json:"BMI"`
	DiabetesPedigreeFunction float64 `json:"DiabetesPedigreeFunction"`
	Age                      float64 `json:"Age"`
}

func (f Features) Vector() []float64 {
	return []float64{
		f.Pregnancies,
		f.Glucose,
		f.BloodPressure,
		f.SkinThickness,
		f.Insulin,
		f.BMI,
		f.DiabetesPedigreeFunction,
		f.Age,
	}
}

// FeaturesFromMap requires every name in FeatureOrder to be present.
func FeaturesFromMap(m map[string]float64) (Features, error) {
	var missing []string
	for _, name := range FeatureOrder {
		if _, ok := m[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Features{}, fmt.Errorf("%w: %s", ErrMissingFeature, strings.Join(missing, ", "))
	}

	return Features{
		Pregnancies:              m["Pregnancies"],
		Glucose:                  m["Glucose"],
		BloodPressure:            m["BloodPressure"],
		SkinThickness:            m["SkinThickness"],
		Insulin:                  m["Insulin"],
		BMI:                      m["BMI"],
		DiabetesPedigreeFunction: m["DiabetesPedigreeFunction"],
		Age:                      m["Age"],
	}, nil
}

func featuresFromVector(v []float64) Features {
	return Features{
		Pregnancies:              v[0],
		Glucose:                  v[1],
		BloodPressure:            v[2],
		SkinThickness:            v[3],
		Insulin:                  v[4],
		BMI:                      v[5],
		DiabetesPedigreeFunction: v[6],
		Age:                      v[7],
	}
}
