package models

import "time"

type Assessment struct {
	ID                       string
	Source                   string
	Pregnancies              float64
	Glucose                  float64
	BloodPressure            float64
	SkinThickness            float64
	Insulin                  float64
	BMI                      float64
	DiabetesPedigreeFunction float64
	Age                      float64
	RiskScore                float64
	RiskLevel                string
	CreatedAt                time.Time
}

type QueryRecord struct {
	ID            string
	Kind          string
	Prompt        string
	Response      string
	ContextChunks int
	LatencyMS     int
	CreatedAt     time.Time
}

type TrendPoint struct {
	Timestamp time.Time
	Value     float64
}
