package llm

import (
	"fmt"
	"strconv"
	"strings"
)

const systemPrompt = `You are a careful medical assistant. Explain things in plain language for patients,
never invent values that are not in the provided data, and recommend seeing a clinician for
diagnosis or treatment decisions.`

// Vitals are the values quoted back to the model in risk and plan prompts.
type Vitals struct {
	Age           float64
	BMI           float64
	Glucose       float64
	BloodPressure float64
}

func SummaryRequest(text string, limit int) CompletionRequest {
	return CompletionRequest{
		Task:         "summary",
		SystemPrompt: systemPrompt,
		UserPrompt: fmt.Sprintf("Summarize the following medical document for a patient in simple language:\n\n%s",
			Truncate(text, limit)),
		Temperature: 0.3,
	}
}

func ExplainRiskRequest(context string, score float64, level string) CompletionRequest {
	return CompletionRequest{
		Task:         "explain_risk",
		SystemPrompt: systemPrompt,
		UserPrompt: fmt.Sprintf(`Patient medical context:
%s

Risk score: %s (%s)

Please explain in simple terms why this patient may be at risk.
Mention key contributing factors (e.g., glucose, BMI, age).`, orNone(context), formatNumber(score), level),
	}
}

func RAGRequest(context, question string) CompletionRequest {
	return CompletionRequest{
		Task:         "ask_rag",
		SystemPrompt: systemPrompt,
		UserPrompt: fmt.Sprintf("Context from medical records:\n%s\n\nPatient question: %s\n\nAnswer:",
			orNone(context), question),
	}
}

func HealthTipsRequest(v Vitals, riskScore float64) CompletionRequest {
	return CompletionRequest{
		Task:         "health_tips",
		SystemPrompt: systemPrompt,
		UserPrompt: fmt.Sprintf(`A %s-year-old person has:
- BMI: %s
- Glucose: %s
- Blood pressure: %s
- Predicted health risk score: %s

Based on this data, provide friendly, personalized lifestyle improvement tips, including:
- Diet recommendations
- Physical activity suggestions
- Any other preventive steps
Format as bullet points.`,
			formatNumber(v.Age), formatNumber(v.BMI), formatNumber(v.Glucose),
			formatNumber(v.BloodPressure), formatNumber(riskScore)),
	}
}

func HealthPlanRequest(v Vitals) CompletionRequest {
	return CompletionRequest{
		Task:         "health_plan",
		SystemPrompt: systemPrompt,
		UserPrompt: fmt.Sprintf(`Create a 7-day health improvement plan for a person with:
- Glucose level: %s
- BMI: %s
- Blood pressure: %s
- Age: %s

Include daily diet suggestions, physical activity recommendations, and general lifestyle tips. `+
			`Keep it concise, practical, and beginner-friendly. Format as Day 1 to Day 7.`,
			formatNumber(v.Glucose), formatNumber(v.BMI), formatNumber(v.BloodPressure), formatNumber(v.Age)),
	}
}

func ReportRequest(rawText string, v Vitals, score float64, level string) CompletionRequest {
	return CompletionRequest{
		Task:         "report",
		SystemPrompt: systemPrompt,
		UserPrompt: fmt.Sprintf(`Given this lab report text:
%s

And detected values:
- Age: %s
- BMI: %s
- Glucose: %s
- Blood Pressure: %s
- Risk Score: %s (%s)

Provide a clear, beginner-friendly explanation of what this report indicates and any health risks.`,
			orNone(rawText), formatNumber(v.Age), formatNumber(v.BMI), formatNumber(v.Glucose),
			formatNumber(v.BloodPressure), formatNumber(score), level),
	}
}

func ChatRequest(history []string, message string) CompletionRequest {
	var b strings.Builder
	b.WriteString("This is the conversation:\n\n")
	for _, line := range history {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")

	return CompletionRequest{
		Task:         "chat",
		SystemPrompt: "You are a helpful medical assistant.",
		UserPrompt:   b.String(),
	}
}

func AskRequest(prompt string) CompletionRequest {
	return CompletionRequest{Task: "ask", UserPrompt: prompt}
}

// Truncate cuts text to at most limit runes; limit <= 0 keeps everything.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
