package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/medprompt/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "nested", "medprompt.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return c
}

func TestInitSchemaIdempotent(t *testing.T) {
	c := newTestClient(t)
	if err := c.InitSchema(); err != nil {
		t.Fatalf("second InitSchema: %v", err)
	}
}

func TestAssessmentsNewestFirst(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)

	for i, glucose := range []float64{110, 125, 140} {
		err := c.InsertAssessment(ctx, &models.Assessment{
			ID:        string(rune('a' + i)),
			Source:    "manual",
			Glucose:   glucose,
			BMI:       25 + float64(i),
			RiskScore: 0.2 * float64(i+1),
			RiskLevel: "Low Risk",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertAssessment: %v", err)
		}
	}

	got, err := c.ListAssessments(ctx, 2)
	if err != nil {
		t.Fatalf("ListAssessments: %v", err)
	}
	if len(got) != 2 || got[0].Glucose != 140 || got[1].Glucose != 125 {
		t.Fatalf("assessments = %+v", got)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("CreatedAt = %v", got[0].CreatedAt)
	}
}

func TestTrendChronological(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)

	for i, bmi := range []float64{22.5, 27.8, 31.2, 29.0} {
		c.InsertAssessment(ctx, &models.Assessment{
			ID:        string(rune('a' + i)),
			Source:    "manual",
			BMI:       bmi,
			RiskLevel: "Low Risk",
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		})
	}

	points, err := c.Trend(ctx, "bmi", 3)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	want := []float64{27.8, 31.2, 29.0}
	if len(points) != len(want) {
		t.Fatalf("points = %+v", points)
	}
	for i, p := range points {
		if p.Value != want[i] {
			t.Fatalf("point %d = %v, want %v", i, p.Value, want[i])
		}
	}

	if _, err := c.Trend(ctx, "name; DROP TABLE assessments", 3); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestQueryHistoryFilter(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	records := []models.QueryRecord{
		{ID: "q1", Kind: "ask_rag", Prompt: "is 140 high?", Response: "yes", ContextChunks: 3, CreatedAt: now},
		{ID: "q2", Kind: "chat", Prompt: "hello", Response: "hi", CreatedAt: now.Add(time.Second)},
	}
	for i := range records {
		if err := c.InsertQueryRecord(ctx, &records[i]); err != nil {
			t.Fatalf("InsertQueryRecord: %v", err)
		}
	}

	all, err := c.GetQueryHistory(ctx, "", 10)
	if err != nil {
		t.Fatalf("GetQueryHistory: %v", err)
	}
	if len(all) != 2 || all[0].ID != "q2" {
		t.Fatalf("history = %+v", all)
	}

	rag, _ := c.GetQueryHistory(ctx, "ask_rag", 10)
	if len(rag) != 1 || rag[0].ContextChunks != 3 {
		t.Fatalf("filtered history = %+v", rag)
	}
}
