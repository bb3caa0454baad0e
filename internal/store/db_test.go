package store

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), true)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveAndListEvaluations(t *testing.T) {
	db := openTestDB(t)

	rows := []Evaluation{
		{DoseMSv: 200, AgeYears: 30, Gender: "male", AgeModifier: 1.0, GenderModifier: 1.0, AdjustedDoseMSv: 200, EffectCategory: "Minor biological impact", SeverityRank: 1},
		{DoseMSv: 5000, AgeYears: 65, Gender: "male", AgeModifier: 0.9, GenderModifier: 1.0, AdjustedDoseMSv: 4500, EffectCategory: "Life-threatening, intensive treatment required", SeverityRank: 4},
		{DoseMSv: 200, AgeYears: 8, Gender: "female", AgeModifier: 1.4, GenderModifier: 1.1, AdjustedDoseMSv: 308, EffectCategory: "Minor biological impact", SeverityRank: 1},
	}
	for i := range rows {
		rows[i].SetAdvisoryNotes([]string{"note"})
		if err := db.SaveEvaluation(&rows[i]); err != nil {
			t.Fatalf("save evaluation: %v", err)
		}
	}

	tests := []struct {
		name  string
		query EvaluationQuery
		want  int
	}{
		{"all", EvaluationQuery{}, 3},
		{"female only", EvaluationQuery{Gender: "female"}, 1},
		{"min severity", EvaluationQuery{MinSeverity: 4}, 1},
		{"min adjusted dose", EvaluationQuery{MinAdjustedMSv: 300}, 2},
		{"text match", EvaluationQuery{Query: "Life-threatening"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, total, err := db.ListEvaluations(tc.query)
			if err != nil {
				t.Fatalf("list evaluations: %v", err)
			}
			if len(got) != tc.want || total != int64(tc.want) {
				t.Fatalf("expected %d rows got %d (total %d)", tc.want, len(got), total)
			}
		})
	}
}

func TestListEvaluationsSeveritySort(t *testing.T) {
	db := openTestDB(t)
	for _, rank := range []int{2, 5, 0, 3} {
		e := Evaluation{SeverityRank: rank, AdjustedDoseMSv: float64(rank) * 1000}
		if err := db.SaveEvaluation(&e); err != nil {
			t.Fatalf("save evaluation: %v", err)
		}
	}
	rows, _, err := db.ListEvaluations(EvaluationQuery{Sort: "severity_desc"})
	if err != nil {
		t.Fatalf("list evaluations: %v", err)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].SeverityRank > rows[i-1].SeverityRank {
			t.Fatalf("rows not sorted by severity: %d before %d", rows[i-1].SeverityRank, rows[i].SeverityRank)
		}
	}
}

func TestAdvisoryNotesRoundTrip(t *testing.T) {
	e := Evaluation{}
	e.SetAdvisoryNotes([]string{"first", "second"})
	notes := e.AdvisoryNotes()
	if len(notes) != 2 || notes[0] != "first" || notes[1] != "second" {
		t.Fatalf("unexpected notes %v", notes)
	}

	e.SetAdvisoryNotes(nil)
	if got := e.AdvisoryNotes(); got != nil {
		t.Fatalf("expected nil notes got %v", got)
	}
}

func TestBatchLifecycle(t *testing.T) {
	db := openTestDB(t)

	batch, err := db.CreateExposureBatch("crew-a", "ops", "crew-a.csv")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	records := []ExposureRecord{
		{RowIndex: 1, DoseMSv: 120, AgeYears: 34, Gender: "male"},
		{RowIndex: 2, DoseMSv: 800, AgeYears: 19, Gender: "female"},
	}
	if err := db.ReplaceExposureRecords(batch.ID, records); err != nil {
		t.Fatalf("replace records: %v", err)
	}
	count, err := db.CountExposureRecords(batch.ID)
	if err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records got %d", count)
	}

	if err := db.UpdateExposureBatchStats(batch.ID, 3, 2, 1, 0); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	evals := []Evaluation{
		{BatchID: batch.ID, RowIndex: 1, DoseMSv: 120, AdjustedDoseMSv: 120, SeverityRank: 1},
		{BatchID: batch.ID, RowIndex: 2, DoseMSv: 800, AdjustedDoseMSv: 1056, SeverityRank: 3},
	}
	if err := db.SaveEvaluations(evals); err != nil {
		t.Fatalf("save evaluations: %v", err)
	}
	if err := db.MarkBatchEvaluated(batch.ID); err != nil {
		t.Fatalf("mark evaluated: %v", err)
	}

	refreshed, err := db.GetExposureBatch(batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if refreshed.RowCount != 3 || refreshed.ValidRecords != 2 || refreshed.InvalidRows != 1 {
		t.Fatalf("unexpected stats %+v", refreshed)
	}
	if refreshed.ProcessedRecords != 2 {
		t.Fatalf("expected 2 processed got %d", refreshed.ProcessedRecords)
	}
	if refreshed.LastEvaluatedAt == nil {
		t.Fatalf("expected last_evaluated_at to be set")
	}

	if err := db.DeleteEvaluationsForBatch(batch.ID); err != nil {
		t.Fatalf("delete evaluations: %v", err)
	}
	remaining, err := db.CountBatchResults(batch.ID)
	if err != nil {
		t.Fatalf("count results: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 results got %d", remaining)
	}
}

func TestBatchRequestLifecycle(t *testing.T) {
	db := openTestDB(t)

	request, err := db.CreateBatchRequest(7, "evaluate", "running", "job-123")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := db.UpdateBatchRequest(request.ID, "completed"); err != nil {
		t.Fatalf("update request: %v", err)
	}
	fetched, err := db.GetBatchRequest(request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if fetched.Status != "completed" || fetched.FinishedAt == nil {
		t.Fatalf("unexpected request %+v", fetched)
	}
}
