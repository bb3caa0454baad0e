package api

import (
	"os"
	"path/filepath"
	"testing"
)

func tempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestParseExposureCSVWithHeader(t *testing.T) {
	path := tempCSV(t, "dose_msv,age_years,gender\n200,30,Male\n800,19,Female\nnot-a-number,40,Male\n120,55,\n")

	parsed, err := parseExposureCSV(path)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if parsed.rowCount != 4 {
		t.Fatalf("expected 4 rows got %d", parsed.rowCount)
	}
	if parsed.invalidRows != 1 {
		t.Fatalf("expected 1 invalid row got %d", parsed.invalidRows)
	}
	if len(parsed.records) != 3 {
		t.Fatalf("expected 3 records got %d", len(parsed.records))
	}
	if parsed.records[0].DoseMSv != 200 || parsed.records[0].AgeYears != 30 || parsed.records[0].Gender != "male" {
		t.Fatalf("unexpected first record %+v", parsed.records[0])
	}
	if parsed.records[2].Gender != "undisclosed" {
		t.Fatalf("missing gender should degrade to undisclosed, got %q", parsed.records[2].Gender)
	}
}

func TestParseExposureCSVColumnOrder(t *testing.T) {
	path := tempCSV(t, "Gender,Radiation Dose,Age\nFemale,500,12\n")

	parsed, err := parseExposureCSV(path)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(parsed.records) != 1 {
		t.Fatalf("expected 1 record got %d", len(parsed.records))
	}
	record := parsed.records[0]
	if record.DoseMSv != 500 || record.AgeYears != 12 || record.Gender != "female" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestParseExposureCSVHeaderless(t *testing.T) {
	path := tempCSV(t, "100,25,male\n9000,70,other\n")

	parsed, err := parseExposureCSV(path)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(parsed.records) != 2 {
		t.Fatalf("expected 2 records got %d", len(parsed.records))
	}
	if parsed.records[1].Gender != "undisclosed" {
		t.Fatalf("unknown gender should degrade to undisclosed, got %q", parsed.records[1].Gender)
	}
	if parsed.records[0].RowIndex != 1 || parsed.records[1].RowIndex != 2 {
		t.Fatalf("row indexes should be sequential, got %d and %d", parsed.records[0].RowIndex, parsed.records[1].RowIndex)
	}
}
