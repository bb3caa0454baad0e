package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"radiation-risk-eval/backend/internal/dose"
	"radiation-risk-eval/backend/internal/store"
)

type csvParseResult struct {
	records     []store.ExposureRecord
	rowCount    int
	invalidRows int
}

// parseExposureCSV reads dose/age/gender rows from an uploaded CSV.
// Columns are detected from the header row; headerless files fall back
// to positional columns (dose, age, gender). Rows with unparseable
// dose or age are counted and skipped, unknown gender values degrade
// to the undisclosed branch.
func parseExposureCSV(path string) (*csvParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		doseCol         = 0
		ageCol          = 1
		genderCol       = 2
		headerProcessed bool
		result          csvParseResult
	)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		if !headerProcessed {
			headerProcessed = true
			if d, a, g, ok := detectExposureColumns(record); ok {
				doseCol, ageCol, genderCol = d, a, g
				continue // header row, move to next record
			}
		}

		result.rowCount++

		doseValue, ok := fieldAt(record, doseCol)
		if !ok {
			result.invalidRows++
			continue
		}
		doseMSv, err := strconv.ParseFloat(doseValue, 64)
		if err != nil {
			result.invalidRows++
			continue
		}
		ageValue, ok := fieldAt(record, ageCol)
		if !ok {
			result.invalidRows++
			continue
		}
		age, err := strconv.Atoi(ageValue)
		if err != nil {
			result.invalidRows++
			continue
		}

		gender := dose.GenderUndisclosed
		if value, ok := fieldAt(record, genderCol); ok {
			gender = dose.ParseGender(value)
		}

		result.records = append(result.records, store.ExposureRecord{
			RowIndex: result.rowCount,
			DoseMSv:  doseMSv,
			AgeYears: age,
			Gender:   gender.String(),
		})
	}

	return &result, nil
}

func detectExposureColumns(record []string) (doseCol, ageCol, genderCol int, ok bool) {
	doseCol, ageCol, genderCol = -1, -1, -1
	for idx, value := range record {
		switch normalizeHeader(value) {
		case "dose", "dosemsv", "dose_msv", "radiationdose":
			doseCol = idx
		case "age", "ageyears", "age_years":
			ageCol = idx
		case "gender", "sex":
			genderCol = idx
		}
	}
	if doseCol < 0 || ageCol < 0 {
		return 0, 0, 0, false
	}
	if genderCol < 0 {
		genderCol = len(record) // out of range, every row degrades to undisclosed
	}
	return doseCol, ageCol, genderCol, true
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "(", "")
	value = strings.ReplaceAll(value, ")", "")
	return value
}

func fieldAt(record []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(record) {
		return "", false
	}
	value := strings.TrimSpace(strings.TrimPrefix(record[idx], "\ufeff"))
	if value == "" {
		return "", false
	}
	return value, true
}
