package dose

import "math"

// Band is one classification interval on the adjusted dose scale.
// Bands are left-closed: an adjusted dose equal to LowerMSv belongs to
// the band. The top band is open-ended (UpperMSv is +Inf).
type Band struct {
	LowerMSv float64
	UpperMSv float64
	Rank     int
	Category string
	Detail   string
}

// bands holds the fixed effect thresholds in ascending order.
var bands = []Band{
	{LowerMSv: 0, UpperMSv: 100, Rank: 0, Category: "No observable effects", Detail: "No observable effects. Normal background exposure level."},
	{LowerMSv: 100, UpperMSv: 500, Rank: 1, Category: "Minor biological impact", Detail: "Minor biological impact. Slight increase in cancer risk."},
	{LowerMSv: 500, UpperMSv: 1000, Rank: 2, Category: "Possible ARS symptoms (nausea, vomiting)", Detail: "Possible nausea, vomiting. Risk of Acute Radiation Syndrome (ARS)."},
	{LowerMSv: 1000, UpperMSv: 3000, Rank: 3, Category: "Severe ARS, possible temporary sterility", Detail: "Severe ARS symptoms. Temporary sterility possible."},
	{LowerMSv: 3000, UpperMSv: 6000, Rank: 4, Category: "Life-threatening, intensive treatment required", Detail: "Life-threatening dose. Intensive treatment required."},
	{LowerMSv: 6000, UpperMSv: math.Inf(1), Rank: 5, Category: "Fatal in most cases", Detail: "Fatal in most cases. Survival unlikely without immediate medical care."},
}

// Classify returns the effect band containing the adjusted dose.
// Negative values collapse into the lowest band.
func Classify(adjustedMSv float64) Band {
	for _, b := range bands {
		if adjustedMSv < b.UpperMSv {
			return b
		}
	}
	return bands[len(bands)-1]
}

// Bands returns a copy of the classification table in ascending order.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// ChartTick marks one labelled point on the dose axis of the severity
// chart drawn by the frontend.
type ChartTick struct {
	DoseMSv  float64 `json:"dose_msv"`
	Severity int     `json:"severity"`
	Label    string  `json:"label"`
}

var chartTicks = []ChartTick{
	{DoseMSv: 0, Severity: 0, Label: "None"},
	{DoseMSv: 100, Severity: 1, Label: "Minor Risk"},
	{DoseMSv: 500, Severity: 2, Label: "Mild ARS"},
	{DoseMSv: 1000, Severity: 3, Label: "Severe ARS"},
	{DoseMSv: 3000, Severity: 4, Label: "Lethal Risk"},
	{DoseMSv: 6000, Severity: 5, Label: "Extreme Lethal"},
	{DoseMSv: 10000, Severity: 6, Label: "Fatal"},
}

// ChartTicks returns the axis points for the dose-vs-severity chart.
func ChartTicks() []ChartTick {
	out := make([]ChartTick, len(chartTicks))
	copy(out, chartTicks)
	return out
}
