// Package dose maps a radiation dose, adjusted by age and gender
// sensitivity modifiers, onto a categorical biological-effect band.
// The adjustment is a simplified multiplicative scaling for display
// purposes, not a dosimetric calculation.
package dose

// Clamp bounds applied to evaluator inputs.
const (
	MinDoseMSv = 0.0
	MaxDoseMSv = 10000.0
	MinAge     = 0
	MaxAge     = 100
)

// Input carries the three values a single evaluation depends on.
type Input struct {
	DoseMSv  float64
	AgeYears int
	Gender   Gender
}

// Result is the output of one evaluation run.
type Result struct {
	DoseMSv         float64
	AdjustedDoseMSv float64
	Modifiers       Modifiers
	Band            Band
	AdvisoryNotes   []string
}

// Evaluate computes the adjusted dose and its effect band. The function
// is pure and never fails: out-of-range inputs are clamped and unknown
// gender values take the undisclosed branch.
func Evaluate(in Input) Result {
	doseMSv := clampFloat(in.DoseMSv, MinDoseMSv, MaxDoseMSv)
	age := clampInt(in.AgeYears, MinAge, MaxAge)

	ageMod, ageNote := ageModifier(age)
	genderMod, genderNote := genderModifier(in.Gender)

	adjusted := doseMSv * ageMod * genderMod

	notes := make([]string, 0, 2)
	if ageNote != "" {
		notes = append(notes, ageNote)
	}
	if genderNote != "" {
		notes = append(notes, genderNote)
	}

	return Result{
		DoseMSv:         doseMSv,
		AdjustedDoseMSv: adjusted,
		Modifiers:       Modifiers{Age: ageMod, Gender: genderMod},
		Band:            Classify(adjusted),
		AdvisoryNotes:   notes,
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
