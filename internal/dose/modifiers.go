package dose

// Modifiers holds the multiplicative sensitivity factors applied to the
// raw dose. Both factors are positive constants derived from the input
// profile, independent of the dose itself.
type Modifiers struct {
	Age    float64 `json:"age_modifier"`
	Gender float64 `json:"gender_modifier"`
}

// Advisory texts emitted alongside the matching modifier.
const (
	noteUnder10 = "Children under 10 are significantly more radiosensitive due to rapidly dividing cells and a longer potential lifespan for cancer manifestation."
	noteUnder20 = "Younger individuals under 20 are generally more radiosensitive than adults."
	noteOver60  = "For older adults the long-term cancer risk from radiation may be slightly lower, though resilience to acute effects varies with pre-existing health conditions."

	noteFemale      = "Females generally have a slightly higher lifetime cancer risk from radiation exposure, particularly for breast and thyroid cancers."
	noteMale        = "Males have a baseline sensitivity to radiation exposure."
	noteUndisclosed = "Individual biological responses to radiation vary; age and gender can influence susceptibility to radiation-induced cancer risks."
)

// ageModifier returns the age sensitivity factor and its advisory.
// Rules are evaluated in ascending age order, first match wins; the
// 20-60 adult baseline carries no advisory.
func ageModifier(age int) (float64, string) {
	switch {
	case age < 10:
		return 1.4, noteUnder10
	case age < 20:
		return 1.2, noteUnder20
	case age > 60:
		return 0.9, noteOver60
	default:
		return 1.0, ""
	}
}

// genderModifier returns the gender sensitivity factor and its
// advisory. Unknown values take the undisclosed branch.
func genderModifier(g Gender) (float64, string) {
	switch g {
	case GenderFemale:
		return 1.1, noteFemale
	case GenderMale:
		return 1.0, noteMale
	default:
		return 1.0, noteUndisclosed
	}
}
