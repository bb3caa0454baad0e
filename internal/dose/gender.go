package dose

import "strings"

// Gender selects the gender sensitivity branch of the evaluator.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUndisclosed Gender = "undisclosed"
)

// ParseGender maps free-form input onto a known Gender. Anything not
// recognisably male or female degrades to GenderUndisclosed rather
// than producing an error.
func ParseGender(value string) Gender {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	default:
		return GenderUndisclosed
	}
}

func (g Gender) String() string {
	return string(g)
}
