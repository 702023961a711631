package gradebook

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Score is an assignment score as entered by an instructor.
// It is a tagged value: unset until a score is first entered, so that
// "not graded yet" stays distinct from a zero score. The raw text is kept
// as-is; numeric interpretation only happens at final grade computation.
type Score struct {
	null.String
}

func NewScore(s string) Score {
	return Score{String: null.StringFrom(s)}
}

func UnsetScore() Score {
	return Score{}
}

// IsSet reports whether a non-blank score has been entered.
func (s Score) IsSet() bool {
	return s.Valid && strings.TrimSpace(s.String.String) != ""
}

// Points parses the entered score as a number.
// An unset, blank or non-numeric score fails with ErrInvalidScore; it is
// never silently treated as zero.
func (s Score) Points() (float64, error) {
	if !s.IsSet() {
		return 0, errors.Wrap(ErrInvalidScore, "score not set")
	}
	pts, err := strconv.ParseFloat(strings.TrimSpace(s.String.String), 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidScore, "%q is not a number", s.String.String)
	}
	return pts, nil
}

// LetterGrade maps an average score to a letter grade.
// Boundaries are inclusive at the lower bound of each band.
func LetterGrade(avg float64) string {
	switch {
	case avg >= 90:
		return "A"
	case avg >= 80:
		return "B"
	case avg >= 70:
		return "C"
	case avg >= 60:
		return "D"
	default:
		return "F"
	}
}
