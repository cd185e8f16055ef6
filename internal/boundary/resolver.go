package boundary

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ErrIdentifierColumnNotFound is matched by IdentifierColumnNotFoundError.
var ErrIdentifierColumnNotFound = errors.New("municipality identifier column not found")

// IdentifierColumnNotFoundError reports every column of a dataset in which no
// identifier column could be resolved.
type IdentifierColumnNotFoundError struct {
	Columns []string
}

func (e *IdentifierColumnNotFoundError) Error() string {
	return fmt.Sprintf("%s; available columns: [%s]", ErrIdentifierColumnNotFound, strings.Join(e.Columns, ", "))
}

func (e *IdentifierColumnNotFoundError) Is(target error) bool {
	return target == ErrIdentifierColumnNotFound
}

// IdentifierRules decide which column of a boundary dataset holds the
// municipality code. Priority names are checked first, in order; the
// fallback is then asked about every column in declaration order.
type IdentifierRules struct {
	Priority []string
	Fallback func(column, sample string) bool
}

var municipalityCode = regexp.MustCompile(`^[0-9]{5,6}$`)

// DefaultIdentifierRules knows the column names used by the national land
// numerical information and census boundary datasets.
func DefaultIdentifierRules() IdentifierRules {
	return IdentifierRules{
		Priority: []string{
			"JCODE",
			"KEY_CODE",
			"area_code",
			"CITYCODE",
			"CITY_CODE",
			"N03_007",
			"市区町村コード",
			"code",
		},
		Fallback: LooksLikeCodeColumn,
	}
}

// LooksLikeCodeColumn accepts columns named like "*code*" whose sample is a
// 5 or 6 digit number.
func LooksLikeCodeColumn(column, sample string) bool {
	return strings.Contains(strings.ToLower(column), "code") &&
		municipalityCode.MatchString(strings.TrimSpace(sample))
}

// ResolveIdentifierColumn picks the identifier column from the declared
// columns and the first non-empty sample value of each column.
func ResolveIdentifierColumn(columns []string, samples map[string]string, rules IdentifierRules) (string, error) {
	for _, name := range rules.Priority {
		if slices.Contains(columns, name) {
			return name, nil
		}
	}

	if rules.Fallback != nil {
		for _, column := range columns {
			if rules.Fallback(column, samples[column]) {
				return column, nil
			}
		}
	}

	return "", &IdentifierColumnNotFoundError{Columns: slices.Clone(columns)}
}
