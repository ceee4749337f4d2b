// Package export renders filtered company research data as CSV or XLSX
// downloads.
package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prospecthq/prospect-api/internal/domain"
)

// Filter selects the companies included in an export. Zero-value fields do
// not constrain.
type Filter struct {
	// Statuses limits the export to the given statuses. Empty means all.
	Statuses []domain.CompanyStatus

	// FitScoreMin and FitScoreMax bound the numeric part of the fit score
	// ("7/10" scores 7). Companies without a fit score are excluded whenever
	// either bound is set.
	FitScoreMin *int
	FitScoreMax *int

	// DateFrom and DateTo bound the creation time. DateTo is inclusive
	// through the end of its day, so a single-day range of from == to covers
	// that whole day.
	DateFrom *time.Time
	DateTo   *time.Time

	// EmployeeMin and EmployeeMax bound the employee count. A company
	// matches when its recorded count or range overlaps the requested bounds;
	// companies without a count are excluded whenever either bound is set.
	EmployeeMin *int
	EmployeeMax *int
}

// Apply returns the companies matching the filter, preserving input order.
func (f *Filter) Apply(companies []*domain.Company) []*domain.Company {
	out := make([]*domain.Company, 0, len(companies))
	for _, company := range companies {
		if f.matches(company) {
			out = append(out, company)
		}
	}
	return out
}

func (f *Filter) matches(company *domain.Company) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, status := range f.Statuses {
			if company.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.FitScoreMin != nil || f.FitScoreMax != nil {
		score, ok := parseFitScore(company.FitScore)
		if !ok {
			return false
		}
		if f.FitScoreMin != nil && score < *f.FitScoreMin {
			return false
		}
		if f.FitScoreMax != nil && score > *f.FitScoreMax {
			return false
		}
	}

	if f.DateFrom != nil && company.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil {
		endOfDay := f.DateTo.Truncate(24 * time.Hour).Add(24*time.Hour - time.Nanosecond)
		if company.CreatedAt.After(endOfDay) {
			return false
		}
	}

	if f.EmployeeMin != nil || f.EmployeeMax != nil {
		lo, hi, ok := parseEmployeeCount(company.EmployeeCount)
		if !ok {
			return false
		}
		if f.EmployeeMin != nil && hi < *f.EmployeeMin {
			return false
		}
		if f.EmployeeMax != nil && lo > *f.EmployeeMax {
			return false
		}
	}

	return true
}

// parseFitScore extracts the numeric part of a "X/10" fit score.
func parseFitScore(fitScore *string) (int, bool) {
	if fitScore == nil {
		return 0, false
	}
	head, _, _ := strings.Cut(*fitScore, "/")
	score, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, false
	}
	return score, true
}

// parseEmployeeCount interprets the free-form employee count as an inclusive
// range: "250" is [250,250], "50-100" is [50,100], "10000+" is [10000, inf).
func parseEmployeeCount(count *string) (lo, hi int, ok bool) {
	if count == nil {
		return 0, 0, false
	}
	s := strings.TrimSpace(*count)
	s = strings.ReplaceAll(s, ",", "")

	switch {
	case strings.HasSuffix(s, "+"):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(s, "+")))
		if err != nil {
			return 0, 0, false
		}
		return n, math.MaxInt, true
	case strings.Contains(s, "-"):
		low, high, _ := strings.Cut(s, "-")
		l, err1 := strconv.Atoi(strings.TrimSpace(low))
		h, err2 := strconv.Atoi(strings.TrimSpace(high))
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return l, h, true
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, false
		}
		return n, n, true
	}
}

// Filename builds the timestamped download name for the given extension.
func Filename(ext string, now time.Time) string {
	return fmt.Sprintf("company-research-%s.%s", now.Format("20060102-150405"), ext)
}
