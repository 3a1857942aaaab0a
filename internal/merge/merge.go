// Package merge reconciles two report collections without a central authority.
//
// Merge is a union keyed by report id. When both sides hold the same id the
// first instance seen wins verbatim (local before remote); fields are never
// combined. The result is ordered newest first by numeric id. Deletions are
// not represented, so a report removed on one device comes back while any
// other copy of the collection still holds it.
package merge

import (
	"reflect"
	"sort"
	"strings"

	"github.com/bermanqa/qlog/internal/models"
)

// Merge returns the deduplicated union of local and remote, sorted by
// descending id. It is pure: inputs are not modified.
func Merge(local, remote []models.Report) []models.Report {
	seen := make(map[string]struct{}, len(local)+len(remote))
	out := make([]models.Report, 0, len(local)+len(remote))
	for _, side := range [][]models.Report{local, remote} {
		for _, r := range side {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}
	Sort(out)
	return out
}

// Sort orders reports newest first in place.
func Sort(reports []models.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		return Before(reports[i].ID, reports[j].ID)
	})
}

// Before reports whether id a sorts ahead of id b.
//
// Decimal ids compare by magnitude without converting to an integer, so ids of
// any length are safe. Non-numeric ids sort after every numeric id, in
// descending lexical order.
func Before(a, b string) bool {
	na, nb := isDecimal(a), isDecimal(b)
	switch {
	case na && nb:
		ta, tb := trimZeros(a), trimZeros(b)
		if len(ta) != len(tb) {
			return len(ta) > len(tb)
		}
		if ta != tb {
			return ta > tb
		}
		// same magnitude, different spelling ("01" vs "1")
		return a > b
	case na:
		return true
	case nb:
		return false
	default:
		return a > b
	}
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

// IDs returns the ids of reports in order.
func IDs(reports []models.Report) []string {
	ids := make([]string, len(reports))
	for i, r := range reports {
		ids[i] = r.ID
	}
	return ids
}

// Equal reports whether a and b hold the same reports in the same order.
func Equal(a, b []models.Report) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
