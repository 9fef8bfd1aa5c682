// Package iccid builds the ICCID to tenant index used to place usage records
// whose tenant fields are missing.
package iccid

import "strings"

// PrefixLength is the number of leading ICCID characters shared by SIMs from
// the same issuer range.
const PrefixLength = 12

// Match says how Lookup found a tenant.
type Match int

const (
	NoMatch Match = iota
	ExactMatch
	PrefixMatch
)

func (m Match) String() string {
	switch m {
	case ExactMatch:
		return "exact"
	case PrefixMatch:
		return "prefix"
	default:
		return "none"
	}
}

// Index maps ICCIDs, and failing that their prefixes, to canonical tenant
// IDs. It is read-only once built.
type Index struct {
	exact  map[string]string
	prefix map[string]string
}

// Lookup returns the tenant for iccid, trying the exact map before the
// prefix map.
func (ix *Index) Lookup(iccid string) (string, Match) {
	if ix == nil {
		return "", NoMatch
	}
	key := strings.TrimSpace(iccid)
	if key == "" {
		return "", NoMatch
	}
	if tenantID, ok := ix.exact[key]; ok {
		return tenantID, ExactMatch
	}
	if len(key) >= PrefixLength {
		if tenantID, ok := ix.prefix[key[:PrefixLength]]; ok {
			return tenantID, PrefixMatch
		}
	}
	return "", NoMatch
}

// Len returns the number of exact entries.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.exact)
}

// PrefixLen returns the number of prefix entries.
func (ix *Index) PrefixLen() int {
	if ix == nil {
		return 0
	}
	return len(ix.prefix)
}

// accumulator collects exact entries first-wins and remembers the order they
// arrived in, so the prefix majority vote does not depend on map iteration.
type accumulator struct {
	exact map[string]string
	order []string
}

func newAccumulator() *accumulator {
	return &accumulator{exact: make(map[string]string)}
}

// add records iccid -> tenantID unless iccid is already present. It reports
// whether the entry was added.
func (a *accumulator) add(iccid, tenantID string) bool {
	key := strings.TrimSpace(iccid)
	if key == "" || tenantID == "" {
		return false
	}
	if _, ok := a.exact[key]; ok {
		return false
	}
	a.exact[key] = tenantID
	a.order = append(a.order, key)
	return true
}

type tally struct {
	tenantID string
	count    int
}

func (a *accumulator) index() *Index {
	groups := make(map[string][]tally)
	var prefixes []string
	for _, key := range a.order {
		if len(key) < PrefixLength {
			continue
		}
		p := key[:PrefixLength]
		tenantID := a.exact[key]

		votes, seen := groups[p]
		if !seen {
			prefixes = append(prefixes, p)
		}
		found := false
		for i := range votes {
			if votes[i].tenantID == tenantID {
				votes[i].count++
				found = true
				break
			}
		}
		if !found {
			votes = append(votes, tally{tenantID: tenantID, count: 1})
		}
		groups[p] = votes
	}

	prefix := make(map[string]string, len(prefixes))
	for _, p := range prefixes {
		best := groups[p][0]
		for _, v := range groups[p][1:] {
			if v.count > best.count {
				best = v
			}
		}
		prefix[p] = best.tenantID
	}

	return &Index{exact: a.exact, prefix: prefix}
}
