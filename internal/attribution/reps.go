package attribution

import (
	"strings"

	"golang.org/x/text/cases"
)

// RepRef is a resolved rep identity.
type RepRef struct {
	Key   string
	Label string
}

// RepResolver maps customers to rep buckets. Identity matches against the roster win
// over name matches; unmatched customers keep their raw id, then their case-folded
// name, and fall back to the Unassigned bucket. Not safe for concurrent use.
type RepResolver struct {
	byID   map[string]SalesRep
	byName map[string]SalesRep
	fold   cases.Caser
}

// NewRepResolver indexes the roster.
func NewRepResolver(roster []SalesRep) *RepResolver {
	r := &RepResolver{
		byID:   make(map[string]SalesRep, len(roster)),
		byName: make(map[string]SalesRep, len(roster)),
		fold:   cases.Fold(),
	}
	for _, rep := range roster {
		id := strings.TrimSpace(rep.ID)
		if id == "" {
			continue
		}
		r.byID[id] = rep
		if name := r.normalize(rep.Name); name != "" {
			if _, taken := r.byName[name]; !taken {
				r.byName[name] = rep
			}
		}
	}
	return r
}

// Resolve returns the rep bucket of a customer.
func (r *RepResolver) Resolve(c Customer) RepRef {
	id := strings.TrimSpace(c.SalesRepID)
	name := r.normalize(c.SalesRepName)
	if rep, ok := r.byID[id]; ok && id != "" {
		return rosterRef(rep)
	}
	if rep, ok := r.byName[name]; ok && name != "" {
		return rosterRef(rep)
	}
	switch {
	case id != "":
		label := strings.TrimSpace(c.SalesRepName)
		if label == "" {
			label = id
		}
		return RepRef{Key: "id:" + id, Label: label}
	case name != "":
		return RepRef{Key: "name:" + name, Label: strings.TrimSpace(c.SalesRepName)}
	default:
		return RepRef{Key: UnassignedKey, Label: UnassignedLabel}
	}
}

func (r *RepResolver) normalize(name string) string {
	return normalizeName(r.fold, name)
}

func normalizeName(fold cases.Caser, name string) string {
	return fold.String(strings.Join(strings.Fields(name), " "))
}

func rosterRef(rep SalesRep) RepRef {
	label := strings.TrimSpace(rep.Name)
	if label == "" {
		label = rep.ID
	}
	return RepRef{Key: "id:" + strings.TrimSpace(rep.ID), Label: label}
}

// VendorKey returns the bucket key a vendor name aggregates under.
func VendorKey(vendor string) string {
	if key := normalizeName(cases.Fold(), vendor); key != "" {
		return key
	}
	return UnassignedKey
}
