package services

import (
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/member"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
)

// MemberIndex maps canonical phone keys to the resolved registrations that use them.
type MemberIndex struct {
	byKey   map[string][]member.Resolved
	records int
}

// BuildMemberIndex resolves every record once and indexes it under all variants of each phone.
func BuildMemberIndex(records []member.Record, resolver *StatusResolver) *MemberIndex {
	idx := &MemberIndex{byKey: make(map[string][]member.Resolved), records: len(records)}
	for _, rec := range records {
		resolved := resolver.Resolve(rec)
		seen := make(map[string]bool)
		for _, raw := range rec.Phones {
			for _, key := range phone.Variants(phone.Canonical(raw)) {
				if seen[key] {
					continue
				}
				seen[key] = true
				idx.byKey[key] = append(idx.byKey[key], resolved)
			}
		}
	}
	return idx
}

// Len returns the number of member records indexed.
func (idx *MemberIndex) Len() int { return idx.records }

// Keys returns how many distinct phone keys are indexed.
func (idx *MemberIndex) Keys() int { return len(idx.byKey) }

// Matches returns the registrations indexed under key, in insertion order.
func (idx *MemberIndex) Matches(key string) []member.Resolved {
	return idx.byKey[key]
}

// Lookup classifies a raw phone. Chat identifiers already carry their country code, so the
// plain digit string is tried before the domestic canonical form. Flags are OR-ed across
// matches; status and registration come from the first match.
func (idx *MemberIndex) Lookup(raw string) member.Classified {
	digits := phone.Digits(raw)
	key := digits
	matches := idx.byKey[key]
	if len(matches) == 0 {
		key = phone.Canonical(raw)
		matches = idx.byKey[key]
	}
	if len(matches) == 0 {
		return member.Classified{Found: false, Phone: digits}
	}
	first := matches[0]
	out := member.Classified{
		Found:          true,
		Phone:          key,
		RegistrationID: first.RegistrationID,
		Status:         first.Status,
	}
	for _, m := range matches {
		out.JuniorUnder = out.JuniorUnder || m.JuniorUnder
		out.JuniorNear = out.JuniorNear || m.JuniorNear
		out.Adult = out.Adult || m.Adult
	}
	return out
}
