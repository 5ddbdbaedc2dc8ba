package services

import "github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"

// ProtectedSet holds phones the engine must never act on.
type ProtectedSet struct {
	keys map[string]struct{}
}

func NewProtectedSet(raw []string) *ProtectedSet {
	s := &ProtectedSet{keys: make(map[string]struct{})}
	for _, r := range raw {
		for _, cand := range candidates(r) {
			for _, v := range phone.Variants(cand) {
				s.keys[v] = struct{}{}
			}
		}
	}
	return s
}

func (s *ProtectedSet) Contains(raw string) bool {
	if s == nil || len(s.keys) == 0 {
		return false
	}
	for _, cand := range candidates(raw) {
		if _, ok := s.keys[cand]; ok {
			return true
		}
	}
	return false
}

func (s *ProtectedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// candidates yields the digit string and its domestic canonical form.
func candidates(raw string) []string {
	digits := phone.Digits(raw)
	if digits == "" {
		return nil
	}
	canonical := phone.Canonical(raw)
	if canonical == digits {
		return []string{digits}
	}
	return []string{digits, canonical}
}
