package model

import "strings"

// CrisisLevel is an ordered severity label: none < low < medium < high < immediate.
type CrisisLevel string

const (
	CrisisNone      CrisisLevel = "none"
	CrisisLow       CrisisLevel = "low"
	CrisisMedium    CrisisLevel = "medium"
	CrisisHigh      CrisisLevel = "high"
	CrisisImmediate CrisisLevel = "immediate"
)

var crisisRank = map[CrisisLevel]int{
	CrisisNone:      0,
	CrisisLow:       1,
	CrisisMedium:    2,
	CrisisHigh:      3,
	CrisisImmediate: 4,
}

// ParseCrisisLevel maps a classifier label onto a level. Empty input is none.
func ParseCrisisLevel(s string) (CrisisLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CrisisNone, true
	}
	l := CrisisLevel(s)
	_, ok := crisisRank[l]
	return l, ok
}

func (l CrisisLevel) Valid() bool {
	_, ok := crisisRank[l]
	return ok
}

// Rank returns the ordinal of l; unknown levels rank as none.
func (l CrisisLevel) Rank() int { return crisisRank[l] }

// MaxCrisis returns the more severe of a and b.
func MaxCrisis(a, b CrisisLevel) CrisisLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// CrisisState is the part of a session the coordinator reasons about.
type CrisisState struct {
	Detected bool
	Level    CrisisLevel
}

// CrisisDecision is the outcome of applying one classification result.
type CrisisDecision struct {
	Next     CrisisState
	Changed  bool
	Escalate bool // the session must move to crisis_escalated
}

// Escalate applies an incoming level to the current crisis state. The level
// only ever moves up, detection never resets, and only an immediate level
// demands the terminal crisis_escalated transition.
func Escalate(cur CrisisState, incoming CrisisLevel) CrisisDecision {
	if cur.Level == "" {
		cur.Level = CrisisNone
	}
	if !incoming.Valid() || incoming == CrisisNone {
		return CrisisDecision{Next: cur}
	}
	next := CrisisState{
		Detected: true,
		Level:    MaxCrisis(cur.Level, incoming),
	}
	return CrisisDecision{
		Next:     next,
		Changed:  next != cur,
		Escalate: incoming == CrisisImmediate,
	}
}
