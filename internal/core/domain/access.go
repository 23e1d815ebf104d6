package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type AccessAction string

const (
	AccessEntry AccessAction = "entry"
	AccessExit  AccessAction = "exit"
)

func ParseAccessAction(s string) (AccessAction, error) {
	switch a := AccessAction(strings.ToLower(strings.TrimSpace(s))); a {
	case AccessEntry, AccessExit:
		return a, nil
	default:
		return "", fmt.Errorf("action %q: %w", s, ErrInvalidAction)
	}
}

// AccessEvent is one crossing of the facility boundary. PersonName is
// captured at write time and never corrected afterwards.
type AccessEvent struct {
	ID         string       `json:"id"`
	Seq        int64        `json:"seq,omitempty"`
	CompanyID  string       `json:"companyId"`
	PersonID   string       `json:"personId"`
	PersonName string       `json:"personName"`
	Action     AccessAction `json:"action"`
	Timestamp  time.Time    `json:"timestamp"`
}

func (e AccessEvent) Validate() error {
	if strings.TrimSpace(e.CompanyID) == "" || strings.TrimSpace(e.PersonID) == "" {
		return fmt.Errorf("company %q person %q: %w", e.CompanyID, e.PersonID, ErrInvalidPerson)
	}
	switch e.Action {
	case AccessEntry, AccessExit:
		return nil
	default:
		return fmt.Errorf("action %q: %w", e.Action, ErrInvalidAction)
	}
}

// Before reports whether e sorts before o in fold order.
func (e AccessEvent) Before(o AccessEvent) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.ID < o.ID
}

type PresenceRecord struct {
	PersonID   string    `json:"personId"`
	PersonName string    `json:"personName"`
	CompanyID  string    `json:"companyId"`
	Since      time.Time `json:"since"`
}

// Presence maps each person on site to the entry that put them there.
type Presence struct {
	present map[string]PresenceRecord
	latest  map[string]AccessEvent
}

func NewPresence() *Presence {
	return &Presence{
		present: make(map[string]PresenceRecord),
		latest:  make(map[string]AccessEvent),
	}
}

// Apply folds evt into the set. An entry inserts or replaces the person's
// record; an exit removes it if present. The returned record is the new one
// for an entry, the removed one for an exit, nil for an absorbed exit.
//
// ok is false when evt sorts before an event already folded for the same
// person; the set is left untouched and the caller has to refold. Folding
// the same event twice is a no-op.
func (p *Presence) Apply(evt AccessEvent) (rec *PresenceRecord, ok bool) {
	if last, seen := p.latest[evt.PersonID]; seen {
		if last.ID == evt.ID {
			if r, in := p.present[evt.PersonID]; in {
				return &r, true
			}
			return nil, true
		}
		if evt.Before(last) {
			return nil, false
		}
	}
	p.latest[evt.PersonID] = evt

	switch evt.Action {
	case AccessEntry:
		r := PresenceRecord{
			PersonID:   evt.PersonID,
			PersonName: evt.PersonName,
			CompanyID:  evt.CompanyID,
			Since:      evt.Timestamp,
		}
		p.present[evt.PersonID] = r
		return &r, true
	case AccessExit:
		r, in := p.present[evt.PersonID]
		if !in {
			return nil, true
		}
		delete(p.present, evt.PersonID)
		return &r, true
	}
	return nil, true
}

func (p *Presence) Lookup(personID string) (PresenceRecord, bool) {
	r, ok := p.present[personID]
	return r, ok
}

// Latest returns the last event folded for personID.
func (p *Presence) Latest(personID string) (AccessEvent, bool) {
	evt, ok := p.latest[personID]
	return evt, ok
}

func (p *Presence) Len() int { return len(p.present) }

// Records returns everyone present, ordered by since then person id.
func (p *Presence) Records() []PresenceRecord {
	out := make([]PresenceRecord, 0, len(p.present))
	for _, r := range p.present {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.Before(out[j].Since)
		}
		return out[i].PersonID < out[j].PersonID
	})
	return out
}

// FoldPresence replays events in timestamp order, whatever order they are
// given in.
func FoldPresence(events []AccessEvent) *Presence {
	sorted := make([]AccessEvent, len(events))
	copy(sorted, events)
	SortAccessEvents(sorted)

	p := NewPresence()
	for _, evt := range sorted {
		p.Apply(evt)
	}
	return p
}

func SortAccessEvents(events []AccessEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })
}
