package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// PresenceProjector records access events and keeps, per company, the set
// of people currently on site.
type PresenceProjector struct {
	store  port.AccessEventStore
	opts   options
	locks  *keyedMutex
	scopes *scopeRegistry[*presenceView]
}

type presenceView struct {
	mu       sync.RWMutex
	presence *domain.Presence
}

func NewPresenceProjector(store port.AccessEventStore, opts ...Option) *PresenceProjector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &PresenceProjector{
		store: store,
		opts:  o,
		locks: newKeyedMutex(),
	}
	p.scopes = newScopeRegistry(p.load)
	return p
}

func (p *PresenceProjector) Open(ctx context.Context, companyID string) error {
	companyID, err := normalizeScope(companyID)
	if err != nil {
		return err
	}
	e, err := p.scopes.acquire(ctx, companyID)
	if err != nil {
		return err
	}
	e.gate.RUnlock()
	return nil
}

func (p *PresenceProjector) Close(companyID string) {
	companyID = strings.TrimSpace(companyID)
	if p.scopes.close(companyID, nil) {
		p.opts.logger.Debug().Str("scope", companyID).Msg("presence scope closed")
	}
}

func (p *PresenceProjector) CloseAll() {
	for _, scope := range p.scopes.open() {
		p.Close(scope)
	}
}

// RegisterEvent records a boundary crossing happening now. It returns the new
// record on entry, the removed record on exit and nil for an exit of someone
// who was not present.
func (p *PresenceProjector) RegisterEvent(ctx context.Context, companyID, personID, personName, action string) (*domain.PresenceRecord, error) {
	act, err := domain.ParseAccessAction(action)
	if err != nil {
		return nil, err
	}
	evt := domain.AccessEvent{
		CompanyID:  companyID,
		PersonID:   personID,
		PersonName: personName,
		Action:     act,
	}
	return p.record(ctx, evt)
}

// RecordEvent records an event with its own timestamp, such as one reported
// late by a door controller. An event older than the person's latest folded
// event makes the projector refold the company from the log; the result is
// then the person's record if the refolded set still has them present after
// an entry.
func (p *PresenceProjector) RecordEvent(ctx context.Context, evt domain.AccessEvent) (*domain.PresenceRecord, error) {
	return p.record(ctx, evt)
}

func (p *PresenceProjector) record(ctx context.Context, evt domain.AccessEvent) (*domain.PresenceRecord, error) {
	evt.CompanyID = strings.TrimSpace(evt.CompanyID)
	evt.PersonID = strings.TrimSpace(evt.PersonID)
	if err := evt.Validate(); err != nil {
		return nil, err
	}

	unlock, err := p.locks.Lock(ctx, lockKey(evt.CompanyID, evt.PersonID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, err := p.scopes.acquire(ctx, evt.CompanyID)
	if err != nil {
		return nil, err
	}
	view := e.view

	if evt.ID == "" {
		evt.ID = p.opts.newID()
	}
	if evt.Timestamp.IsZero() {
		view.mu.RLock()
		last, seen := view.presence.Latest(evt.PersonID)
		view.mu.RUnlock()
		evt.Timestamp = p.stamp(last, seen)
	}

	if err := ctx.Err(); err != nil {
		e.gate.RUnlock()
		return nil, err
	}
	seq, err := p.store.AppendAccessEvent(context.WithoutCancel(ctx), evt)
	if err != nil {
		e.gate.RUnlock()
		p.opts.logger.Error().Err(err).
			Str("scope", evt.CompanyID).
			Str("person_id", evt.PersonID).
			Str("action", string(evt.Action)).
			Msg("append access event failed")
		return nil, storeError("append access event", err)
	}
	evt.Seq = seq

	view.mu.Lock()
	rec, inOrder := view.presence.Apply(evt)
	view.mu.Unlock()
	e.gate.RUnlock()

	if !inOrder {
		rec, err = p.refold(context.WithoutCancel(ctx), evt)
		if err != nil {
			return nil, err
		}
	}

	p.opts.logger.Debug().
		Str("scope", evt.CompanyID).
		Str("person_id", evt.PersonID).
		Str("action", string(evt.Action)).
		Int64("seq", seq).
		Bool("refolded", !inOrder).
		Msg("access event recorded")
	return rec, nil
}

// refold rebuilds the company's set from the log after evt arrived out of
// order. If the log cannot be read the scope is dropped so the next call
// reloads it.
func (p *PresenceProjector) refold(ctx context.Context, evt domain.AccessEvent) (*domain.PresenceRecord, error) {
	var rec *domain.PresenceRecord
	err := p.scopes.exclusive(ctx, evt.CompanyID, func(e *scopeEntry[*presenceView]) error {
		events, err := p.store.ListAccessEvents(ctx, evt.CompanyID, 0)
		if err != nil {
			return storeError("list access events", err)
		}
		presence := domain.FoldPresence(events)

		e.view.mu.Lock()
		e.view.presence = presence
		e.view.mu.Unlock()

		if r, ok := presence.Lookup(evt.PersonID); ok && evt.Action == domain.AccessEntry {
			rec = &r
		}
		return nil
	})
	if err != nil {
		p.opts.logger.Error().Err(err).Str("scope", evt.CompanyID).Msg("presence refold failed")
		p.scopes.close(evt.CompanyID, nil)
		return nil, err
	}
	return rec, nil
}

func (p *PresenceProjector) stamp(last domain.AccessEvent, seen bool) time.Time {
	now := p.opts.now().UTC()
	if seen && !now.After(last.Timestamp) {
		return last.Timestamp.Add(time.Nanosecond)
	}
	return now
}

// CurrentlyPresent returns everyone on site for the company, earliest
// arrival first.
func (p *PresenceProjector) CurrentlyPresent(ctx context.Context, companyID string) ([]domain.PresenceRecord, error) {
	companyID, err := normalizeScope(companyID)
	if err != nil {
		return nil, err
	}
	e, err := p.scopes.acquire(ctx, companyID)
	if err != nil {
		return nil, err
	}
	defer e.gate.RUnlock()

	e.view.mu.RLock()
	defer e.view.mu.RUnlock()
	return e.view.presence.Records(), nil
}

// PresentAt folds the events up to and including at. Someone who left
// exactly at at is not present.
func (p *PresenceProjector) PresentAt(ctx context.Context, companyID string, at time.Time) ([]domain.PresenceRecord, error) {
	companyID, err := normalizeScope(companyID)
	if err != nil {
		return nil, err
	}
	events, err := p.store.ListAccessEvents(ctx, companyID, 0)
	if err != nil {
		return nil, storeError("list access events", err)
	}

	upTo := events[:0:0]
	for _, evt := range events {
		if !evt.Timestamp.After(at) {
			upTo = append(upTo, evt)
		}
	}
	return domain.FoldPresence(upTo).Records(), nil
}

// History returns the company's access events newest first.
func (p *PresenceProjector) History(ctx context.Context, companyID string) ([]domain.AccessEvent, error) {
	companyID, err := normalizeScope(companyID)
	if err != nil {
		return nil, err
	}
	events, err := p.store.ListAccessEvents(ctx, companyID, 0)
	if err != nil {
		return nil, storeError("list access events", err)
	}

	out := make([]domain.AccessEvent, len(events))
	copy(out, events)
	domain.SortAccessEvents(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (p *PresenceProjector) load(ctx context.Context, companyID string) (*presenceView, error) {
	events, err := p.store.ListAccessEvents(ctx, companyID, 0)
	if err != nil {
		return nil, storeError("list access events", err)
	}
	presence := domain.FoldPresence(events)
	p.opts.logger.Debug().
		Str("scope", companyID).
		Int("replayed", len(events)).
		Int("present", presence.Len()).
		Msg("presence scope opened")
	return &presenceView{presence: presence}, nil
}
