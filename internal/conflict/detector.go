// Package conflict detects double-bookings for providers and clients using
// the half-open overlap rule.
package conflict

import (
	"context"
	"strings"
	"time"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/rules"
	"github.com/havenmind/booking/internal/storage"
)

// Type classifies whose calendar a conflict lives on.
type Type string

const (
	TypeNone     Type = "none"
	TypeProvider Type = "provider"
	TypeClient   Type = "client"
	TypeBoth     Type = "both"
)

// Result carries the conflicting appointments alongside the classification.
type Result struct {
	HasConflict bool
	Type        Type
	Conflicting []model.Appointment
}

// Request is one interval to check. ExcludeID is set on update paths so the
// appointment being moved never conflicts with its own old row.
type Request struct {
	ProviderID  string
	ClientID    string
	StartTime   time.Time
	DurationMin int
	ExcludeID   string
}

func (r Request) end() time.Time {
	return r.StartTime.Add(time.Duration(r.DurationMin) * time.Minute)
}

// Detector holds only configuration; the store is passed per call so checks
// can run inside the orchestrator's transaction.
type Detector struct {
	cfg rules.ValidationConfig
}

func NewDetector(cfg rules.ValidationConfig) *Detector {
	return &Detector{cfg: cfg}
}

// CheckConflicts loads the provider's active appointments around the requested
// interval and, unless client double-booking is allowed, the client's active
// appointments across all providers, then applies the half-open overlap rule.
func (d *Detector) CheckConflicts(ctx context.Context, st storage.Store, req Request) (Result, error) {
	providerHits, err := st.FindAppointments(ctx, req.ProviderID, req.StartTime, req.end(), model.ActiveStatuses)
	if err != nil {
		return Result{}, err
	}
	providerHits = filterOverlapping(providerHits, req)

	var clientHits []model.Appointment
	if !d.cfg.ClientOverlapAllowed && req.ClientID != "" {
		all, err := st.FindAppointmentsForClient(ctx, req.ClientID, req.StartTime, req.end(), model.ActiveStatuses)
		if err != nil {
			return Result{}, err
		}
		clientHits = filterOverlapping(all, req)
	}

	res := Result{Type: TypeNone}
	switch {
	case len(providerHits) > 0 && len(clientHits) > 0:
		res.Type = TypeBoth
	case len(providerHits) > 0:
		res.Type = TypeProvider
	case len(clientHits) > 0:
		res.Type = TypeClient
	}
	res.Conflicting = dedupeByID(append(providerHits, clientHits...))
	res.HasConflict = len(res.Conflicting) > 0
	return res, nil
}

// ValidateNoConflicts is the fail-fast wrapper used by the orchestrator. The
// error names the count and ids of the conflicting appointments so callers
// can re-fetch slots instead of blindly retrying.
func (d *Detector) ValidateNoConflicts(ctx context.Context, st storage.Store, req Request) error {
	res, err := d.CheckConflicts(ctx, st, req)
	if err != nil {
		return err
	}
	if !res.HasConflict {
		return nil
	}
	ids := make([]string, len(res.Conflicting))
	for i, a := range res.Conflicting {
		ids[i] = a.ID
	}
	return apperr.Conflict(
		"the requested time conflicts with %d existing appointment(s): %s",
		len(ids), strings.Join(ids, ", "),
	)
}

// CheckBulkConflicts checks a batch of candidate intervals in one pass. Each
// request is checked against the store and against every other request in the
// batch, so two pairwise-overlapping candidates both report a conflict even
// before either is persisted.
func (d *Detector) CheckBulkConflicts(ctx context.Context, st storage.Store, reqs []Request) ([]Result, error) {
	out := make([]Result, len(reqs))
	for i, req := range reqs {
		res, err := d.CheckConflicts(ctx, st, req)
		if err != nil {
			return nil, err
		}
		for j, other := range reqs {
			if i == j {
				continue
			}
			if !sharesParticipant(req, other, d.cfg.ClientOverlapAllowed) {
				continue
			}
			if rules.IntervalsOverlap(req.StartTime, req.end(), other.StartTime, other.end()) {
				res.HasConflict = true
				if res.Type == TypeNone {
					res.Type = classifyPair(req, other)
				}
			}
		}
		out[i] = res
	}
	return out, nil
}

func sharesParticipant(a, b Request, clientOverlapAllowed bool) bool {
	if a.ProviderID == b.ProviderID {
		return true
	}
	return !clientOverlapAllowed && a.ClientID != "" && a.ClientID == b.ClientID
}

func classifyPair(a, b Request) Type {
	provider := a.ProviderID == b.ProviderID
	client := a.ClientID != "" && a.ClientID == b.ClientID
	switch {
	case provider && client:
		return TypeBoth
	case provider:
		return TypeProvider
	default:
		return TypeClient
	}
}

func filterOverlapping(appts []model.Appointment, req Request) []model.Appointment {
	end := req.end()
	var out []model.Appointment
	for _, a := range appts {
		if a.ID == req.ExcludeID {
			continue
		}
		if rules.IntervalsOverlap(req.StartTime, end, a.StartTime, a.EndTime()) {
			out = append(out, a)
		}
	}
	return out
}

func dedupeByID(appts []model.Appointment) []model.Appointment {
	seen := make(map[string]bool, len(appts))
	var out []model.Appointment
	for _, a := range appts {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}
