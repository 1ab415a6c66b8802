package booking

import (
	"context"
	"strings"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/auth"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/rules"
	"github.com/havenmind/booking/internal/storage"
)

type AvailabilityInput struct {
	ProviderID  string // admin callers may manage another provider's calendar
	DayOfWeek   int
	StartTime   string
	EndTime     string
	IsAvailable bool
	Notes       string
}

// resolveProviderID decides whose calendar is being managed. Providers manage
// their own; admins may name any provider; clients may not manage calendars.
func resolveProviderID(p auth.Principal, requested string) (string, error) {
	switch p.Role {
	case auth.RoleProvider:
		if requested != "" && requested != p.UserID {
			return "", apperr.Forbidden("cannot manage another provider's availability")
		}
		return p.UserID, nil
	case auth.RoleAdmin:
		if strings.TrimSpace(requested) == "" {
			return "", apperr.Validation("providerId is required")
		}
		return requested, nil
	default:
		return "", apperr.Forbidden("only providers can manage availability")
	}
}

func validateWindowShape(in AvailabilityInput) error {
	if err := rules.ValidateDayOfWeek(in.DayOfWeek); err != nil {
		return err
	}
	return rules.ValidateWindowOrder(in.StartTime, in.EndTime)
}

// checkSiblingOverlap rejects the candidate window when it overlaps any other
// window the provider already has on the same weekday.
func checkSiblingOverlap(ctx context.Context, tx storage.Store, providerID string, in AvailabilityInput, excludeID string) error {
	existing, err := tx.ListAvailability(ctx, providerID)
	if err != nil {
		return err
	}
	for _, w := range existing {
		if w.ID == excludeID || w.DayOfWeek != in.DayOfWeek {
			continue
		}
		if err := rules.ValidateIntervalOverlap(in.StartTime, in.EndTime, w.StartTime, w.EndTime); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CreateAvailabilityWindow(ctx context.Context, p auth.Principal, in AvailabilityInput) (model.AvailabilityWindow, error) {
	providerID, err := resolveProviderID(p, in.ProviderID)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	if err := validateWindowShape(in); err != nil {
		return model.AvailabilityWindow{}, err
	}

	var created model.AvailabilityWindow
	err = s.db.RunInTx(ctx, []storage.LockKey{storage.LockKey(providerID)}, func(ctx context.Context, tx storage.Store) error {
		if _, err := tx.GetProvider(ctx, providerID); err != nil {
			return err
		}
		if err := checkSiblingOverlap(ctx, tx, providerID, in, ""); err != nil {
			return err
		}
		created, err = tx.CreateAvailabilityWindow(ctx, model.AvailabilityWindow{
			ProviderID:  providerID,
			DayOfWeek:   in.DayOfWeek,
			StartTime:   in.StartTime,
			EndTime:     in.EndTime,
			IsAvailable: in.IsAvailable,
			Notes:       strings.TrimSpace(in.Notes),
		})
		return err
	})
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	s.log.InfoContext(ctx, "availability window created",
		"provider_id", providerID, "window_id", created.ID, "day_of_week", created.DayOfWeek)
	return created, nil
}

func (s *Service) UpdateAvailabilityWindow(ctx context.Context, p auth.Principal, windowID string, in AvailabilityInput) (model.AvailabilityWindow, error) {
	providerID, err := resolveProviderID(p, in.ProviderID)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	if err := validateWindowShape(in); err != nil {
		return model.AvailabilityWindow{}, err
	}

	var updated model.AvailabilityWindow
	err = s.db.RunInTx(ctx, []storage.LockKey{storage.LockKey(providerID)}, func(ctx context.Context, tx storage.Store) error {
		cur, err := tx.GetAvailabilityWindow(ctx, providerID, windowID)
		if err != nil {
			return err
		}
		if err := checkSiblingOverlap(ctx, tx, providerID, in, cur.ID); err != nil {
			return err
		}
		cur.DayOfWeek = in.DayOfWeek
		cur.StartTime = in.StartTime
		cur.EndTime = in.EndTime
		cur.IsAvailable = in.IsAvailable
		cur.Notes = strings.TrimSpace(in.Notes)
		updated, err = tx.UpdateAvailabilityWindow(ctx, cur)
		return err
	})
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	s.log.InfoContext(ctx, "availability window updated",
		"provider_id", providerID, "window_id", updated.ID)
	return updated, nil
}

func (s *Service) DeleteAvailabilityWindow(ctx context.Context, p auth.Principal, providerID, windowID string) error {
	resolved, err := resolveProviderID(p, providerID)
	if err != nil {
		return err
	}
	err = s.db.RunInTx(ctx, []storage.LockKey{storage.LockKey(resolved)}, func(ctx context.Context, tx storage.Store) error {
		return tx.DeleteAvailabilityWindow(ctx, resolved, windowID)
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "availability window deleted",
		"provider_id", resolved, "window_id", windowID)
	return nil
}

// ListAvailability is readable by any authenticated caller; clients need it
// to see a provider's weekly schedule shape.
func (s *Service) ListAvailability(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, apperr.Validation("providerId is required")
	}
	if _, err := s.db.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.db.ListAvailability(ctx, providerID)
}
