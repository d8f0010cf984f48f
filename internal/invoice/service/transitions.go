package service

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	"github.com/smallbiznis/billbook/internal/events"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/zap"
)

// transitions lists the allowed next states. Terminal states have none.
var transitions = map[invoicedomain.Status][]invoicedomain.Status{
	invoicedomain.StatusDraft:  {invoicedomain.StatusIssued, invoicedomain.StatusPaid},
	invoicedomain.StatusIssued: {invoicedomain.StatusPaid, invoicedomain.StatusCancelled, invoicedomain.StatusVoid},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to invoicedomain.Status) bool {
	return lo.Contains(transitions[from], to)
}

type transitionFunc func(ctx context.Context, invoice *invoicedomain.Invoice, profile businessdomain.Profile, now time.Time) (topics []string, err error)

func (s *Service) Issue(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, "invoice.issued", nil, func(ctx context.Context, invoice *invoicedomain.Invoice, _ businessdomain.Profile, now time.Time) ([]string, error) {
		if !CanTransition(invoice.Status, invoicedomain.StatusIssued) || invoice.Status != invoicedomain.StatusDraft {
			return nil, invoicedomain.ErrInvalidTransition
		}
		if err := s.countIssuance(ctx, invoice, now); err != nil {
			return nil, err
		}
		invoice.Status = invoicedomain.StatusIssued
		return []string{events.TopicInvoiceIssued}, nil
	})
}

func (s *Service) Pay(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, "invoice.paid", nil, func(ctx context.Context, invoice *invoicedomain.Invoice, profile businessdomain.Profile, now time.Time) ([]string, error) {
		if !CanTransition(invoice.Status, invoicedomain.StatusPaid) {
			return nil, invoicedomain.ErrInvalidTransition
		}
		topics := []string{events.TopicInvoicePaid}
		if invoice.Status == invoicedomain.StatusDraft {
			// Skipping the issued step is reserved for tenants without drafts.
			if profile.DraftWorkflow() {
				return nil, invoicedomain.ErrInvalidTransition
			}
			if err := s.countIssuance(ctx, invoice, now); err != nil {
				return nil, err
			}
			topics = append([]string{events.TopicInvoiceIssued}, topics...)
		}
		invoice.Status = invoicedomain.StatusPaid
		invoice.PaidAt = &now
		return topics, nil
	})
}

func (s *Service) Cancel(ctx context.Context, id, reason string) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, "invoice.cancelled", reasonMetadata(reason), func(_ context.Context, invoice *invoicedomain.Invoice, _ businessdomain.Profile, now time.Time) ([]string, error) {
		if invoice.Status != invoicedomain.StatusIssued || !CanTransition(invoice.Status, invoicedomain.StatusCancelled) {
			return nil, invoicedomain.ErrInvalidTransition
		}
		invoice.Status = invoicedomain.StatusCancelled
		invoice.CancelledAt = &now
		return []string{events.TopicInvoiceCancelled}, nil
	})
}

func (s *Service) Void(ctx context.Context, id, reason string) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, "invoice.voided", reasonMetadata(reason), func(_ context.Context, invoice *invoicedomain.Invoice, _ businessdomain.Profile, now time.Time) ([]string, error) {
		if invoice.Status != invoicedomain.StatusIssued || !CanTransition(invoice.Status, invoicedomain.StatusVoid) {
			return nil, invoicedomain.ErrInvalidTransition
		}
		invoice.Status = invoicedomain.StatusVoid
		invoice.VoidedAt = &now
		return []string{events.TopicInvoiceVoided}, nil
	})
}

// Delete tombstones a draft and drops its line items.
func (s *Service) Delete(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, "invoice.deleted", nil, func(ctx context.Context, invoice *invoicedomain.Invoice, _ businessdomain.Profile, now time.Time) ([]string, error) {
		if invoice.Status != invoicedomain.StatusDraft {
			return nil, invoicedomain.ErrNotEditable
		}
		if err := s.repo.DeleteItems(ctx, pkgdb.Conn(ctx, s.db), invoice.ID); err != nil {
			return nil, err
		}
		invoice.DeletedAt = &now
		return nil, nil
	})
}

func (s *Service) transition(ctx context.Context, id, action string, metadata map[string]any, apply transitionFunc) (invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}
	profile, err := s.business.GetProfile(ctx, orgID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var result invoicedomain.Invoice
	err = pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		conn := pkgdb.Conn(ctx, s.db)
		invoice, err := s.lockOwned(ctx, conn, orgID, id)
		if err != nil {
			return err
		}
		previous := invoice.Status
		now := s.clock.Now()

		topics, err := apply(ctx, invoice, profile, now)
		if err != nil {
			return err
		}
		invoice.UpdatedAt = now
		if err := s.repo.Save(ctx, conn, invoice); err != nil {
			return err
		}

		hydrated, err := s.hydrateOne(ctx, *invoice)
		if err != nil {
			return err
		}
		extra := map[string]any{"previous_status": string(previous)}
		for key, value := range metadata {
			extra[key] = value
		}
		if err := s.emitAudit(ctx, action, &hydrated, extra); err != nil {
			return err
		}
		for _, topic := range topics {
			s.publishAfterCommit(ctx, topic, hydrated)
		}
		result = hydrated
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice transitioned",
		zap.String("org_id", orgID.String()),
		zap.String("invoice_id", result.ID),
		zap.String("action", action),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

// countIssuance runs the quota gate and records the issuance in the caller's transaction.
func (s *Service) countIssuance(ctx context.Context, invoice *invoicedomain.Invoice, now time.Time) error {
	if _, err := s.usage.CanIssue(ctx, invoice.OrgID); err != nil {
		return err
	}
	if _, err := s.usage.Increment(ctx, invoice.OrgID); err != nil {
		return err
	}
	invoice.IssuedAt = &now
	return nil
}

func reasonMetadata(reason string) map[string]any {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}
