package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/events"
	"github.com/docuflow/backend/internal/domain/models"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	apperrors "github.com/docuflow/backend/pkg/errors"
	"github.com/docuflow/backend/pkg/utils"
)

// tierEvents maps alert tiers to the event kinds they emit
var tierEvents = map[models.AlertTier]events.EventType{
	models.Tier30Days:  events.Alert30Days,
	models.Tier15Days:  events.Alert15Days,
	models.Tier7Days:   events.Alert7Days,
	models.TierExpired: events.AlertExpired,
}

// EvaluationResult holds the four disjoint candidate buckets of one
// evaluation pass. A record can appear in several day buckets at once until
// the corresponding flags fire.
type EvaluationResult struct {
	Expiring30 []*models.ExpiryTracking
	Expiring15 []*models.ExpiryTracking
	Expiring7  []*models.ExpiryTracking
	Expired    []*models.ExpiryTracking
}

// ExpiryService evaluates expiry dates against tiered thresholds and emits
// each alert exactly once per tier per record.
type ExpiryService struct {
	expiry        *persistence.ExpiryRepository
	documents     *persistence.DocumentRepository
	txManager     *persistence.TransactionManager
	notifications *NotificationService
	cfg           *config.Config
}

// NewExpiryService creates a new ExpiryService
func NewExpiryService(expiry *persistence.ExpiryRepository, documents *persistence.DocumentRepository, txManager *persistence.TransactionManager, notifications *NotificationService, cfg *config.Config) *ExpiryService {
	return &ExpiryService{
		expiry:        expiry,
		documents:     documents,
		txManager:     txManager,
		notifications: notifications,
		cfg:           cfg,
	}
}

// Evaluate returns the candidates of all four tiers at a point in time.
// Pure read: no flags are mutated. Re-running after a crash simply
// re-surfaces the same candidates.
func (s *ExpiryService) Evaluate(ctx context.Context, now time.Time) (*EvaluationResult, error) {
	page := persistence.Page{Limit: s.cfg.DiscoveryPageSize}
	result := &EvaluationResult{}

	var err error
	if result.Expiring30, err = s.expiry.FindTierCandidates(ctx, models.Tier30Days, now, page); err != nil {
		return nil, err
	}
	if result.Expiring15, err = s.expiry.FindTierCandidates(ctx, models.Tier15Days, now, page); err != nil {
		return nil, err
	}
	if result.Expiring7, err = s.expiry.FindTierCandidates(ctx, models.Tier7Days, now, page); err != nil {
		return nil, err
	}
	if result.Expired, err = s.expiry.FindTierCandidates(ctx, models.TierExpired, now, page); err != nil {
		return nil, err
	}
	return result, nil
}

// Track registers an expiry date for a document
func (s *ExpiryService) Track(ctx context.Context, documentID, expiryType string, expiryDate time.Time, assignedTo, department string, notes *string) (*models.ExpiryTracking, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted() {
		return nil, apperrors.NewInvalidStateError("document", string(doc.Lifecycle), "track expiry for")
	}

	rec := &models.ExpiryTracking{
		ID:         utils.GenerateID(),
		DocumentID: documentID,
		ExpiryType: expiryType,
		ExpiryDate: expiryDate,
		Status:     models.ExpiryStatusActive,
		AssignedTo: assignedTo,
		Department: department,
		Notes:      notes,
	}

	if err := s.expiry.Insert(ctx, s.txManager.ExecutorFor(ctx), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ProcessAlerts runs one alert pass for a single tier: each candidate's alert
// is handed off to the notification collaborator first, then the flag is
// flipped. A lost race on the flip means another tick already alerted; the
// duplicate handoff is the accepted at-least-once cost.
func (s *ExpiryService) ProcessAlerts(ctx context.Context, tier models.AlertTier, now time.Time) (int, error) {
	candidates, err := s.expiry.FindTierCandidates(ctx, tier, now, persistence.Page{Limit: s.cfg.DiscoveryPageSize})
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, rec := range candidates {
		// Re-check the window and flag in memory; the discovery query may be
		// seconds stale by the time this item is processed.
		if rec.AlertFired(tier) || !tier.InWindow(rec.ExpiryDate, now) {
			continue
		}
		if err := s.alertOne(ctx, rec, tier, now); err != nil {
			log.Printf("⚠️ Expiry alert failed for record %s tier %s: %v", rec.ID, tier, err)
			continue
		}
		fired++
	}
	return fired, nil
}

func (s *ExpiryService) alertOne(ctx context.Context, rec *models.ExpiryTracking, tier models.AlertTier, now time.Time) error {
	event := events.NotificationEvent{
		Kind:        tierEvents[tier],
		SubjectID:   rec.ID,
		RecipientID: rec.AssignedTo,
		Title:       alertTitle(rec, tier),
		Body: fmt.Sprintf("%s for document %s expires on %s",
			rec.ExpiryType, rec.DocumentID, rec.ExpiryDate.Format("2006-01-02")),
		Payload: map[string]interface{}{
			"document_id": rec.DocumentID,
			"expiry_type": rec.ExpiryType,
			"expiry_date": rec.ExpiryDate,
			"department":  rec.Department,
		},
	}

	return s.txManager.WithRetry(func(tx *sql.Tx) error {
		txCtx := s.txManager.InjectTx(ctx, tx)

		if err := s.notifications.Emit(txCtx, event); err != nil {
			return err
		}

		flipped, err := s.expiry.MarkAlerted(txCtx, tx, rec.ID, tier)
		if err != nil {
			return err
		}
		if !flipped {
			// Another tick claimed the flag; roll the handoff back too.
			return apperrors.NewInvalidStateError("expiry record", "already alerted", "alert")
		}

		if tier == models.TierExpired {
			if _, err := s.expiry.MarkExpired(txCtx, tx, rec.ID); err != nil {
				return err
			}
		}
		return nil
	}, s.cfg.StoreRetryAttempts)
}

func alertTitle(rec *models.ExpiryTracking, tier models.AlertTier) string {
	if tier == models.TierExpired {
		return fmt.Sprintf("%s has expired", rec.ExpiryType)
	}
	return fmt.Sprintf("%s expires within %d days", rec.ExpiryType, tier.Days())
}

// MarkExpired transitions a record ACTIVE -> EXPIRED once its expiry date has
// passed. Independent of the expired alert flag; a record can be EXPIRED
// before or after that alert fires.
func (s *ExpiryService) MarkExpired(ctx context.Context, id string) error {
	rec, err := s.expiry.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.ExpiryDate.Before(time.Now().UTC()) {
		return apperrors.NewInvalidStateError("expiry record", "not yet past its expiry date", "expire")
	}

	ok, err := s.expiry.MarkExpired(ctx, s.txManager.ExecutorFor(ctx), id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewInvalidStateError("expiry record", rec.Status, "expire")
	}
	return nil
}

// Renew supersedes a record: the old record moves to RENEWED with its expiry
// date and alert flags untouched, and a fresh ACTIVE record carries the new
// date with all flags false. Allowed only from ACTIVE or EXPIRED.
func (s *ExpiryService) Renew(ctx context.Context, id string, newExpiryDate time.Time, renewedBy string) (*models.ExpiryTracking, error) {
	old, err := s.expiry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != models.ExpiryStatusActive && old.Status != models.ExpiryStatusExpired {
		return nil, apperrors.NewInvalidStateError("expiry record", old.Status, "renew")
	}

	now := time.Now().UTC()
	successor := &models.ExpiryTracking{
		ID:            utils.GenerateID(),
		DocumentID:    old.DocumentID,
		ExpiryType:    old.ExpiryType,
		ExpiryDate:    newExpiryDate,
		Status:        models.ExpiryStatusActive,
		AssignedTo:    old.AssignedTo,
		Department:    old.Department,
		RenewedFromID: &old.ID,
		Notes:         old.Notes,
	}

	err = s.txManager.WithRetry(func(tx *sql.Tx) error {
		superseded, err := s.expiry.MarkRenewed(ctx, tx, old.ID, now)
		if err != nil {
			return err
		}
		if !superseded {
			return apperrors.NewInvalidStateError("expiry record", old.Status, "renew")
		}
		return s.expiry.Insert(ctx, tx, successor)
	}, s.cfg.StoreRetryAttempts)
	if err != nil {
		return nil, err
	}

	event := events.NotificationEvent{
		Kind:        events.ExpiryRenewed,
		SubjectID:   successor.ID,
		RecipientID: old.AssignedTo,
		Title:       fmt.Sprintf("%s renewed", old.ExpiryType),
		Body: fmt.Sprintf("%s for document %s renewed until %s by %s",
			old.ExpiryType, old.DocumentID, newExpiryDate.Format("2006-01-02"), renewedBy),
	}
	if err := s.notifications.Emit(ctx, event); err != nil {
		log.Printf("⚠️ Renewal notification failed for record %s: %v", successor.ID, err)
	}

	return successor, nil
}

// Get returns an expiry record by ID
func (s *ExpiryService) Get(ctx context.Context, id string) (*models.ExpiryTracking, error) {
	return s.expiry.Get(ctx, id)
}

// ListByDocument returns all expiry records referencing a document
func (s *ExpiryService) ListByDocument(ctx context.Context, documentID string) ([]*models.ExpiryTracking, error) {
	return s.expiry.FindByDocument(ctx, documentID)
}

// Statistics returns record counts grouped by status
func (s *ExpiryService) Statistics(ctx context.Context) (map[string]int64, error) {
	return s.expiry.CountByStatus(ctx)
}
