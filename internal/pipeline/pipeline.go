// Package pipeline runs a transaction through velocity, operator rules,
// the risk scorer and the behavioral detector, then persists and publishes
// the combined assessment.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kavach/internal/domain"
	"github.com/opensource-finance/kavach/internal/metrics"
	"github.com/opensource-finance/kavach/internal/risk"
	"github.com/opensource-finance/kavach/internal/traces"
)

// ErrTransactionRequired is returned for a nil transaction.
var ErrTransactionRequired = errors.New("transaction is required")

// VelocityObserver reports recent activity for a user.
type VelocityObserver interface {
	Observe(ctx context.Context, userID string, at time.Time) (domain.VelocityCheck, error)
}

// RuleEvaluator evaluates operator rules.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, tx *domain.Transaction, velocity domain.VelocityCheck) []domain.RuleHit
}

// BehaviorAnalyzer scores a transaction against the user's profile and
// folds it in.
type BehaviorAnalyzer interface {
	AnalyzeAndUpdate(ctx context.Context, tx *domain.Transaction, velocity domain.VelocityCheck) (domain.AnomalyResult, *domain.Profile, error)
}

// Store persists scored transactions.
type Store interface {
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
	SaveReport(ctx context.Context, report *domain.Report) error
}

// Publisher publishes pipeline events.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}

// Config wires a Processor. Only Scorer and Detector are required.
type Config struct {
	Scorer   *risk.Scorer
	Detector BehaviorAnalyzer
	Velocity VelocityObserver
	Rules    RuleEvaluator
	Store    Store
	Bus      Publisher
	Version  string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Processor produces an Assessment for each transaction.
type Processor struct {
	scorer   *risk.Scorer
	detector BehaviorAnalyzer
	velocity VelocityObserver
	rules    RuleEvaluator
	store    Store
	bus      Publisher
	version  string
	now      func() time.Time
}

// NewProcessor creates a processor from its dependencies.
func NewProcessor(cfg Config) *Processor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Processor{
		scorer:   cfg.Scorer,
		detector: cfg.Detector,
		velocity: cfg.Velocity,
		rules:    cfg.Rules,
		store:    cfg.Store,
		bus:      cfg.Bus,
		version:  cfg.Version,
		now:      cfg.Now,
	}
}

// Process scores one transaction. Only detector failures under the
// fail-fast policy are returned; velocity, persistence and publish
// failures are logged and the assessment is still produced.
func (p *Processor) Process(ctx context.Context, tx *domain.Transaction) (*domain.Assessment, error) {
	if tx == nil {
		return nil, ErrTransactionRequired
	}
	start := p.now()

	ctx, span := traces.StartSpan(ctx, "pipeline.Process",
		traces.UserID(tx.UserID),
		traces.Amount(tx.Amount),
	)
	defer span.End()

	// 1. Normalize
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = start.UTC()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = start.UTC()
	}
	span.SetAttributes(traces.TransactionID(tx.ID))

	// 2. Velocity
	velocity := domain.NoRecentData()
	if p.velocity != nil {
		v, err := p.velocity.Observe(ctx, tx.UserID, tx.Timestamp)
		if err != nil {
			slog.Warn("velocity lookup failed, scoring without it",
				"tx_id", tx.ID,
				"user_id", tx.UserID,
				"error", err,
			)
		} else {
			velocity = v
		}
	}

	// 3. Operator rules
	var hits []domain.RuleHit
	if p.rules != nil {
		hits = p.rules.Evaluate(ctx, tx, velocity)
	}

	// 4. Score
	analysis := p.scorer.Analyze(tx, risk.Inputs{Velocity: velocity, Extra: hits})
	report := p.scorer.GenerateReport(tx, analysis)

	// 5. Behavior
	anomaly, profile, err := p.detector.AnalyzeAndUpdate(ctx, tx, velocity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	count, _ := velocity.Count()
	assessment := &domain.Assessment{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Report:        report,
		Anomaly:       anomaly,
		Alert:         domain.ShouldAlert(report, anomaly),
		Metadata: domain.AssessmentMetadata{
			TraceID:     traces.TraceID(ctx),
			RulesHit:    len(hits),
			VelocityObs: count,
			Version:     p.version,
		},
	}
	if profile != nil {
		assessment.TrustScore = profile.TrustScore
	}

	// 6. Persist
	p.persist(ctx, tx, report)

	// 7. Publish
	assessment.Metadata.TotalMs = p.now().Sub(start).Milliseconds()
	p.publish(ctx, assessment)

	// 8. Metrics
	took := p.now().Sub(start)
	metrics.ObserveAssessment(string(analysis.RiskLevel), analysis.RiskScore, anomaly.IsAnomalous, assessment.Alert, took)

	span.SetAttributes(
		traces.RiskScore(analysis.RiskScore),
		traces.RiskLevel(string(analysis.RiskLevel)),
		traces.Anomalous(anomaly.IsAnomalous),
	)

	slog.Debug("transaction assessed",
		"tx_id", tx.ID,
		"user_id", tx.UserID,
		"risk_score", analysis.RiskScore,
		"risk_level", analysis.RiskLevel,
		"anomalous", anomaly.IsAnomalous,
		"alert", assessment.Alert,
		"duration_ms", took.Milliseconds(),
	)

	return assessment, nil
}

func (p *Processor) persist(ctx context.Context, tx *domain.Transaction, report *domain.Report) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveTransaction(ctx, tx); err != nil {
		slog.Error("failed to save transaction",
			"tx_id", tx.ID,
			"error", err,
		)
		return
	}
	if err := p.store.SaveReport(ctx, report); err != nil {
		slog.Error("failed to save report",
			"tx_id", tx.ID,
			"error", err,
		)
	}
}

func (p *Processor) publish(ctx context.Context, a *domain.Assessment) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		slog.Error("failed to marshal assessment",
			"tx_id", a.TransactionID,
			"error", err,
		)
		return
	}

	if err := p.bus.Publish(ctx, domain.TopicTransactionAssessed, a.UserID, payload); err != nil {
		slog.Error("failed to publish assessment",
			"tx_id", a.TransactionID,
			"error", err,
		)
	}

	if a.Alert {
		if err := p.bus.Publish(ctx, domain.TopicAlert, a.UserID, payload); err != nil {
			slog.Error("failed to publish alert",
				"tx_id", a.TransactionID,
				"error", err,
			)
		}
	}
}
