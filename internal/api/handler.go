package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opensource-finance/kavach/internal/behavior"
	"github.com/opensource-finance/kavach/internal/domain"
	"github.com/opensource-finance/kavach/internal/metrics"
	"github.com/opensource-finance/kavach/internal/parser"
	"github.com/opensource-finance/kavach/internal/repository"
	"github.com/opensource-finance/kavach/internal/risk"
)

// Fraud feedback wording returned to the client and stored on cases.
const (
	DefaultFraudReason = "User reported as fraud"
	ActionBlocked      = "Transaction blocked and under investigation"
	ActionLegitimate   = "Transaction marked as legitimate"
	AnonymousUser      = "anonymous"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	deps     Dependencies
	async    bool
	version  string
	validate *validator.Validate
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, async bool, version string) *Handler {
	if deps.Parser == nil {
		deps.Parser = parser.New()
	}
	return &Handler{
		deps:     deps,
		async:    async,
		version:  version,
		validate: validator.New(),
	}
}

// VelocityInput lets callers supply recent activity explicitly.
type VelocityInput struct {
	Count         int `json:"count" validate:"gte=0"`
	WindowSeconds int `json:"windowSeconds" validate:"gte=0"`
}

func (v *VelocityInput) check() domain.VelocityCheck {
	if v == nil {
		return domain.NoRecentData()
	}
	return domain.RecentCount(v.Count, time.Duration(v.WindowSeconds)*time.Second)
}

// AnalyzeRiskRequest is the request body for POST /risk/analyze and
// POST /risk/report.
type AnalyzeRiskRequest struct {
	domain.Transaction
	Velocity *VelocityInput `json:"velocity,omitempty"`
}

// BehaviorRequest is the request body for the /behavior endpoints.
type BehaviorRequest struct {
	UserID      string             `json:"userId" validate:"required"`
	Transaction domain.Transaction `json:"transaction"`
	Velocity    *VelocityInput     `json:"velocity,omitempty"`
}

// InitRequest is the request body for POST /behavior/init.
type InitRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// ParseRequest is the request body for POST /transactions/parse.
type ParseRequest struct {
	Text   string `json:"text" validate:"required"`
	UserID string `json:"userId,omitempty"`

	// Analyze runs the parsed transaction through the pipeline.
	Analyze bool `json:"analyze,omitempty"`
}

// ParseResponse is the response for POST /transactions/parse.
type ParseResponse struct {
	Parsed     parser.ParsedTransaction `json:"parsed"`
	Valid      bool                     `json:"valid"`
	Error      string                   `json:"error,omitempty"`
	Summary    string                   `json:"summary,omitempty"`
	Assessment *domain.Assessment       `json:"assessment,omitempty"`
}

// FraudFeedbackRequest is the request body for /fraud/report and
// /fraud/verify.
type FraudFeedbackRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	UserID        string `json:"userId"`
	Reason        string `json:"reason"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether every configured backend answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	ready := true

	probe := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	if h.deps.Repo != nil {
		probe("repository", func() error { return h.deps.Repo.Ping(ctx) })
	}
	if h.deps.Cache != nil {
		probe("cache", func() error { return h.deps.Cache.Ping(ctx) })
	}
	if h.deps.Bus != nil {
		probe("bus", func() error { return h.deps.Bus.Ping(ctx) })
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

// AnalyzeRisk handles POST /risk/analyze. It never touches user state.
func (h *Handler) AnalyzeRisk(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRiskRequest
	if !h.decode(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, h.analyze(r, &req))
}

// RiskReport handles POST /risk/report.
func (h *Handler) RiskReport(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRiskRequest
	if !h.decode(w, r, &req) {
		return
	}

	tx := &req.Transaction
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	analysis := h.analyze(r, &req)
	writeJSON(w, http.StatusOK, h.deps.Scorer.GenerateReport(tx, analysis))
}

func (h *Handler) analyze(r *http.Request, req *AnalyzeRiskRequest) domain.RiskAnalysis {
	velocity := req.Velocity.check()

	var hits []domain.RuleHit
	if h.deps.Engine != nil {
		hits = h.deps.Engine.Evaluate(r.Context(), &req.Transaction, velocity)
	}
	return h.deps.Scorer.Analyze(&req.Transaction, risk.Inputs{Velocity: velocity, Extra: hits})
}

// InitProfile handles POST /behavior/init.
func (h *Handler) InitProfile(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if !h.decode(w, r, &req) || !h.authorize(w, r, req.UserID) {
		return
	}

	profile, err := h.deps.Detector.Initialize(r.Context(), req.UserID)
	if err != nil {
		h.writeFailure(w, err, "failed to initialize profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// AnalyzeBehavior handles POST /behavior/analyze.
func (h *Handler) AnalyzeBehavior(w http.ResponseWriter, r *http.Request) {
	var req BehaviorRequest
	if !h.decode(w, r, &req) || !h.authorize(w, r, req.UserID) {
		return
	}

	tx := req.transaction()
	result, err := h.deps.Detector.Analyze(r.Context(), tx, req.Velocity.check())
	if err != nil {
		h.writeFailure(w, err, "failed to analyze behavior")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateBehavior handles POST /behavior/update.
func (h *Handler) UpdateBehavior(w http.ResponseWriter, r *http.Request) {
	var req BehaviorRequest
	if !h.decode(w, r, &req) || !h.authorize(w, r, req.UserID) {
		return
	}

	if _, err := h.deps.Detector.Update(r.Context(), req.transaction()); err != nil {
		h.writeFailure(w, err, "failed to update profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req *BehaviorRequest) transaction() *domain.Transaction {
	tx := req.Transaction
	tx.UserID = req.UserID
	return &tx
}

// Insights handles GET /behavior/insights?userId=.
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}

	insights, err := h.deps.Detector.Insights(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, err, "failed to load insights")
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

// GetProfile handles GET /behavior/profile?userId=.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}

	profile, err := h.deps.Detector.Profile(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ClearProfile handles DELETE /behavior/profile?userId=.
func (h *Handler) ClearProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}

	if err := h.deps.Detector.Clear(r.Context(), userID); err != nil {
		h.writeFailure(w, err, "failed to clear profile")
		return
	}
	slog.Info("profile cleared", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// SubmitTransaction handles POST /transactions. The transaction is scored
// inline, or queued on the event bus in async mode.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if !h.decode(w, r, &tx) {
		return
	}
	if tx.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !h.authorize(w, r, tx.UserID) {
		return
	}

	if h.async {
		h.enqueue(w, r, &tx)
		return
	}

	if h.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not available")
		return
	}
	assessment, err := h.deps.Pipeline.Process(r.Context(), &tx)
	if err != nil {
		h.writeFailure(w, err, "failed to assess transaction")
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, tx *domain.Transaction) {
	if h.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		h.writeFailure(w, err, "failed to encode transaction")
		return
	}
	if err := h.deps.Bus.Publish(r.Context(), domain.TopicTransactionIngested, tx.UserID, payload); err != nil {
		slog.Error("failed to queue transaction", "tx_id", tx.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue transaction")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"transactionId": tx.ID,
		"status":        "queued",
		"traceId":       GetTraceID(r.Context()),
	})
}

// GetTransaction retrieves a transaction and its risk report by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	tx, err := h.deps.Repo.GetTransaction(ctx, txID)
	if err != nil {
		h.writeFailure(w, err, "failed to load transaction")
		return
	}
	if !h.authorize(w, r, tx.UserID) {
		return
	}

	resp := map[string]any{"transaction": tx}
	report, err := h.deps.Repo.GetReport(ctx, txID)
	switch {
	case err == nil:
		resp["report"] = report
	case !errors.Is(err, repository.ErrNotFound):
		slog.Warn("failed to load report", "tx_id", txID, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTransactions handles GET /transactions?userId=&limit=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	userID, ok := h.queryUser(w, r)
	if !ok {
		return
	}

	limit := repository.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	txs, err := h.deps.Repo.ListTransactionsByUser(r.Context(), userID, time.Time{}, limit)
	if err != nil {
		h.writeFailure(w, err, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// ParseTransaction handles POST /transactions/parse.
func (h *Handler) ParseTransaction(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID != "" && !h.authorize(w, r, req.UserID) {
		return
	}

	parsed := h.deps.Parser.Parse(req.Text)
	resp := ParseResponse{Parsed: parsed, Valid: true}
	if err := parsed.Validate(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Summary = parsed.Format()

	if req.Analyze {
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "userId is required to analyze")
			return
		}
		if h.deps.Pipeline == nil {
			writeError(w, http.StatusServiceUnavailable, "pipeline not available")
			return
		}
		assessment, err := h.deps.Pipeline.Process(r.Context(), parsed.ToTransaction(req.UserID))
		if err != nil {
			h.writeFailure(w, err, "failed to assess transaction")
			return
		}
		resp.Assessment = assessment
	}

	writeJSON(w, http.StatusOK, resp)
}

// ReportFraud handles POST /fraud/report.
func (h *Handler) ReportFraud(w http.ResponseWriter, r *http.Request) {
	var req FraudFeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = DefaultFraudReason
	}
	h.saveCase(w, r, &domain.Case{
		TransactionID: req.TransactionID,
		UserID:        req.UserID,
		Status:        domain.CaseReported,
		Reason:        reason,
		Action:        ActionBlocked,
	}, "Fraud reported successfully")
}

// VerifyTransaction handles POST /fraud/verify.
func (h *Handler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	var req FraudFeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.saveCase(w, r, &domain.Case{
		TransactionID: req.TransactionID,
		UserID:        req.UserID,
		Status:        domain.CaseVerified,
		Action:        ActionLegitimate,
	}, "Transaction verified successfully")
}

func (h *Handler) saveCase(w http.ResponseWriter, r *http.Request, c *domain.Case, message string) {
	if !h.requireRepo(w) {
		return
	}

	c.ID = uuid.New().String()
	c.CreatedAt = time.Now().UTC()
	if c.UserID == "" {
		c.UserID = AnonymousUser
	}

	if err := h.deps.Repo.SaveCase(r.Context(), c); err != nil {
		h.writeFailure(w, err, "failed to save case")
		return
	}
	metrics.FraudCasesTotal.WithLabelValues(string(c.Status)).Inc()

	slog.Info("fraud case recorded",
		"case_id", c.ID,
		"tx_id", c.TransactionID,
		"status", c.Status,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"case":    c,
	})
}

// FraudStats handles GET /fraud/stats.
func (h *Handler) FraudStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	stats, err := h.deps.Repo.GetStats(r.Context())
	if err != nil {
		h.writeFailure(w, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListRules returns the rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	loaded := h.deps.Engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRule validates a rule, saves it and loads it into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	var rule domain.RuleConfig
	if !h.decode(w, r, &rule) {
		return
	}

	if err := h.deps.Engine.ValidateRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if h.deps.Repo != nil {
		if err := h.deps.Repo.SaveRuleConfig(r.Context(), &rule); err != nil {
			slog.Error("failed to save rule config", "id", rule.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rule")
			return
		}
	}

	if err := h.deps.Engine.LoadRule(&rule); err != nil {
		h.writeFailure(w, err, "failed to load rule")
		return
	}
	metrics.RulesLoaded.Set(float64(h.deps.Engine.RulesCount()))

	slog.Info("rule created", "id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":   rule,
		"loaded": h.deps.Engine.RulesCount(),
	})
}

// ReloadRules reloads all rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	if h.deps.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	stored, err := h.deps.Repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.deps.Engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}
	metrics.RulesLoaded.Set(float64(h.deps.Engine.RulesCount()))

	slog.Info("rules reloaded from database", "count", h.deps.Engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.deps.Engine.RulesCount(),
	})
}

// decode reads a JSON body into v and validates it. On failure the 400
// response is already written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) queryUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	return userID, h.authorize(w, r, userID)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	if err := authorizeUser(r.Context(), userID); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return false
	}
	return true
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

// writeFailure maps an error to its status code and logs server-side
// failures.
func (h *Handler) writeFailure(w http.ResponseWriter, err error, msg string) {
	var se *behavior.StoreError
	switch {
	case errors.Is(err, behavior.ErrUserRequired), errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &se):
		slog.Error(msg, "op", se.Op, "user_id", se.UserID, "error", se.Err)
		writeError(w, http.StatusServiceUnavailable, "profile store unavailable")
	default:
		slog.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", jsonName(fe.Namespace()), fe.Tag()))
	}
	return "validation failed: " + strings.Join(msgs, ", ")
}

// jsonName turns "AnalyzeRiskRequest.Transaction.Amount" into "amount".
func jsonName(namespace string) string {
	if i := strings.LastIndex(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	if namespace == "" {
		return namespace
	}
	return strings.ToLower(namespace[:1]) + namespace[1:]
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
