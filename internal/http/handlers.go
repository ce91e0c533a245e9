package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/services"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps engine errors onto stable, distinguishable kinds. The
// message carries enough context for the caller to build a user-facing one.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var kind string

	switch {
	case errors.Is(err, core.ErrInsufficientFunds):
		status, kind = http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, core.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidMethod),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrEmptyOwner),
		errors.Is(err, core.ErrEmptyGoalName):
		status, kind = http.StatusUnprocessableEntity, "validation_error"
	default:
		status, kind = http.StatusInternalServerError, "persistence_error"
		s.logger.ErrorContext(r.Context(), "Request failed", applog.FieldPath, r.URL.Path, applog.FieldError, err)
	}

	writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "malformed request body"})
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return core.Date{}, err
	}
	return core.DateOf(t), nil
}

type balanceResponse struct {
	OwnerID string `json:"owner_id"`
	Method  string `json:"method"`
	Amount  string `json:"amount"`
}

func toBalanceResponse(b core.Balance) balanceResponse {
	return balanceResponse{
		OwnerID: b.OwnerID,
		Method:  string(b.Method),
		Amount:  b.Amount.String(),
	}
}

type transactionRequest struct {
	OwnerID        string `json:"owner_id"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	Amount         string `json:"amount"`
	Method         string `json:"method"`
	OccurredOn     string `json:"occurred_on"`
	Provider       string `json:"provider"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transactionResponse struct {
	TransactionID string          `json:"transaction_id"`
	Balance       balanceResponse `json:"balance"`
	Replayed      bool            `json:"replayed,omitempty"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleAddTransaction(w, r)
	case http.MethodGet:
		s.handleListTransactions(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	occurred, err := parseDate(req.OccurredOn)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Message: "occurred_on must be YYYY-MM-DD"})
		return
	}

	result, err := s.ledger.AddTransaction(r.Context(), core.Transaction{
		OwnerID:        strings.TrimSpace(req.OwnerID),
		Type:           core.TransactionType(req.Type),
		Category:       req.Category,
		Amount:         amount,
		Method:         core.PaymentMethod(req.Method),
		OccurredAt:     occurred,
		Provider:       strings.TrimSpace(req.Provider),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.invalidateOverview(req.OwnerID, occurred.Year(), int(occurred.Month()))

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, transactionResponse{
		TransactionID: result.TransactionID,
		Balance:       toBalanceResponse(result.Balance),
		Replayed:      result.Replayed,
	})
}

type transactionView struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Category   string `json:"category"`
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	OccurredOn string `json:"occurred_on"`
	Provider   string `json:"provider,omitempty"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := strings.TrimSpace(q.Get("owner_id"))
	if ownerID == "" {
		s.writeError(w, r, core.ErrEmptyOwner)
		return
	}

	filter := services.TransactionQuery{
		Type:     core.TransactionType(q.Get("type")),
		Category: q.Get("category"),
	}
	if v := q.Get("from"); v != "" {
		if d, err := parseDate(v); err == nil {
			filter.From = d.Truncate()
		}
	}
	if v := q.Get("to"); v != "" {
		if d, err := parseDate(v); err == nil {
			filter.To = d.Truncate()
		}
	}

	txns, err := s.ledger.ListTransactions(r.Context(), ownerID, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, transactionView{
			ID:         t.ID,
			Type:       string(t.Type),
			Category:   core.NormalizeCategory(t.Category),
			Amount:     t.Amount.String(),
			Method:     string(t.Method),
			OccurredOn: t.OccurredAt.Truncate().Format(dateLayout),
			Provider:   t.Provider,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": views})
}

type initialBalanceRequest struct {
	OwnerID string `json:"owner_id"`
	Method  string `json:"method"`
	Amount  string `json:"amount"`
}

func (s *Server) handleInitialBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		methodNotAllowed(w, "POST, PUT")
		return
	}
	var req initialBalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.ledger.SetInitialBalance(r.Context(), strings.TrimSpace(req.OwnerID), core.PaymentMethod(req.Method), amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceResponse(b))
}

type reconcileRequest struct {
	OwnerID string `json:"owner_id"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	var req reconcileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report, err := s.ledger.ReconcileBalances(r.Context(), strings.TrimSpace(req.OwnerID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	repaired := make([]string, 0, len(report.Repaired))
	for _, m := range report.Repaired {
		repaired = append(repaired, string(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"card":     report.Card.String(),
		"wallet":   report.Wallet.String(),
		"repaired": repaired,
	})
}

type budgetRequest struct {
	OwnerID   string `json:"owner_id"`
	Category  string `json:"category"`
	Limit     string `json:"limit"`
	Frequency string `json:"frequency"`
	Anchor    string `json:"anchor"`
}

type budgetStatusView struct {
	Category    string  `json:"category"`
	PeriodStart string  `json:"period_start,omitempty"`
	PeriodEnd   string  `json:"period_end,omitempty"`
	Spent       string  `json:"spent"`
	Limit       string  `json:"limit"`
	Frequency   string  `json:"frequency"`
	Percentage  float64 `json:"percentage"`
	NoData      bool    `json:"no_data,omitempty"`
}

func toBudgetStatusView(st services.BudgetStatus) budgetStatusView {
	v := budgetStatusView{
		Category:   st.Category,
		Spent:      st.Spent.String(),
		Limit:      st.Limit.String(),
		Frequency:  string(st.Frequency),
		Percentage: st.Percentage,
		NoData:     st.NoData,
	}
	if !st.NoData {
		v.PeriodStart = st.PeriodStart.Format(dateLayout)
		v.PeriodEnd = st.PeriodEnd.Format(dateLayout)
	}
	return v
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut, http.MethodPost:
		var req budgetRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		limit, err := parseAmount(req.Limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		anchor, err := parseDate(req.Anchor)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Message: "anchor must be YYYY-MM-DD"})
			return
		}
		err = s.budgets.SetLimit(r.Context(), core.BudgetLimit{
			OwnerID:   strings.TrimSpace(req.OwnerID),
			Category:  req.Category,
			Limit:     limit,
			Frequency: core.Frequency(req.Frequency),
			Anchor:    anchor,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
		if ownerID == "" {
			s.writeError(w, r, core.ErrEmptyOwner)
			return
		}
		statuses, err := s.budgets.ListBudgetStatuses(r.Context(), ownerID, time.Now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views := make([]budgetStatusView, 0, len(statuses))
		for _, st := range statuses {
			views = append(views, toBudgetStatusView(st))
		}
		writeJSON(w, http.StatusOK, map[string]any{"budgets": views})

	default:
		methodNotAllowed(w, "GET, POST, PUT")
	}
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	q := r.URL.Query()
	ownerID := strings.TrimSpace(q.Get("owner_id"))
	category := strings.TrimSpace(q.Get("category"))
	if ownerID == "" {
		s.writeError(w, r, core.ErrEmptyOwner)
		return
	}

	now := time.Now()
	if v := q.Get("date"); v != "" {
		if d, err := parseDate(v); err == nil {
			now = d.Truncate()
		}
	}

	st, err := s.budgets.GetBudgetStatus(r.Context(), ownerID, category, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetStatusView(st))
}

type goalRequest struct {
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Target   string `json:"target"`
	Deadline string `json:"deadline,omitempty"`
}

type goalView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Target   string `json:"target"`
	Current  string `json:"current"`
	Deadline string `json:"deadline,omitempty"`
	Status   string `json:"status"`
}

func toGoalView(g core.SavingsGoal, now time.Time) goalView {
	v := goalView{
		ID:      g.ID,
		Name:    g.Name,
		Target:  g.Target.String(),
		Current: g.Current.String(),
		Status:  string(core.ClassifyGoal(g, now)),
	}
	if !g.Deadline.IsEmpty() {
		v.Deadline = g.Deadline.Truncate().Format(dateLayout)
	}
	return v
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req goalRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		target, err := parseAmount(req.Target)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		goal := core.SavingsGoal{
			OwnerID: strings.TrimSpace(req.OwnerID),
			Name:    strings.TrimSpace(req.Name),
			Target:  target,
		}
		if req.Deadline != "" {
			d, err := parseDate(req.Deadline)
			if err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Message: "deadline must be YYYY-MM-DD"})
				return
			}
			goal.Deadline = d
		}
		created, err := s.goals.CreateGoal(r.Context(), goal)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toGoalView(created, time.Now()))

	case http.MethodGet:
		ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
		if ownerID == "" {
			s.writeError(w, r, core.ErrEmptyOwner)
			return
		}
		now := time.Now()
		list, err := s.goals.ListGoals(r.Context(), ownerID, now)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		active := make([]goalView, 0, len(list.Active))
		for _, g := range list.Active {
			active = append(active, toGoalView(g, now))
		}
		completed := make([]goalView, 0, len(list.Completed))
		for _, g := range list.Completed {
			completed = append(completed, toGoalView(g, now))
		}
		writeJSON(w, http.StatusOK, map[string]any{"active": active, "completed": completed})

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

type allocateRequest struct {
	OwnerID string `json:"owner_id"`
	GoalID  string `json:"goal_id"`
	Method  string `json:"method"`
	Amount  string `json:"amount"`
}

type allocateResponse struct {
	Balance   balanceResponse `json:"balance"`
	Goal      goalView        `json:"goal"`
	Allocated string          `json:"allocated"`
	Leftover  string          `json:"leftover"`
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	var req allocateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	method := core.PaymentMethod(req.Method)
	if req.Method == "" {
		method = core.Card
	}
	outcome, err := s.goals.AllocateToGoal(r.Context(), strings.TrimSpace(req.OwnerID), strings.TrimSpace(req.GoalID), method, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allocateResponse{
		Balance:   toBalanceResponse(outcome.Balance),
		Goal:      toGoalView(outcome.Goal, time.Now()),
		Allocated: outcome.Allocated.String(),
		Leftover:  outcome.Leftover.String(),
	})
}

type overviewResponse struct {
	Year       int               `json:"year"`
	Month      int               `json:"month"`
	Income     string            `json:"income"`
	Expense    string            `json:"expense"`
	Essential  string            `json:"essential"`
	Lifestyle  string            `json:"lifestyle"`
	ByCategory []categoryRowView `json:"by_category"`
}

type categoryRowView struct {
	Name   string `json:"name"`
	Class  string `json:"class"`
	Amount string `json:"amount"`
}

func (s *Server) overviewCacheKey(ownerID string, year, month int) string {
	return ownerID + "/" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

func (s *Server) invalidateOverview(ownerID string, year, month int) {
	s.overviewCache.Delete(s.overviewCacheKey(ownerID, year, month))
}

func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	q := r.URL.Query()
	ownerID := strings.TrimSpace(q.Get("owner_id"))
	if ownerID == "" {
		s.writeError(w, r, core.ErrEmptyOwner)
		return
	}

	now := time.Now()
	year := now.Year()
	month := int(now.Month())
	if v := q.Get("year"); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := q.Get("month"); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}
	if month < 1 || month > 12 {
		s.logger.WarnContext(r.Context(), "Invalid month parameter", "year", year, "month", month)
		month = int(now.Month())
	}

	key := s.overviewCacheKey(ownerID, year, month)
	if cached, found := s.overviewCache.Get(key); found {
		s.logger.DebugContext(r.Context(), "Overview cache hit", "year", year, "month", month)
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ov, err := s.budgets.MonthOverview(r.Context(), ownerID, year, month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := overviewResponse{
		Year:      ov.Year,
		Month:     ov.Month,
		Income:    ov.Income.String(),
		Expense:   ov.Expense.String(),
		Essential: ov.Essential.String(),
		Lifestyle: ov.Lifestyle.String(),
	}
	for _, row := range ov.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryRowView{
			Name:   row.Name,
			Class:  string(row.Class),
			Amount: row.Amount.String(),
		})
	}
	s.overviewCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}
