package serverapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agridash/internal/component"
	"agridash/internal/config"
	"agridash/internal/dbexec"
	"agridash/internal/logging"
	"agridash/internal/observability"
	"agridash/internal/pageconfig"
	"agridash/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// APIVersion is reported in every response envelope.
const APIVersion = "1.0"

// DashboardHandler serves the dashboard endpoint: it validates the company
// id, loads the page configuration, walks every top-level component and
// returns the assembled envelope.
type DashboardHandler struct {
	exec    dbexec.QueryExecutor
	loader  *pageconfig.Loader
	walker  *component.Walker
	metrics *observability.DashboardMetrics
	cfg     config.DashboardConfig
}

// NewDashboardHandler wires the handler. Metrics may be nil.
func NewDashboardHandler(exec dbexec.QueryExecutor, loader *pageconfig.Loader, walker *component.Walker, metrics *observability.DashboardMetrics, cfg config.DashboardConfig) *DashboardHandler {
	return &DashboardHandler{
		exec:    exec,
		loader:  loader,
		walker:  walker,
		metrics: metrics,
		cfg:     cfg,
	}
}

type responseMetadata struct {
	APIVersion    string `json:"apiVersion"`
	ConfigVersion string `json:"configVersion,omitempty"`
	CompanyID     string `json:"companyId"`
	CVR           string `json:"cvr,omitempty"`
	Municipality  string `json:"municipality,omitempty"`
}

type dashboardResponse struct {
	Metadata    responseMetadata `json:"metadata"`
	PageBuilder []any            `json:"pageBuilder"`
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK

	if h.metrics != nil {
		h.metrics.IncrementActiveRequests(r.Context())
		defer h.metrics.DecrementActiveRequests(r.Context())
		defer func() {
			h.metrics.RecordRequest(r.Context(), time.Since(start), status)
		}()
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(r.Context()).Error("panic while assembling dashboard",
				"panic", fmt.Sprintf("%v", rec))
			status = http.StatusInternalServerError
			writeError(w, status, "Internal server error")
		}
	}()

	status = h.serve(w, r)
}

func (h *DashboardHandler) serve(w http.ResponseWriter, r *http.Request) int {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	rawID := r.URL.Query().Get("id")
	if rawID == "" {
		writeError(w, http.StatusBadRequest, "Company ID is required")
		return http.StatusBadRequest
	}

	companyID, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Invalid Company ID format provided")
		return http.StatusNotFound
	}

	company, found, err := h.lookupCompany(ctx, companyID.String())
	if err != nil {
		logger.Error("company lookup failed", "company_id", companyID.String(), "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return http.StatusInternalServerError
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Company with ID %s not found", companyID))
		return http.StatusNotFound
	}

	doc, err := h.loader.Load(ctx)
	if err != nil {
		logger.Error("page configuration unavailable", "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return http.StatusInternalServerError
	}

	response := dashboardResponse{
		Metadata: responseMetadata{
			APIVersion:    APIVersion,
			ConfigVersion: doc.Metadata.ConfigVersion,
			CompanyID:     company.ID,
			CVR:           company.CVR,
			Municipality:  company.Municipality,
		},
		PageBuilder: h.walker.ProcessAll(ctx, doc.PageBuilder, company),
	}

	writeJSON(w, http.StatusOK, response)
	return http.StatusOK
}

// lookupCompany fetches the company row by primary key.
func (h *DashboardHandler) lookupCompany(ctx context.Context, companyID string) (component.Company, bool, error) {
	sqlText, args, err := sq.Select(
		sqlutil.QuoteIdentifier("id"),
		sqlutil.QuoteIdentifier("cvr"),
		sqlutil.QuoteIdentifier("municipality"),
	).
		From(sqlutil.QuoteIdentifier(h.cfg.CompanyTable)).
		Where(sq.Eq{sqlutil.QuoteIdentifier("id"): companyID}).
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return component.Company{}, false, err
	}

	rows, err := h.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return component.Company{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return component.Company{}, false, err
		}
		return component.Company{}, false, nil
	}

	var id string
	var cvr, municipality *string
	if err := rows.Scan(&id, &cvr, &municipality); err != nil {
		return component.Company{}, false, err
	}

	company := component.Company{ID: id}
	if cvr != nil {
		company.CVR = *cvr
	}
	if municipality != nil {
		company.Municipality = *municipality
	}
	return company, true, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
