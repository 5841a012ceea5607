package statistics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/gateway"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/interfaces"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the statistics endpoints
type Handler struct {
	service  interfaces.StatisticsService
	logger   *logger.Logger
	location *time.Location
	now      func() time.Time
}

// NewHandler creates the HTTP handler. Missing anno/mese default to the
// current month in loc.
func NewHandler(service interfaces.StatisticsService, log *logger.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		service:  service,
		logger:   log,
		location: loc,
		now:      time.Now,
	}
}

// RegisterRoutes configures the statistics routes on router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/statistics", h.getStatisticsHandler).Methods("GET")
	router.HandleFunc("/statistics/export", h.exportStatisticsHandler).Methods("GET")
}

// getStatisticsHandler handles GET /statistics?ambulatorio=&anno=&mese=
func (h *Handler) getStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	query, ok := h.authorizedQuery(w, r)
	if !ok {
		return
	}

	report, err := h.service.GetReport(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, report)
}

// exportStatisticsHandler handles GET /statistics/export and returns an xlsx attachment
func (h *Handler) exportStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	query, ok := h.authorizedQuery(w, r)
	if !ok {
		return
	}

	data, err := h.service.ExportReport(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("statistiche_%s_%04d_%02d.xlsx", query.Ambulatorio, query.Anno, query.Mese)
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// authorizedQuery parses the query and checks the caller may read the site
func (h *Handler) authorizedQuery(w http.ResponseWriter, r *http.Request) (*types.StatisticsQuery, bool) {
	query, err := h.parseStatisticsQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, false
	}

	if claims, ok := gateway.ClaimsFromContext(r.Context()); ok && !claims.CanAccess(query.Ambulatorio) {
		h.writeErrorResponse(w, r, http.StatusForbidden, "access to ambulatorio denied", nil)
		return nil, false
	}

	return query, true
}

// parseStatisticsQuery parses query parameters into a statistics query
func (h *Handler) parseStatisticsQuery(r *http.Request) (*types.StatisticsQuery, error) {
	now := h.now().In(h.location)
	query := &types.StatisticsQuery{
		Ambulatorio: r.URL.Query().Get("ambulatorio"),
		Anno:        now.Year(),
		Mese:        int(now.Month()),
	}

	details := map[string]interface{}{}
	if anno := r.URL.Query().Get("anno"); anno != "" {
		parsed, err := strconv.Atoi(anno)
		if err != nil {
			details["anno"] = "must be an integer"
		}
		query.Anno = parsed
	}
	if mese := r.URL.Query().Get("mese"); mese != "" {
		parsed, err := strconv.Atoi(mese)
		if err != nil {
			details["mese"] = "must be an integer"
		}
		query.Mese = parsed
	}
	if len(details) > 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "invalid statistics query", details)
	}

	if err := query.Validate(); err != nil {
		return nil, err
	}
	return query, nil
}

// writeServiceError maps an error kind to its HTTP status
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		h.writeErrorResponse(w, r, appErr.HTTPStatus(), appErr.Message, appErr)
		return
	}
	h.writeErrorResponse(w, r, http.StatusInternalServerError, "internal error", err)
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	entry := h.logger.WithContext(r.Context()).WithFields(logrus.Fields{
		"path":        r.URL.Path,
		"status_code": statusCode,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if statusCode >= http.StatusInternalServerError {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		response["code"] = appErr.Code
		if len(appErr.Details) > 0 {
			response["details"] = appErr.Details
		}
	}

	h.writeJSONResponse(w, statusCode, response)
}
