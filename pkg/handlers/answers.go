package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/auth"
	"github.com/mlagent/answer-engine/pkg/repositories"
	"github.com/mlagent/answer-engine/pkg/services"
)

// TenantMiddleware wraps a handler with a tenant-scoped DB connection.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// AnswerRequest is the POST body for an approval.
type AnswerRequest struct {
	QuestionID string `json:"questionId"`
	Action     string `json:"action"`
	Response   string `json:"response,omitempty"`
}

// AnswerResponse is returned on confirmed delivery.
type AnswerResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	MLResponse json.RawMessage `json:"mlResponse,omitempty"`
}

// DeliveryFailureResponse is returned when delivery failed after the
// approval was recorded. The record stays retryable.
type DeliveryFailureResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Error    string `json:"error"`
	Status   int    `json:"status,omitempty"`
	CanRetry bool   `json:"canRetry"`
}

// AnswersHandler exposes the answer-submission pipeline over HTTP.
type AnswersHandler struct {
	approvals services.ApprovalService
	questions repositories.QuestionRepository
	logger    *zap.Logger
}

// NewAnswersHandler creates a new AnswersHandler.
func NewAnswersHandler(approvals services.ApprovalService, questions repositories.QuestionRepository, logger *zap.Logger) *AnswersHandler {
	return &AnswersHandler{
		approvals: approvals,
		questions: questions,
		logger:    logger,
	}
}

// RegisterRoutes registers the answer routes on the given mux.
// All routes require authentication and a tenant-scoped connection.
func (h *AnswersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/questions/answer",
		authMiddleware.RequireAuth(tenantMiddleware(h.Answer)))
	mux.HandleFunc("GET /api/questions/answer/confirm",
		authMiddleware.RequireAuth(tenantMiddleware(h.ConfirmAnswer)))
	mux.HandleFunc("GET /api/questions/{id}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
}

// Answer handles POST /api/questions/answer.
func (h *AnswersHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	result, err := h.approve(r, &req)
	if err != nil {
		h.writeApprovalError(w, err)
		return
	}

	if !result.Delivered {
		h.writeDeliveryFailure(w, result)
		return
	}

	if err := WriteJSON(w, http.StatusOK, AnswerResponse{
		Success:    true,
		Message:    result.Message,
		MLResponse: rawJSON(result.MarketplaceBody),
	}); err != nil {
		h.logger.Error("Failed to write answer response", zap.Error(err))
	}
}

// ConfirmAnswer handles GET /api/questions/answer/confirm?questionId=...
// It is the one-click approval used by email/chat links: same pipeline as
// Answer with action "approve" and no operator text, but renders an HTML
// page because the caller is a browser following a link.
func (h *AnswersHandler) ConfirmAnswer(w http.ResponseWriter, r *http.Request) {
	req := &AnswerRequest{
		QuestionID: r.URL.Query().Get("questionId"),
		Action:     string(services.ActionApprove),
	}

	result, err := h.approve(r, req)
	if err != nil {
		h.renderConfirmPage(w, http.StatusBadRequest, confirmPage{
			Success: false,
			Title:   "Não foi possível aprovar",
			Detail:  userMessage(err),
		})
		return
	}

	if !result.Delivered {
		h.renderConfirmPage(w, http.StatusInternalServerError, confirmPage{
			Success: false,
			Title:   "Falha no envio",
			Detail:  "A resposta foi aprovada mas o envio falhou. Tente novamente pelo painel.",
		})
		return
	}

	h.renderConfirmPage(w, http.StatusOK, confirmPage{
		Success: true,
		Title:   "Resposta enviada!",
		Detail:  "A resposta foi publicada no marketplace.",
	})
}

// Get handles GET /api/questions/{id} for UI polling.
func (h *AnswersHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrgIDFromContext(r.Context())
	if orgID == uuid.Nil {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Question not found")
		return
	}

	question, err := h.questions.GetByID(r.Context(), orgID, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Question not found")
			return
		}
		h.logger.Error("Failed to load question", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load question")
		return
	}

	if err := WriteJSON(w, http.StatusOK, question); err != nil {
		h.logger.Error("Failed to write question response", zap.Error(err))
	}
}

// approve resolves the session actor and runs the orchestrator.
func (h *AnswersHandler) approve(r *http.Request, req *AnswerRequest) (*services.ApprovalResult, error) {
	orgID, actorID, err := auth.ActorFromContext(r.Context())
	if err != nil {
		return nil, apperrors.ErrUnauthenticated
	}

	return h.approvals.Approve(r.Context(), &services.ApprovalRequest{
		OrgID:      orgID,
		ActorID:    actorID,
		QuestionID: req.QuestionID,
		Action:     services.Action(req.Action),
		Response:   req.Response,
	})
}

// writeApprovalError maps pipeline errors to HTTP statuses. Cross-tenant
// and nonexistent ids produce the identical 404 body.
func (h *AnswersHandler) writeApprovalError(w http.ResponseWriter, err error) {
	var quotaErr *apperrors.QuotaExceededError
	if errors.As(err, &quotaErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":           "quota_exceeded",
			"message":         quotaErr.Error(),
			"upgradeRequired": quotaErr.UpgradeRequired,
		})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
	case errors.Is(err, apperrors.ErrInvalidRequest),
		errors.Is(err, apperrors.ErrInvalidAction),
		errors.Is(err, apperrors.ErrEmptyResponse),
		errors.Is(err, apperrors.ErrResponseTooLong):
		h.writeError(w, http.StatusBadRequest, "invalid_request", userMessage(err))
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Question not found")
	case errors.Is(err, apperrors.ErrNoResponseAvailable):
		h.writeError(w, http.StatusBadRequest, "no_response_available", userMessage(err))
	case errors.Is(err, apperrors.ErrAccountInactive),
		errors.Is(err, apperrors.ErrMissingCredentials),
		errors.Is(err, apperrors.ErrDecryptionFailed):
		h.writeError(w, http.StatusUnprocessableEntity, "account_unavailable", userMessage(err))
	default:
		h.logger.Error("Approval failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func (h *AnswersHandler) writeDeliveryFailure(w http.ResponseWriter, result *services.ApprovalResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	if err := json.NewEncoder(w).Encode(DeliveryFailureResponse{
		Success:  false,
		Message:  result.Message,
		Error:    result.FailureReason,
		Status:   result.MarketplaceStatus,
		CanRetry: result.CanRetry,
	}); err != nil {
		h.logger.Error("Failed to write delivery failure response", zap.Error(err))
	}
}

func (h *AnswersHandler) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// userMessage extracts a human-readable message for client-facing errors.
func userMessage(err error) string {
	for _, sentinel := range []error{
		apperrors.ErrInvalidRequest,
		apperrors.ErrInvalidAction,
		apperrors.ErrEmptyResponse,
		apperrors.ErrResponseTooLong,
		apperrors.ErrNoResponseAvailable,
		apperrors.ErrAccountInactive,
		apperrors.ErrMissingCredentials,
		apperrors.ErrDecryptionFailed,
		apperrors.ErrNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// rawJSON echoes the marketplace body when it is valid JSON, otherwise
// wraps it as a JSON string.
func rawJSON(body string) json.RawMessage {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(body)
	return quoted
}

// confirmPage is the template data for the one-click confirmation page.
type confirmPage struct {
	Success bool
	Title   string
	Detail  string
}

var confirmTemplate = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f4f5f7; margin: 0; }
  .card { max-width: 420px; margin: 80px auto; background: #fff; border-radius: 12px;
          padding: 40px 32px; text-align: center; box-shadow: 0 2px 12px rgba(0,0,0,.08); }
  .icon { font-size: 48px; }
  h1 { font-size: 22px; margin: 16px 0 8px; color: {{if .Success}}#1a7f37{{else}}#b42318{{end}}; }
  p { color: #555; margin: 0; }
</style>
</head>
<body>
<div class="card">
  <div class="icon">{{if .Success}}&#10004;{{else}}&#10008;{{end}}</div>
  <h1>{{.Title}}</h1>
  <p>{{.Detail}}</p>
</div>
</body>
</html>
`))

func (h *AnswersHandler) renderConfirmPage(w http.ResponseWriter, statusCode int, page confirmPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := confirmTemplate.Execute(w, page); err != nil {
		h.logger.Error("Failed to render confirmation page", zap.Error(err))
	}
}
