package http

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sandeep89846/MarkMe/internal/domain"
	"github.com/sandeep89846/MarkMe/internal/usecase"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// maxBatchEvents caps one submission; clients chunk larger queues.
const maxBatchEvents = 20

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type signInRequest struct {
	IDToken   string `json:"idToken"`
	DeviceID  string `json:"deviceId"`
	PubkeyPEM string `json:"pubkeyPem"`
}

type signInResponse struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

type locationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type sessionResponse struct {
	SessionID            string           `json:"sessionId"`
	ClassName            string           `json:"className"`
	Location             locationResponse `json:"location"`
	QRRotationIntervalMs int              `json:"qrRotationIntervalMs"`
}

type qrResponse struct {
	QRNonce   string `json:"qrNonce"`
	SessionID string `json:"sessionId"`
	TS        string `json:"ts"`
}

type batchRequest struct {
	Events []batchEventInput `json:"events"`
}

type batchEventInput struct {
	Attendance map[string]any `json:"attendance"`
	StudentSig string         `json:"student_sig"`
}

type batchResultResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Metadata string `json:"metadata,omitempty"`
}

type batchResponse struct {
	Results    []batchResultResponse `json:"results"`
	ServerTime string                `json:"server_time"`
}

type subjectResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type historyItemResponse struct {
	ID        string `json:"id"`
	ClassName string `json:"className"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	dbMode := "no-db"
	if s.store != nil && s.store.DB != nil {
		dbMode = "db"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
}

// handleTime is unauthenticated: clients probe it before sign-in to estimate
// clock offset, and it must stay cheap.
func (s *Server) handleTime(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"utc": s.now().UTC().Format(isoMillis)})
}

func (s *Server) handleGoogleSignIn(c *gin.Context) {
	if s.enroll == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return
	}
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if !s.enforceRateLimit(c, "signin:"+c.ClientIP()) {
		return
	}

	result, err := s.enroll.SignIn(c.Request.Context(), req.IDToken, req.DeviceID, req.PubkeyPEM)
	if err != nil {
		s.metrics.RecordSignIn(signInOutcome(err))
		writeError(c, err)
		return
	}
	s.metrics.RecordSignIn("success")
	s.logger.Info().Str("student_id", result.Student.ID).Str("device_id", req.DeviceID).Msg("device enrolled")
	c.JSON(http.StatusOK, signInResponse{Token: result.Token, Status: "login_success"})
}

func signInOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrNotOnRoster):
		return "not_on_roster"
	case errors.Is(err, domain.ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "error"
	}
}

func (s *Server) handleSessionCurrent(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	info, err := s.sessions.CurrentForStudent(c.Request.Context(), principal.StudentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{
		SessionID:            info.SessionID,
		ClassName:            info.ClassName,
		Location:             locationResponse{Latitude: info.Lat, Longitude: info.Lon},
		QRRotationIntervalMs: info.QRRotationIntervalMs,
	})
}

// handleSessionQR serves the rotating QR display. It is guarded by the shared
// display secret rather than a student bearer token.
func (s *Server) handleSessionQR(c *gin.Context) {
	secret := c.Query("secret")
	if s.teacherSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.teacherSecret)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PAYLOAD", "sessionId is required")
		return
	}

	nonce, err := s.sessions.IssueNonce(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	s.metrics.RecordNonceIssued()
	c.JSON(http.StatusOK, qrResponse{
		QRNonce:   nonce.Value,
		SessionID: nonce.SessionID,
		TS:        nonce.IssuedAt.Format(isoMillis),
	})
}

func (s *Server) handleAttendanceBatch(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if len(req.Events) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PAYLOAD", "events are required")
		return
	}
	if len(req.Events) > maxBatchEvents {
		writeErrorCode(c, http.StatusBadRequest, "BATCH_TOO_LARGE", "too many events")
		return
	}
	if !s.enforceRateLimit(c, "batch:"+principal.DeviceID) {
		return
	}

	events := make([]usecase.BatchEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		events = append(events, usecase.BatchEvent{Attendance: ev.Attendance, StudentSig: ev.StudentSig})
	}
	results := s.verify.ExecuteBatch(c.Request.Context(), principal, events)

	s.metrics.RecordBatch(len(events))
	counts := map[string]int{}
	out := make([]batchResultResponse, 0, len(results))
	for _, res := range results {
		s.metrics.RecordResult(string(res.Status))
		counts[string(res.Status)]++
		out = append(out, batchResultResponse{
			ID:       res.IdempotencyKey,
			Status:   string(res.Status),
			Metadata: res.Metadata,
		})
	}
	s.logger.Info().
		Str("student_id", principal.StudentID).
		Str("device_id", principal.DeviceID).
		Int("events", len(events)).
		Interface("outcomes", counts).
		Msg("attendance batch processed")

	c.JSON(http.StatusOK, batchResponse{
		Results:    out,
		ServerTime: s.now().UTC().Format(isoMillis),
	})
}

func (s *Server) handleMySubjects(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	subjects, err := s.sessions.SubjectsForStudent(c.Request.Context(), principal.StudentID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]subjectResponse, 0, len(subjects))
	for _, subject := range subjects {
		out = append(out, subjectResponse{ID: subject.ID, Code: subject.Code, Name: subject.Name})
	}
	c.JSON(http.StatusOK, gin.H{"subjects": out})
}

func (s *Server) handleMyHistory(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	subjectID := c.Query("subjectId")
	if subjectID == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PAYLOAD", "subjectId is required")
		return
	}
	if s.records == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "store unavailable")
		return
	}
	items, err := s.records.HistoryForSubject(c.Request.Context(), principal.StudentID, subjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]historyItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, historyItemResponse{
			ID:        item.ID,
			ClassName: item.ClassName,
			Status:    item.Status,
			Timestamp: item.Timestamp.UTC().Format(isoMillis),
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		status, code = http.StatusBadRequest, "INVALID_PAYLOAD"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrNotOnRoster):
		status, code = http.StatusForbidden, "NOT_ON_ROSTER"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrNoActiveClass):
		status, code = http.StatusNotFound, "NO_ACTIVE_CLASS"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrSessionConflict):
		status, code = http.StatusConflict, "SESSION_CONFLICT"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
