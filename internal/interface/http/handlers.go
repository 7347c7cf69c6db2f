package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/safecircle-app/safecircle/internal/application/command"
	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

// maxBodyBytes bounds request bodies; every JSON payload here is small.
const maxBodyBytes = 64 << 10

// maxPhotoBytes bounds photo uploads.
const maxPhotoBytes = 5 << 20

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.Uptime().String(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			checks["postgres"] = err.Error()
			ready = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Ping(r.Context()); err != nil {
			// Redis is an accelerator; losing it degrades, not fails.
			checks["redis"] = "degraded: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

type registerUserRequest struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
	PushToken   string `json:"push_token,omitempty"`
	KeepForever bool   `json:"keep_forever,omitempty"`
	PremiumPlan bool   `json:"premium_plan,omitempty"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.deps.RegisterUser.Handle(r.Context(), command.RegisterUserCommand{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		PushToken:   req.PushToken,
		KeepForever: req.KeepForever,
		PremiumPlan: req.PremiumPlan,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": result.UserID})
}

type userResponse struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	KeepForever bool       `json:"keep_forever"`
	PremiumPlan bool       `json:"premium_plan"`
	Stats       statsBlock `json:"stats"`
	Badges      []string   `json:"badges"`
	BestieIDs   []string   `json:"bestie_user_ids"`
	CreatedAt   time.Time  `json:"created_at"`
}

type statsBlock struct {
	TotalCheckIns     int        `json:"total_checkins"`
	CompletedCheckIns int        `json:"completed_checkins"`
	AlertedCheckIns   int        `json:"alerted_checkins"`
	TotalBesties      int        `json:"total_besties"`
	CurrentStreak     int        `json:"current_streak"`
	LongestStreak     int        `json:"longest_streak"`
	DaysActive        int        `json:"days_active"`
	LastActive        *time.Time `json:"last_active,omitempty"`
}

func toUserResponse(u *user.User) userResponse {
	badges := make([]string, len(u.Badges))
	for i, b := range u.Badges {
		badges[i] = string(b)
	}
	return userResponse{
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		KeepForever: u.KeepForever,
		PremiumPlan: u.PremiumPlan,
		Stats: statsBlock{
			TotalCheckIns:     u.Stats.TotalCheckIns,
			CompletedCheckIns: u.Stats.CompletedCheckIns,
			AlertedCheckIns:   u.Stats.AlertedCheckIns,
			TotalBesties:      u.Stats.TotalBesties,
			CurrentStreak:     u.Stats.CurrentStreak,
			LongestStreak:     u.Stats.LongestStreak,
			DaysActive:        u.Stats.DaysActive,
			LastActive:        u.Stats.LastActive,
		},
		Badges:    badges,
		BestieIDs: u.BestieUserIDs,
		CreatedAt: u.CreatedAt,
	}
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleGetMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := s.deps.Milestones.ListForUser(r.Context(), r.PathValue("id"), 50)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	type milestoneResponse struct {
		RelationshipID string    `json:"relationship_id"`
		OtherUserID    string    `json:"other_user_id"`
		Kind           string    `json:"kind"`
		Value          int       `json:"value"`
		ReachedAt      time.Time `json:"reached_at"`
	}
	out := make([]milestoneResponse, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, milestoneResponse{
			RelationshipID: m.RelationshipID,
			OtherUserID:    m.OtherUserID,
			Kind:           string(m.Kind),
			Value:          m.Value,
			ReachedAt:      m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// PHOTOS
// ══════════════════════════════════════════════════════════════════════════════

// handleUploadPhoto stores a photo blob and returns the storage path the
// caller then passes as photo_path when creating a check-in.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	if s.deps.Photos == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "storage_unavailable", "Photo storage is not configured")
		return
	}
	if r.ContentLength == 0 {
		writeJSONError(w, http.StatusBadRequest, "validation_error", "Photo payload is empty")
		return
	}
	if r.ContentLength > maxPhotoBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Photo exceeds the size limit")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)

	path, err := s.deps.Photos.Upload(r.Context(), callerID(r.Context()), r.Body, r.ContentLength, contentType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"photo_path": path})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-INS
// ══════════════════════════════════════════════════════════════════════════════

type createCheckInRequest struct {
	DurationMinutes int      `json:"duration_minutes"`
	CircleUserIDs   []string `json:"circle_user_ids"`
	Note            string   `json:"note,omitempty"`
	PhotoPath       string   `json:"photo_path,omitempty"`
}

func (s *Server) handleCreateCheckIn(w http.ResponseWriter, r *http.Request) {
	var req createCheckInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.deps.CreateCheckIn.Handle(r.Context(), command.CreateCheckInCommand{
		CallerID:      callerID(r.Context()),
		Duration:      time.Duration(req.DurationMinutes) * time.Minute,
		CircleUserIDs: req.CircleUserIDs,
		Note:          req.Note,
		PhotoPath:     req.PhotoPath,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"checkin_id": result.CheckInID,
		"alert_time": result.AlertTime,
	})
}

func (s *Server) handleCompleteCheckIn(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.CompleteCheckIn.Handle(r.Context(), command.CompleteCheckInCommand{
		CallerID:  callerID(r.Context()),
		CheckInID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied":      result.Applied,
		"status":       result.Status,
		"completed_at": result.CompletedAt,
	})
}

func (s *Server) handleFalseAlarm(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.FalseAlarm.Handle(r.Context(), command.FalseAlarmCommand{
		CallerID:  callerID(r.Context()),
		CheckInID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied":  result.Applied,
		"status":   result.Status,
		"notified": result.Notified,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// BESTIES
// ══════════════════════════════════════════════════════════════════════════════

type requestBestieRequest struct {
	RecipientID string `json:"recipient_id"`
}

func (s *Server) handleRequestBestie(w http.ResponseWriter, r *http.Request) {
	var req requestBestieRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.deps.Besties.Request(r.Context(), command.RequestBestieCommand{
		CallerID:    callerID(r.Context()),
		RecipientID: req.RecipientID,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if !result.Applied {
		status = http.StatusOK
	}
	writeJSON(w, status, bestieResponse(result))
}

func (s *Server) handleAcceptBestie(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Besties.Accept(r.Context(), command.RespondBestieCommand{
		CallerID:       callerID(r.Context()),
		RelationshipID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bestieResponse(result))
}

func (s *Server) handleDeclineBestie(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Besties.Decline(r.Context(), command.RespondBestieCommand{
		CallerID:       callerID(r.Context()),
		RelationshipID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bestieResponse(result))
}

func (s *Server) handleRemoveBestie(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Besties.Remove(r.Context(), command.RespondBestieCommand{
		CallerID:       callerID(r.Context()),
		RelationshipID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bestieResponse(result))
}

func bestieResponse(result *command.BestieResult) map[string]any {
	return map[string]any{
		"relationship_id": result.RelationshipID,
		"status":          result.Status,
		"applied":         result.Applied,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERACTIONS
// ══════════════════════════════════════════════════════════════════════════════

type recordInteractionRequest struct {
	ToUserID string `json:"to_user_id"`
	Kind     string `json:"kind"`
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req recordInteractionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.deps.RecordInteraction.Handle(r.Context(), command.RecordInteractionCommand{
		CallerID: callerID(r.Context()),
		ToUserID: req.ToUserID,
		Kind:     bestie.InteractionKind(req.Kind),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"interaction_id": result.InteractionID})
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.readSnapshot(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":        snapshot.TotalUsers,
		"total_checkins":     snapshot.TotalCheckIns,
		"completed_checkins": snapshot.CompletedCheckIns,
		"alerted_checkins":   snapshot.AlertedCheckIns,
		"accepted_besties":   snapshot.AcceptedBesties,
		"rebuilt_at":         snapshot.RebuiltAt,
		"updated_at":         snapshot.UpdatedAt,
	})
}

// readSnapshot tries the cache first and falls back to the database.
func (s *Server) readSnapshot(r *http.Request) (*analytics.Snapshot, error) {
	if s.deps.Cache != nil {
		if snap, err := s.deps.Cache.Get(r.Context()); err == nil {
			return snap, nil
		}
	}
	return s.deps.Analytics.Get(r.Context())
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scheduler.ListJobs())
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	result, err := s.deps.Scheduler.RunNow(r.Context(), name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReconcileUser(w http.ResponseWriter, r *http.Request) {
	repair := r.URL.Query().Get("repair") != "false"
	drifts, err := s.deps.Engine.ReconcileUser(r.Context(), r.PathValue("id"), repair)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repaired": repair,
		"drifts":   drifts,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody parses a bounded JSON body. Writes the error response itself
// and returns false when the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

// writeDomainError maps a domain error to an HTTP status.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidID),
		errors.Is(err, shared.ErrValueOutOfRange),
		isValidationError(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		s.logger.Error("unhandled error in http handler", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// isValidationError catches command.Validate errors, which are plain errors
// rather than domain sentinels.
func isValidationError(err error) bool {
	var ve command.ValidationError
	return errors.As(err, &ve)
}
