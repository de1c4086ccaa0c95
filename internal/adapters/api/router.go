// Package api — HTTP-интерфейс администратора поверх тех же сервисов, что и бот.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
	httpinfra "glaze-bot/internal/infra/http"
	"glaze-bot/internal/usecase/drop"
	"glaze-bot/internal/usecase/leaderboard"
	"glaze-bot/internal/usecase/moderation"
	"glaze-bot/internal/usecase/settings"
)

// Deps собирает сервисы, доступные через API.
type Deps struct {
	Board      *leaderboard.Service
	Moderation *moderation.Service
	Settings   *settings.Service
	Drops      *drop.Scheduler
	Secret     []byte
	Log        zerolog.Logger
}

type handler struct {
	board      *leaderboard.Service
	moderation *moderation.Service
	settings   *settings.Service
	drops      *drop.Scheduler
	log        zerolog.Logger
}

// Mount регистрирует маршруты /api/v1 под токеном администратора.
func Mount(r chi.Router, d Deps) {
	h := &handler{
		board:      d.Board,
		moderation: d.Moderation,
		settings:   d.Settings,
		drops:      d.Drops,
		log:        d.Log.With().Str("component", "api").Logger(),
	}
	r.Route("/api/v1", func(protected chi.Router) {
		protected.Use(httpinfra.BearerAuthMiddleware(d.Secret))

		protected.Get("/leaderboard", h.leaderboard)
		protected.Get("/config", h.config)
		protected.Patch("/config", h.patchConfig)
		protected.Get("/pending", h.pending)
		protected.Post("/pending/{id}/approve", h.approve)
		protected.Post("/pending/{id}/decline", h.decline)
		protected.Post("/drops/daily", h.forceDaily)
		protected.Post("/drops/random", h.randomDrop)
		protected.Post("/winners/force", h.forceWinner)
	})
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.board.Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, board)
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, cfg)
}

func (h *handler) patchConfig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	res, err := h.settings.Update(r.Context(), actor(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"config":  res.Config,
		"changes": res.Changes,
	})
}

func (h *handler) pending(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	cfg, err := h.settings.Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !cfg.IsAdmin(a) {
		h.fail(w, r, domain.ErrPermission)
		return
	}
	subs, err := h.moderation.Pending(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"pending": subs})
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	sub, err := h.moderation.Approve(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, sub)
}

func (h *handler) decline(w http.ResponseWriter, r *http.Request) {
	out, err := h.moderation.Decline(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"submission":      out.Submission,
		"sender_notified": out.Delivered,
	})
}

func (h *handler) forceDaily(w http.ResponseWriter, r *http.Request) {
	res, err := h.drops.ForceDaily(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"date":    res.Date,
		"dropped": nonNil(res.Dropped),
		"failed":  nonNil(res.Failed),
	})
}

func (h *handler) randomDrop(w http.ResponseWriter, r *http.Request) {
	sub, err := h.drops.RandomRelease(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"id": sub.ID})
}

type forceWinnerRequest struct {
	Month    string `json:"month"`
	Override bool   `json:"override"`
}

func (h *handler) forceWinner(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req forceWinnerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	res, err := h.drops.ForceMonthly(r.Context(), actor(r), req.Month, req.Override)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"winner": res.RecipientID,
		"count":  res.Count,
	})
}

// fail переводит ошибку ядра в HTTP-статус.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", httpinfra.RequestID(r)).Msg("api: ошибка запроса")
	}
	httpinfra.WriteError(w, status, err)
}

// StatusFor сопоставляет ошибкам домена коды ответа.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNothingChanged):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoDropChannel), errors.Is(err, domain.ErrNoReportChannel):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func actor(r *http.Request) domain.Actor {
	claims, _ := httpinfra.ClaimsFrom(r.Context())
	return claims.Actor()
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
