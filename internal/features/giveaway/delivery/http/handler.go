package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/common/middleware"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models/dto"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/service"
)

// Lifecycle is the part of the controller exposed over HTTP.
type Lifecycle interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.ActiveGiveaway, error)
	Get(ctx context.Context, id string) (*models.ActiveGiveaway, error)
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, communityID int64, limit int) ([]*models.FinishedGiveaway, error)
	GiveawayCountAt(ctx context.Context, communityID int64, start, end time.Time) (int, error)
	SetBan(ctx context.Context, communityID, userID int64, banned, shadow bool) error

	Schedule(ctx context.Context, req service.ScheduleRequest) (*models.ScheduledGiveaway, error)
	CancelScheduled(ctx context.Context, id string) error
	ListScheduled(ctx context.Context, communityID int64) ([]*models.ScheduledGiveaway, error)

	Presets(ctx context.Context, communityID int64) ([]models.Preset, error)
	SetPreset(ctx context.Context, communityID int64, p models.Preset) error
	DeletePreset(ctx context.Context, communityID int64, name string) error
	SetPremium(ctx context.Context, communityID int64, premium bool) error
}

// Entries credits member actions.
type Entries interface {
	Process(ctx context.Context, ev models.EntryEvent) (int, error)
}

type GiveawayHandler struct {
	lifecycle Lifecycle
	entries   Entries
}

func NewGiveawayHandler(lifecycle Lifecycle, entries Entries) *GiveawayHandler {
	return &GiveawayHandler{lifecycle: lifecycle, entries: entries}
}

func (h *GiveawayHandler) RegisterRoutes(router *gin.RouterGroup) {
	giveaways := router.Group("/giveaways")
	{
		giveaways.POST("", h.create)
		giveaways.GET("/:id", h.getByID)
		giveaways.DELETE("/:id", h.delete)
	}

	scheduled := router.Group("/scheduled")
	{
		scheduled.POST("", h.schedule)
		scheduled.DELETE("/:id", h.cancelScheduled)
	}

	router.POST("/entries", h.enter)

	communities := router.Group("/communities/:id")
	{
		communities.GET("/history", h.history)
		communities.GET("/count", h.count)
		communities.GET("/scheduled", h.listScheduled)
		communities.GET("/presets", h.presets)
		communities.PUT("/presets/:name", h.setPreset)
		communities.DELETE("/presets/:name", h.deletePreset)
		communities.PUT("/premium", h.setPremium)
		communities.PUT("/users/:user_id/ban", h.setBan)
	}
}

// @Summary Create giveaway
// @Description Publishes a giveaway post and starts collecting entries. The host defaults to the init_data user.
// @Tags giveaways
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body dto.GiveawayCreateRequest true "Giveaway"
// @Success 201 {object} dto.GiveawayResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse "Quota exceeded"
// @Router /giveaways [post]
func (h *GiveawayHandler) create(c *gin.Context) {
	var input dto.GiveawayCreateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	g, err := h.lifecycle.Create(c.Request.Context(), service.CreateRequest{
		CommunityID: input.CommunityID,
		ChannelID:   input.ChannelID,
		HostID:      hostID(c, input.HostID),
		Duration:    time.Duration(input.Duration) * time.Second,
		WinnerCount: input.WinnerCount,
		PresetName:  input.PresetName,
		Prize:       input.Prize,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewGiveawayResponse(g))
}

// @Summary Get giveaway by ID
// @Tags giveaways
// @Produce json
// @Param id path string true "Giveaway ID"
// @Success 200 {object} dto.GiveawayResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /giveaways/{id} [get]
func (h *GiveawayHandler) getByID(c *gin.Context) {
	g, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewGiveawayResponse(g))
}

// @Summary Delete giveaway
// @Description Removes the post and drops the giveaway without drawing winners
// @Tags giveaways
// @Param id path string true "Giveaway ID"
// @Success 204 "No Content"
// @Failure 404 {object} middleware.ErrorResponse
// @Router /giveaways/{id} [delete]
func (h *GiveawayHandler) delete(c *gin.Context) {
	if err := h.lifecycle.Delete(c.Request.Context(), c.Param("id")); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Schedule giveaway
// @Description Stores a giveaway that is published at start_time
// @Tags scheduled
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body dto.ScheduleRequest true "Scheduled giveaway"
// @Success 201 {object} dto.ScheduledGiveawayResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse "Quota taken during that window"
// @Router /scheduled [post]
func (h *GiveawayHandler) schedule(c *gin.Context) {
	var input dto.ScheduleRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	s, err := h.lifecycle.Schedule(c.Request.Context(), service.ScheduleRequest{
		CommunityID: input.CommunityID,
		ChannelID:   input.ChannelID,
		HostID:      hostID(c, input.HostID),
		StartTime:   input.StartTime,
		Duration:    time.Duration(input.Duration) * time.Second,
		WinnerCount: input.WinnerCount,
		PresetName:  input.PresetName,
		Prize:       input.Prize,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewScheduledGiveawayResponse(s))
}

// @Summary Cancel scheduled giveaway
// @Tags scheduled
// @Param id path string true "Scheduled giveaway ID"
// @Success 204 "No Content"
// @Failure 404 {object} middleware.ErrorResponse
// @Router /scheduled/{id} [delete]
func (h *GiveawayHandler) cancelScheduled(c *gin.Context) {
	if err := h.lifecycle.CancelScheduled(c.Request.Context(), c.Param("id")); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List scheduled giveaways
// @Tags scheduled
// @Produce json
// @Param id path int true "Community ID"
// @Success 200 {array} dto.ScheduledGiveawayResponse
// @Router /communities/{id}/scheduled [get]
func (h *GiveawayHandler) listScheduled(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	list, err := h.lifecycle.ListScheduled(c.Request.Context(), communityID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	out := make([]dto.ScheduledGiveawayResponse, 0, len(list))
	for _, s := range list {
		out = append(out, dto.NewScheduledGiveawayResponse(s))
	}
	c.JSON(http.StatusOK, out)
}

// @Summary List presets
// @Tags communities
// @Produce json
// @Param id path int true "Community ID"
// @Success 200 {array} models.Preset
// @Router /communities/{id}/presets [get]
func (h *GiveawayHandler) presets(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	presets, err := h.lifecycle.Presets(c.Request.Context(), communityID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, presets)
}

// @Summary Create or replace preset
// @Description A preset used by a running or scheduled giveaway cannot change
// @Tags communities
// @Accept json
// @Param id path int true "Community ID"
// @Param name path string true "Preset name"
// @Param input body dto.PresetRequest true "Preset rules"
// @Success 204 "No Content"
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse "Preset in use"
// @Router /communities/{id}/presets/{name} [put]
func (h *GiveawayHandler) setPreset(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var input dto.PresetRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	if err := h.lifecycle.SetPreset(c.Request.Context(), communityID, input.Preset(c.Param("name"))); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Delete preset
// @Tags communities
// @Param id path int true "Community ID"
// @Param name path string true "Preset name"
// @Success 204 "No Content"
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse "Preset in use"
// @Router /communities/{id}/presets/{name} [delete]
func (h *GiveawayHandler) deletePreset(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.lifecycle.DeletePreset(c.Request.Context(), communityID, c.Param("name")); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Set premium
// @Tags communities
// @Accept json
// @Param id path int true "Community ID"
// @Param input body dto.PremiumRequest true "Premium flag"
// @Success 204 "No Content"
// @Router /communities/{id}/premium [put]
func (h *GiveawayHandler) setPremium(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var input dto.PremiumRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	if err := h.lifecycle.SetPremium(c.Request.Context(), communityID, input.Premium); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Report entry
// @Description Credits a member action to the giveaways of a community
// @Tags entries
// @Accept json
// @Produce json
// @Param input body dto.EntryRequest true "Member action"
// @Success 200 {object} dto.EntryResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /entries [post]
func (h *GiveawayHandler) enter(c *gin.Context) {
	var input dto.EntryRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	credited, err := h.entries.Process(c.Request.Context(), models.EntryEvent{
		Type:        models.EntryType(input.Type),
		CommunityID: input.CommunityID,
		UserID:      input.UserID,
		GiveawayID:  input.GiveawayID,
		Emoji:       input.Emoji,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EntryResponse{Credited: credited})
}

// @Summary Finished giveaways
// @Tags communities
// @Produce json
// @Param id path int true "Community ID"
// @Param limit query int false "Maximum number of records"
// @Success 200 {array} dto.FinishedGiveawayResponse
// @Router /communities/{id}/history [get]
func (h *GiveawayHandler) history(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.lifecycle.History(c.Request.Context(), communityID, limit)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	out := make([]dto.FinishedGiveawayResponse, 0, len(list))
	for _, f := range list {
		out = append(out, dto.NewFinishedGiveawayResponse(f))
	}
	c.JSON(http.StatusOK, out)
}

// count reports the peak number of concurrent giveaways between the from and
// to query parameters (RFC 3339); both default to now.
//
// @Summary Concurrent giveaways
// @Tags communities
// @Produce json
// @Param id path int true "Community ID"
// @Param from query string false "Window start"
// @Param to query string false "Window end"
// @Success 200 {object} dto.CountResponse
// @Router /communities/{id}/count [get]
func (h *GiveawayHandler) count(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	now := time.Now()
	start, err := timeQuery(c, "from", now)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	end, err := timeQuery(c, "to", start)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if end.Before(start) {
		middleware.RespondError(c, apperrors.NewValidationError("to", "must not be before from"))
		return
	}

	n, err := h.lifecycle.GiveawayCountAt(c.Request.Context(), communityID, start, end)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CountResponse{CommunityID: communityID, Count: n})
}

// @Summary Ban member
// @Tags communities
// @Accept json
// @Param id path int true "Community ID"
// @Param user_id path int true "User ID"
// @Param input body dto.BanRequest true "Ban flags"
// @Success 204 "No Content"
// @Router /communities/{id}/users/{user_id}/ban [put]
func (h *GiveawayHandler) setBan(c *gin.Context) {
	communityID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	userID, ok := int64Param(c, "user_id")
	if !ok {
		return
	}
	var input dto.BanRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	if err := h.lifecycle.SetBan(c.Request.Context(), communityID, userID, input.Banned, input.ShadowBanned); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// hostID prefers the Telegram user authenticated by init_data over the body.
func hostID(c *gin.Context, fromBody int64) int64 {
	if id, ok := middleware.InitDataUserID(c); ok {
		return id
	}
	return fromBody
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		middleware.RespondError(c, apperrors.NewValidationError(name, "must be an integer"))
		return 0, false
	}
	return v, true
}

func timeQuery(c *gin.Context, name string, def time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(name, "must be an RFC 3339 time")
	}
	return t, nil
}
