// In-person class poll handlers ("presenciales"). Students holding an
// entitlement to one of a poll's courses vote on candidate dates; admins
// create, close and tally polls.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/http/middleware"
	"github.com/tbourn/course-platform-backend/internal/services"
)

// PollOptionRequest is one candidate date. The service further requires a
// Tuesday to Saturday date and a start between 10:00 and 17:00.
type PollOptionRequest struct {
	Date            string `json:"date"             binding:"required,isodate" example:"2026-10-20"`
	StartTime       string `json:"start_time"       binding:"required,hhmm" example:"10:30"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=15,max=600" example:"120"`
}

// PollOverrideRequest explicitly lists a user by id or email.
type PollOverrideRequest struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"   binding:"omitempty,email"`
	Allowed bool   `json:"allowed"`
}

// CreatePollRequest is the admin payload for a new poll.
type CreatePollRequest struct {
	Title         string                `json:"title"          binding:"required,max=255" example:"Knife skills workshop"`
	Description   string                `json:"description"    binding:"max=5000"`
	DeadlineAt    *time.Time            `json:"deadline_at"`
	CourseIDs     []string              `json:"course_ids"`
	UserOverrides []PollOverrideRequest `json:"user_overrides" binding:"dive"`
	Options       []PollOptionRequest   `json:"options"        binding:"required,min=1,dive"`
}

// PollEligibilityRequest replaces a poll's eligibility rules.
type PollEligibilityRequest struct {
	CourseIDs     []string              `json:"course_ids"`
	UserOverrides []PollOverrideRequest `json:"user_overrides" binding:"dive"`
}

// UpdatePollRequest is a partial admin update. Sending options replaces all
// of them and discards the votes cast so far.
type UpdatePollRequest struct {
	Title         *string                 `json:"title"          binding:"omitempty,min=3,max=255"`
	Description   *string                 `json:"description"    binding:"omitempty,max=5000"`
	DeadlineAt    *time.Time              `json:"deadline_at"`
	ClearDeadline bool                    `json:"clear_deadline"`
	Status        *string                 `json:"status"         binding:"omitempty,oneof=open closed"`
	Eligibility   *PollEligibilityRequest `json:"eligibility"`
	Options       []PollOptionRequest     `json:"options"        binding:"omitempty,min=1,dive"`
}

// VoteRequest selects one option.
type VoteRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

// ListPolls godoc
// @ID          listPolls
// @Summary     List polls visible to the caller
// @Description Admins see every poll; students see the polls they are eligible for.
// @Tags        Polls
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Poll
// @Router      /presenciales/polls [get]
func (h *Handlers) ListPolls(c *gin.Context) {
	polls, err := h.svc.Polls.ListFor(c.Request.Context(), viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, polls)
}

// GetPoll godoc
// @ID          getPoll
// @Summary     Get a poll
// @Tags        Polls
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Poll ID"
// @Success     200  {object}  domain.Poll
// @Failure     403  {object}  handlers.ErrorResponse  "Not eligible"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presenciales/polls/{id} [get]
func (h *Handlers) GetPoll(c *gin.Context) {
	p, err := h.svc.Polls.Get(c.Request.Context(), c.Param("id"), viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// VotePoll godoc
// @ID          votePoll
// @Summary     Vote in a poll
// @Description Records the caller's choice; voting again replaces it.
// @Tags        Polls
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                true  "Poll ID"
// @Param       body  body  handlers.VoteRequest  true  "Choice"
// @Success     200  {object}  domain.PollVote
// @Failure     400  {object}  handlers.ErrorResponse  "Closed poll or unknown option"
// @Failure     403  {object}  handlers.ErrorResponse  "Not eligible"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presenciales/polls/{id}/vote [post]
func (h *Handlers) VotePoll(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	v, err := h.svc.Polls.Vote(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.OptionID), viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// CreatePoll godoc
// @ID          createPoll
// @Summary     Create a poll (admin)
// @Tags        Polls
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreatePollRequest  true  "Poll"
// @Success     201  {object}  domain.Poll
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /presenciales/polls [post]
func (h *Handlers) CreatePoll(c *gin.Context) {
	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	in := services.PollInput{
		Title:       req.Title,
		Description: req.Description,
		DeadlineAt:  req.DeadlineAt,
		Eligibility: toEligibility(req.CourseIDs, req.UserOverrides),
		Options:     toPollOptions(req.Options),
	}
	p, err := h.svc.Polls.Create(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetAuditTarget(c, p.ID, nil)
	ok(c, http.StatusCreated, p)
}

// UpdatePoll godoc
// @ID          updatePoll
// @Summary     Update a poll (admin)
// @Description Omitted fields keep their value. Sending options replaces them and discards existing votes.
// @Tags        Polls
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                      true  "Poll ID"
// @Param       body  body  handlers.UpdatePollRequest  true  "Fields to change"
// @Success     200  {object}  domain.Poll
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presenciales/polls/{id} [put]
func (h *Handlers) UpdatePoll(c *gin.Context) {
	var req UpdatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	patch := services.PollPatch{
		Title:         req.Title,
		Description:   req.Description,
		DeadlineAt:    req.DeadlineAt,
		ClearDeadline: req.ClearDeadline,
		Status:        req.Status,
	}
	if req.Eligibility != nil {
		el := toEligibility(req.Eligibility.CourseIDs, req.Eligibility.UserOverrides)
		patch.Eligibility = &el
	}
	if req.Options != nil {
		if len(req.Options) == 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "options must not be empty")
			return
		}
		patch.Options = toPollOptions(req.Options)
	}
	p, err := h.svc.Polls.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetAuditTarget(c, p.ID, req)
	ok(c, http.StatusOK, p)
}

// PollVotes godoc
// @ID          pollVotes
// @Summary     List the votes of a poll (admin)
// @Tags        Polls
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Poll ID"
// @Success     200  {object}  services.PollVotes
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presenciales/polls/{id}/votes [get]
func (h *Handlers) PollVotes(c *gin.Context) {
	votes, err := h.svc.Polls.Votes(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, votes)
}

func toEligibility(courseIDs []string, overrides []PollOverrideRequest) domain.PollEligibility {
	el := domain.PollEligibility{CourseIDs: courseIDs}
	for _, o := range overrides {
		el.UserOverrides = append(el.UserOverrides, domain.PollOverride{
			UserID:  strings.TrimSpace(o.UserID),
			Email:   strings.TrimSpace(o.Email),
			Allowed: o.Allowed,
		})
	}
	return el
}

func toPollOptions(in []PollOptionRequest) []services.PollOptionInput {
	out := make([]services.PollOptionInput, 0, len(in))
	for _, o := range in {
		out = append(out, services.PollOptionInput{
			Date:            o.Date,
			StartTime:       o.StartTime,
			DurationMinutes: o.DurationMinutes,
		})
	}
	return out
}

// ClosePoll godoc
// @ID          closePoll
// @Summary     Close a poll (admin)
// @Tags        Polls
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Poll ID"
// @Success     200  {object}  domain.Poll
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presenciales/polls/{id}/close [patch]
func (h *Handlers) ClosePoll(c *gin.Context) {
	p, err := h.svc.Polls.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// PollStats godoc
// @ID          pollStats
// @Summary     Vote counts per option (admin)
// @Tags        Polls
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Poll ID"
// @Success     200  {object}  services.PollStats
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /presenciales/polls/{id}/stats [get]
func (h *Handlers) PollStats(c *gin.Context) {
	st, err := h.svc.Polls.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
