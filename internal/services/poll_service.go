// Package services – PollService
//
// PollService runs the scheduling polls for in-person classes. Admins publish
// candidate dates; students holding an active entitlement to one of the
// poll's courses (or named in an allowed override) vote for one option and
// may change their vote while the poll is open.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

// Poll option constraints.
const (
	DefaultPollDuration = 120 // minutes
	pollEarliestMinute  = 10 * 60
	pollLatestMinute    = 17 * 60
	pollDateLayout      = "2006-01-02"
)

// PollOptionInput is one candidate date.
type PollOptionInput struct {
	Date            string // YYYY-MM-DD
	StartTime       string // HH:mm
	DurationMinutes int
}

// PollInput is the admin payload for a new poll.
type PollInput struct {
	Title       string
	Description string
	DeadlineAt  *time.Time
	Eligibility domain.PollEligibility
	Options     []PollOptionInput
}

// PollPatch is a partial admin update. Nil fields are left unchanged; a
// non-nil Options replaces every option and discards the votes cast so far.
type PollPatch struct {
	Title         *string
	Description   *string
	DeadlineAt    *time.Time
	ClearDeadline bool
	Status        *string
	Eligibility   *domain.PollEligibility
	Options       []PollOptionInput
}

// PollVotes lists the votes of a poll.
type PollVotes struct {
	Data []domain.PollVote `json:"data"`
	Meta PollVotesMeta     `json:"meta"`
}

// PollVotesMeta carries the vote count.
type PollVotesMeta struct {
	Total int `json:"total"`
}

// PollStats summarises the votes of a poll.
type PollStats struct {
	PollID        string           `json:"poll_id"`
	TotalVotes    int64            `json:"total_votes"`
	VotesByOption map[string]int64 `json:"votes_by_option"`
}

// PollService implements poll operations.
type PollService struct {
	DB  *gorm.DB
	Now func() time.Time
	Log zerolog.Logger
}

// NewPollService constructs a PollService.
func NewPollService(db *gorm.DB) *PollService {
	return &PollService{
		DB:  db,
		Now: func() time.Time { return time.Now().UTC() },
		Log: log.Logger,
	}
}

func (s *PollService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// ValidatePollOption checks an option falls on Tuesday to Saturday, starts
// between 10:00 and 17:00 inclusive and has a positive duration. It returns
// the parsed day and the effective duration.
func ValidatePollOption(o PollOptionInput) (time.Time, int, error) {
	day, err := time.Parse(pollDateLayout, strings.TrimSpace(o.Date))
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, o.Date)
	}
	if wd := day.Weekday(); wd < time.Tuesday || wd > time.Saturday {
		return time.Time{}, 0, fmt.Errorf("%w: %s is a %s, options must fall Tuesday to Saturday", ErrInvalidInput, o.Date, wd)
	}

	hm, err := time.Parse("15:04", o.StartTime)
	if err != nil || len(o.StartTime) != 5 {
		return time.Time{}, 0, fmt.Errorf("%w: start time %q must be HH:mm", ErrInvalidInput, o.StartTime)
	}
	if m := hm.Hour()*60 + hm.Minute(); m < pollEarliestMinute || m > pollLatestMinute {
		return time.Time{}, 0, fmt.Errorf("%w: start time %s must be between 10:00 and 17:00", ErrInvalidInput, o.StartTime)
	}

	d := o.DurationMinutes
	if d == 0 {
		d = DefaultPollDuration
	}
	if d < 0 {
		return time.Time{}, 0, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	return day, d, nil
}

// Create validates and stores a new open poll.
func (s *PollService) Create(ctx context.Context, in PollInput) (*domain.Poll, error) {
	tr := otel.Tracer("services/PollService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("poll.title", in.Title),
			attribute.Int("poll.options", len(in.Options)),
		),
	)
	defer span.End()

	title := strings.TrimSpace(in.Title)
	if title == "" || len(in.Options) == 0 {
		return nil, ErrInvalidInput
	}

	p := &domain.Poll{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		DeadlineAt:  in.DeadlineAt,
		Status:      domain.PollStatusOpen,
		Eligibility: datatypes.NewJSONType(in.Eligibility),
	}
	for _, o := range in.Options {
		day, dur, err := ValidatePollOption(o)
		if err != nil {
			return nil, err
		}
		p.Options = append(p.Options, domain.PollOption{Date: day, StartTime: o.StartTime, DurationMinutes: dur})
	}

	if err := repo.CreatePoll(ctx, s.DB, p); err != nil {
		return nil, err
	}
	s.Log.Info().Str("poll_id", p.ID).Int("options", len(p.Options)).Msg("poll created")
	return repo.GetPoll(ctx, s.DB, p.ID)
}

// Eligible reports whether viewer may see and vote in p. An allowed override
// matching the user's id or email wins; otherwise the user needs an active
// entitlement to one of the poll's courses.
func (s *PollService) Eligible(ctx context.Context, p *domain.Poll, viewer Viewer) (bool, error) {
	if viewer.Anonymous() {
		return false, nil
	}
	el := p.Eligibility.Data()
	for _, o := range el.UserOverrides {
		if o.Allowed && o.Matches(viewer.UserID, viewer.Email) {
			return true, nil
		}
	}
	if len(el.CourseIDs) == 0 {
		return false, nil
	}
	return repo.HasActiveEntitlement(ctx, s.DB, viewer.UserID, el.CourseIDs, s.now())
}

// ListFor returns all polls to admins and the eligible ones to everyone else.
func (s *PollService) ListFor(ctx context.Context, viewer Viewer) ([]domain.Poll, error) {
	polls, err := repo.ListPolls(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if viewer.IsAdmin() {
		return polls, nil
	}
	out := make([]domain.Poll, 0, len(polls))
	for i := range polls {
		ok, err := s.Eligible(ctx, &polls[i], viewer)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, polls[i])
		}
	}
	return out, nil
}

func (s *PollService) load(ctx context.Context, id string) (*domain.Poll, error) {
	p, err := repo.GetPoll(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	return p, nil
}

// Get returns the poll when viewer is an admin or eligible.
func (s *PollService) Get(ctx context.Context, id string, viewer Viewer) (*domain.Poll, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.IsAdmin() {
		return p, nil
	}
	ok, err := s.Eligible(ctx, p, viewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEligible
	}
	return p, nil
}

// Vote records viewer's choice, replacing an earlier vote.
func (s *PollService) Vote(ctx context.Context, pollID, optionID string, viewer Viewer) (*domain.PollVote, error) {
	tr := otel.Tracer("services/PollService")
	ctx, span := tr.Start(ctx, "Vote",
		trace.WithAttributes(
			attribute.String("poll.id", pollID),
			attribute.String("poll.option_id", optionID),
		),
	)
	defer span.End()

	p, err := s.load(ctx, pollID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !p.OpenAt(now) {
		return nil, ErrPollClosed
	}
	ok, err := s.Eligible(ctx, p, viewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEligible
	}

	found := false
	for _, o := range p.Options {
		if o.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrInvalidPollOption
	}

	v := &domain.PollVote{PollID: pollID, UserID: viewer.UserID, OptionID: optionID, CreatedAt: now, UpdatedAt: now}
	if err := repo.UpsertVote(ctx, s.DB, v); err != nil {
		return nil, err
	}
	s.Log.Info().Str("poll_id", pollID).Str("user_id", viewer.UserID).Str("option_id", optionID).Msg("poll vote recorded")
	return repo.GetVote(ctx, s.DB, pollID, viewer.UserID)
}

// Close stops accepting votes.
func (s *PollService) Close(ctx context.Context, id string) (*domain.Poll, error) {
	if err := repo.SetPollStatus(ctx, s.DB, id, domain.PollStatusClosed); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	return s.load(ctx, id)
}

// Update applies p to the poll with id.
func (s *PollService) Update(ctx context.Context, id string, p PollPatch) (*domain.Poll, error) {
	tr := otel.Tracer("services/PollService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("poll.id", id),
			attribute.Bool("poll.replace_options", p.Options != nil),
		),
	)
	defer span.End()

	fields := map[string]any{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, ErrInvalidInput
		}
		fields["title"] = title
	}
	if p.Description != nil {
		fields["description"] = strings.TrimSpace(*p.Description)
	}
	switch {
	case p.ClearDeadline:
		fields["deadline_at"] = nil
	case p.DeadlineAt != nil:
		fields["deadline_at"] = *p.DeadlineAt
	}
	if p.Status != nil {
		if *p.Status != domain.PollStatusOpen && *p.Status != domain.PollStatusClosed {
			return nil, fmt.Errorf("%w: unknown poll status %q", ErrInvalidInput, *p.Status)
		}
		fields["status"] = *p.Status
	}
	if p.Eligibility != nil {
		fields["eligibility"] = datatypes.NewJSONType(*p.Eligibility)
	}

	var opts []domain.PollOption
	if p.Options != nil {
		if len(p.Options) == 0 {
			return nil, ErrInvalidInput
		}
		for _, o := range p.Options {
			day, dur, err := ValidatePollOption(o)
			if err != nil {
				return nil, err
			}
			opts = append(opts, domain.PollOption{Date: day, StartTime: o.StartTime, DurationMinutes: dur})
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdatePoll(ctx, tx, id, fields); err != nil {
			return err
		}
		if opts == nil {
			return nil
		}
		return repo.ReplacePollOptions(ctx, tx, id, opts)
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	s.Log.Info().Str("poll_id", id).Bool("options_replaced", opts != nil).Msg("poll updated")
	return s.load(ctx, id)
}

// Votes lists every vote of the poll, most recent first.
func (s *PollService) Votes(ctx context.Context, id string) (*PollVotes, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	votes, err := repo.ListVotes(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &PollVotes{Data: votes, Meta: PollVotesMeta{Total: len(votes)}}, nil
}

// Stats counts votes per option, listing options without votes as zero.
func (s *PollService) Stats(ctx context.Context, id string) (*PollStats, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := repo.CountVotesByOption(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	out := &PollStats{PollID: id, VotesByOption: make(map[string]int64, len(p.Options))}
	for _, o := range p.Options {
		out.VotesByOption[o.ID] = 0
	}
	for _, c := range counts {
		out.VotesByOption[c.OptionID] = c.Votes
		out.TotalVotes += c.Votes
	}
	return out, nil
}
