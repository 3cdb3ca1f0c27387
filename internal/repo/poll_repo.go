package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// OptionVotes is the number of votes cast for one poll option.
type OptionVotes struct {
	OptionID string `json:"option_id"`
	Votes    int64  `json:"votes"`
}

// CreatePoll inserts the poll together with its options.
func CreatePoll(ctx context.Context, db *gorm.DB, p *domain.Poll) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for i := range p.Options {
		if p.Options[i].ID == "" {
			p.Options[i].ID = uuid.NewString()
		}
		p.Options[i].PollID = p.ID
	}
	return db.WithContext(ctx).Create(p).Error
}

// GetPoll fetches a poll with its options ordered by date and start time.
func GetPoll(ctx context.Context, db *gorm.DB, id string) (*domain.Poll, error) {
	var p domain.Poll
	err := db.WithContext(ctx).
		Preload("Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("date asc").Order("start_time asc") }).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPolls returns every poll with options, newest first.
func ListPolls(ctx context.Context, db *gorm.DB) ([]domain.Poll, error) {
	var out []domain.Poll
	err := db.WithContext(ctx).
		Preload("Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("date asc").Order("start_time asc") }).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// SetPollStatus updates the poll status, or returns ErrNotFound.
func SetPollStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertVote stores the user's choice, replacing any earlier vote in the poll.
func UpsertVote(ctx context.Context, db *gorm.DB, v *domain.PollVote) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "poll_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"option_id", "updated_at"}),
		}).
		Create(v).Error
}

// GetVote returns the user's vote in a poll, or ErrNotFound.
func GetVote(ctx context.Context, db *gorm.DB, pollID, userID string) (*domain.PollVote, error) {
	var v domain.PollVote
	err := db.WithContext(ctx).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CountVotesByOption groups the poll's votes per option.
func CountVotesByOption(ctx context.Context, db *gorm.DB, pollID string) ([]OptionVotes, error) {
	var out []OptionVotes
	err := db.WithContext(ctx).
		Model(&domain.PollVote{}).
		Select("option_id, COUNT(*) AS votes").
		Where("poll_id = ?", pollID).
		Group("option_id").
		Scan(&out).Error
	return out, err
}

// UpdatePoll applies fields to the poll with id, or returns ErrNotFound.
func UpdatePoll(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePollOptions swaps the poll's options for opts. Votes cast for the
// old options are deleted with them. Run it inside a transaction.
func ReplacePollOptions(ctx context.Context, db *gorm.DB, pollID string, opts []domain.PollOption) error {
	tx := db.WithContext(ctx)
	if err := tx.Where("poll_id = ?", pollID).Delete(&domain.PollVote{}).Error; err != nil {
		return err
	}
	if err := tx.Where("poll_id = ?", pollID).Delete(&domain.PollOption{}).Error; err != nil {
		return err
	}
	if len(opts) == 0 {
		return nil
	}
	for i := range opts {
		if opts[i].ID == "" {
			opts[i].ID = uuid.NewString()
		}
		opts[i].PollID = pollID
	}
	return tx.Create(&opts).Error
}

// ListVotes returns the poll's votes, most recently cast first.
func ListVotes(ctx context.Context, db *gorm.DB, pollID string) ([]domain.PollVote, error) {
	var out []domain.PollVote
	err := db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}
