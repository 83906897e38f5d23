package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/storage/models"
)

// DraftRepository provides data access for planning session drafts.
type DraftRepository struct {
	BaseRepository
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *DB) *DraftRepository {
	return &DraftRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const draftColumns = `id, trip_id, title, city_id, start_date, end_date,
	friend_user_ids, length, days, created_at, updated_at`

// Save stores draft as the current draft, replacing any other. A draft
// without an id gets one.
func (r *DraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	friends, err := json.Marshal(nonNilFriends(draft.FriendUserIDs))
	if err != nil {
		return fmt.Errorf("encoding friends: %w", err)
	}
	days, err := json.Marshal(nonNilDays(draft.Days))
	if err != nil {
		return fmt.Errorf("encoding days: %w", err)
	}

	now := r.Now()
	if draft.ID == "" {
		draft.ID = GenerateID()
		draft.CreatedAt = now
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now

	return r.DB().Transaction(ctx, func(q Queryable) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM drafts WHERE id <> ?", draft.ID); err != nil {
			return fmt.Errorf("deleting stale drafts: %w", err)
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO drafts (`+draftColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				trip_id = excluded.trip_id,
				title = excluded.title,
				city_id = excluded.city_id,
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				friend_user_ids = excluded.friend_user_ids,
				length = excluded.length,
				days = excluded.days,
				updated_at = excluded.updated_at
		`,
			draft.ID, draft.TripID, draft.Title, draft.CityID, draft.StartDate, draft.EndDate,
			string(friends), draft.Length, string(days), draft.CreatedAt, draft.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting draft: %w", err)
		}
		return nil
	})
}

// Latest returns the most recently saved draft, or nil when there is none.
func (r *DraftRepository) Latest(ctx context.Context) (*models.Draft, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM drafts
		ORDER BY updated_at DESC
		LIMIT 1
	`)

	draft, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying draft: %w", err)
	}
	return draft, nil
}

// Delete removes a draft by ID. Deleting a missing draft is not an error.
func (r *DraftRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.DB().ExecContext(ctx, "DELETE FROM drafts WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*models.Draft, error) {
	var (
		d       models.Draft
		tripID  sql.NullInt64
		start   sql.NullTime
		end     sql.NullTime
		friends string
		days    string
	)

	if err := row.Scan(
		&d.ID, &tripID, &d.Title, &d.CityID, &start, &end,
		&friends, &d.Length, &days, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if tripID.Valid {
		d.TripID = &tripID.Int64
	}
	if start.Valid {
		d.StartDate = &start.Time
	}
	if end.Valid {
		d.EndDate = &end.Time
	}
	if err := json.Unmarshal([]byte(friends), &d.FriendUserIDs); err != nil {
		return nil, fmt.Errorf("decoding friends: %w", err)
	}
	if err := json.Unmarshal([]byte(days), &d.Days); err != nil {
		return nil, fmt.Errorf("decoding days: %w", err)
	}
	return &d, nil
}

func nonNilFriends(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nonNilDays(days map[int]itinerary.DayPlan) map[int]itinerary.DayPlan {
	if days == nil {
		return map[int]itinerary.DayPlan{}
	}
	return days
}
