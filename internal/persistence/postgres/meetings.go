package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/meeting-service/internal/persistence"
)

const meetingColumns = `m.id, m.title, m.description, m.host_id, m.max_capacity, m.status, m.created_at, m.started_at, m.ended_at`

const membershipColumns = `id, meeting_id, user_id, joined_at, left_at`

// CreateMeeting inserts a new meeting.
func (s *Store) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if strings.TrimSpace(meeting.ID) == "" || !meeting.Status.Valid() {
		return persistence.ErrConstraintViolation
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO meetings (id, title, description, host_id, max_capacity, status, created_at, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		meeting.ID, meeting.Title, meeting.Description, meeting.HostID, meeting.MaxCapacity,
		string(meeting.Status), meeting.CreatedAt.UTC(), meeting.StartedAt, meeting.EndedAt,
	)
	return mapError(err)
}

// GetMeeting retrieves a meeting by ID.
func (s *Store) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	return selectMeeting(ctx, s.pool, id)
}

// ListActiveMeetings returns active meetings newest first with their open membership counts.
func (s *Store) ListActiveMeetings(ctx context.Context) ([]persistence.ActiveMeeting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+meetingColumns+`, COUNT(p.id)
		FROM meetings m
		LEFT JOIN meeting_participants p ON p.meeting_id = m.id AND p.left_at IS NULL
		WHERE m.status = $1
		GROUP BY m.id
		ORDER BY m.created_at DESC, m.id DESC`,
		string(persistence.StatusActive),
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var active []persistence.ActiveMeeting
	for rows.Next() {
		var item persistence.ActiveMeeting
		meeting, err := scanMeeting(rows, &item.OpenMemberships)
		if err != nil {
			return nil, err
		}
		item.Meeting = meeting
		active = append(active, item)
	}
	return active, mapError(rows.Err())
}

// ListOpenParticipants returns the open memberships of a meeting ordered by join time.
func (s *Store) ListOpenParticipants(ctx context.Context, meetingID string) ([]persistence.Membership, error) {
	return selectOpenMemberships(ctx, s.pool, meetingID)
}

// GetMeetingSnapshot reads a meeting and its open memberships in one
// repeatable-read transaction.
func (s *Store) GetMeetingSnapshot(ctx context.Context, id string) (persistence.Meeting, []persistence.Membership, error) {
	var (
		meeting     persistence.Meeting
		memberships []persistence.Membership
	)

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		var err error
		if meeting, err = selectMeeting(ctx, tx, id); err != nil {
			return err
		}
		memberships, err = selectOpenMemberships(ctx, tx, id)
		return err
	})
	if err != nil {
		return persistence.Meeting{}, nil, err
	}
	return meeting, memberships, nil
}

// WithMeetingTx runs fn in a transaction holding the meeting row lock.
func (s *Store) WithMeetingTx(ctx context.Context, meetingID string, fn func(tx persistence.MeetingTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT 1 FROM meetings WHERE id = $1 FOR UPDATE`, meetingID); err != nil {
			return mapError(err)
		}
		return fn(&meetingTx{tx: tx})
	})
}

type meetingTx struct {
	tx pgx.Tx
}

func (t *meetingTx) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	return selectMeeting(ctx, t.tx, id)
}

func (t *meetingTx) UpdateMeetingStatus(ctx context.Context, id string, expected, next persistence.MeetingStatus, at time.Time) (persistence.Meeting, error) {
	var column string
	switch next {
	case persistence.StatusActive:
		column = "started_at"
	case persistence.StatusEnded:
		column = "ended_at"
	default:
		return persistence.Meeting{}, persistence.ErrConstraintViolation
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE meetings SET status = $1, `+column+` = $2 WHERE id = $3 AND status = $4`,
		string(next), at.UTC(), id, string(expected),
	)
	if err != nil {
		return persistence.Meeting{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := selectMeeting(ctx, t.tx, id); err != nil {
			return persistence.Meeting{}, err
		}
		return persistence.Meeting{}, persistence.ErrStatusConflict
	}
	return selectMeeting(ctx, t.tx, id)
}

func (t *meetingTx) CountOpenMemberships(ctx context.Context, meetingID string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM meeting_participants WHERE meeting_id = $1 AND left_at IS NULL`,
		meetingID,
	).Scan(&count)
	return count, mapError(err)
}

func (t *meetingTx) GetMembership(ctx context.Context, meetingID, userID string) (persistence.Membership, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM meeting_participants WHERE meeting_id = $1 AND user_id = $2`,
		meetingID, userID,
	)
	membership, err := scanMembership(row)
	return membership, mapError(err)
}

func (t *meetingTx) UpsertMembership(ctx context.Context, membership persistence.Membership) (persistence.Membership, error) {
	if strings.TrimSpace(membership.ID) == "" {
		return persistence.Membership{}, persistence.ErrConstraintViolation
	}

	row := t.tx.QueryRow(ctx, `
		INSERT INTO meeting_participants (id, meeting_id, user_id, joined_at, left_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (meeting_id, user_id)
		DO UPDATE SET joined_at = EXCLUDED.joined_at, left_at = NULL
		RETURNING `+membershipColumns,
		membership.ID, membership.MeetingID, membership.UserID, membership.JoinedAt.UTC(),
	)
	stored, err := scanMembership(row)
	return stored, mapError(err)
}

func (t *meetingTx) CloseMembership(ctx context.Context, membershipID string, leftAt time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE meeting_participants SET left_at = $1 WHERE id = $2 AND left_at IS NULL`,
		leftAt.UTC(), membershipID,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (t *meetingTx) CloseAllOpenMemberships(ctx context.Context, meetingID string, leftAt time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE meeting_participants SET left_at = $1 WHERE meeting_id = $2 AND left_at IS NULL`,
		leftAt.UTC(), meetingID,
	)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func selectMeeting(ctx context.Context, q querier, id string) (persistence.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings m WHERE m.id = $1`
	meeting, err := scanMeeting(q.QueryRow(ctx, query, id))
	return meeting, mapError(err)
}

func selectOpenMemberships(ctx context.Context, q querier, meetingID string) ([]persistence.Membership, error) {
	rows, err := q.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM meeting_participants
		WHERE meeting_id = $1 AND left_at IS NULL
		ORDER BY joined_at ASC, id ASC`,
		meetingID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var memberships []persistence.Membership
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan membership: %w", err)
		}
		memberships = append(memberships, membership)
	}
	return memberships, mapError(rows.Err())
}

func scanMeeting(row pgx.Row, extra ...any) (persistence.Meeting, error) {
	var (
		meeting persistence.Meeting
		status  string
	)
	dest := []any{
		&meeting.ID, &meeting.Title, &meeting.Description, &meeting.HostID, &meeting.MaxCapacity,
		&status, &meeting.CreatedAt, &meeting.StartedAt, &meeting.EndedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return persistence.Meeting{}, err
	}

	meeting.Status = persistence.MeetingStatus(status)
	meeting.CreatedAt = meeting.CreatedAt.UTC()
	meeting.StartedAt = utcPtr(meeting.StartedAt)
	meeting.EndedAt = utcPtr(meeting.EndedAt)
	return meeting, nil
}

func scanMembership(row pgx.Row) (persistence.Membership, error) {
	var membership persistence.Membership
	if err := row.Scan(&membership.ID, &membership.MeetingID, &membership.UserID, &membership.JoinedAt, &membership.LeftAt); err != nil {
		return persistence.Membership{}, err
	}
	membership.JoinedAt = membership.JoinedAt.UTC()
	membership.LeftAt = utcPtr(membership.LeftAt)
	return membership, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
