package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

const meetingColumns = `id, title, description, host_id, max_capacity, status, created_at, started_at, ended_at`

const membershipColumns = `id, meeting_id, user_id, joined_at, left_at`

// MeetingRepository implements persistence.MeetingRepository using SQLite.
type MeetingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewMeetingRepository creates a new SQLite meeting repository.
func NewMeetingRepository(pool *ConnectionPool) *MeetingRepository {
	return &MeetingRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
	}
}

// CreateMeeting inserts a new meeting.
func (r *MeetingRepository) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if strings.TrimSpace(meeting.ID) == "" || !meeting.Status.Valid() {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO meetings (` + meetingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.DB().ExecContext(ctx, query,
		meeting.ID,
		meeting.Title,
		nullString(meeting.Description),
		meeting.HostID,
		meeting.MaxCapacity,
		string(meeting.Status),
		formatTime(meeting.CreatedAt),
		formatNullTime(meeting.StartedAt),
		formatNullTime(meeting.EndedAt),
	)
	return r.mapper.MapError(err)
}

// GetMeeting retrieves a meeting by ID.
func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	return selectMeeting(ctx, r.pool.DB(), r.mapper, id)
}

// ListActiveMeetings returns active meetings, newest first, with their open
// membership counts.
func (r *MeetingRepository) ListActiveMeetings(ctx context.Context) ([]persistence.ActiveMeeting, error) {
	query := `
		SELECT ` + prefixed("m", meetingColumns) + `,
			(SELECT COUNT(*) FROM meeting_participants p
			 WHERE p.meeting_id = m.id AND p.left_at IS NULL)
		FROM meetings m
		WHERE m.status = ?
		ORDER BY m.created_at DESC, m.id DESC
	`

	rows, err := r.pool.DB().QueryContext(ctx, query, string(persistence.StatusActive))
	if err != nil {
		return nil, r.mapper.MapError(err)
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
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return active, nil
}

// ListOpenParticipants returns the open memberships of a meeting ordered by
// join time.
func (r *MeetingRepository) ListOpenParticipants(ctx context.Context, meetingID string) ([]persistence.Membership, error) {
	return selectOpenMemberships(ctx, r.pool.DB(), r.mapper, meetingID)
}

// GetMeetingSnapshot reads a meeting and its open memberships in one
// read-only transaction.
func (r *MeetingRepository) GetMeetingSnapshot(ctx context.Context, id string) (persistence.Meeting, []persistence.Membership, error) {
	var (
		meeting     persistence.Meeting
		memberships []persistence.Membership
	)

	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		meeting, err = selectMeeting(ctx, tx, r.mapper, id)
		if err != nil {
			return err
		}
		memberships, err = selectOpenMemberships(ctx, tx, r.mapper, id)
		return err
	})
	if err != nil {
		return persistence.Meeting{}, nil, err
	}
	return meeting, memberships, nil
}

// WithMeetingTx runs fn in an immediate transaction. SQLite admits one writer
// at a time, so units of work on the same meeting never interleave.
func (r *MeetingRepository) WithMeetingTx(ctx context.Context, meetingID string, fn func(tx persistence.MeetingTx) error) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&meetingTx{tx: tx, mapper: r.mapper})
	})
}

type meetingTx struct {
	tx     *sql.Tx
	mapper *ErrorMapper
}

func (t *meetingTx) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	return selectMeeting(ctx, t.tx, t.mapper, id)
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

	query := `UPDATE meetings SET status = ?, ` + column + ` = ? WHERE id = ? AND status = ?`
	result, err := t.tx.ExecContext(ctx, query, string(next), formatTime(at), id, string(expected))
	if err != nil {
		return persistence.Meeting{}, t.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.Meeting{}, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := selectMeeting(ctx, t.tx, t.mapper, id); err != nil {
			return persistence.Meeting{}, err
		}
		return persistence.Meeting{}, persistence.ErrStatusConflict
	}

	return selectMeeting(ctx, t.tx, t.mapper, id)
}

func (t *meetingTx) CountOpenMemberships(ctx context.Context, meetingID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meeting_participants WHERE meeting_id = ? AND left_at IS NULL`,
		meetingID,
	).Scan(&count)
	if err != nil {
		return 0, t.mapper.MapError(err)
	}
	return count, nil
}

func (t *meetingTx) GetMembership(ctx context.Context, meetingID, userID string) (persistence.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM meeting_participants WHERE meeting_id = ? AND user_id = ?`
	membership, err := scanMembership(t.tx.QueryRowContext(ctx, query, meetingID, userID))
	if err != nil {
		return persistence.Membership{}, t.mapper.MapError(err)
	}
	return membership, nil
}

func (t *meetingTx) UpsertMembership(ctx context.Context, membership persistence.Membership) (persistence.Membership, error) {
	if strings.TrimSpace(membership.ID) == "" {
		return persistence.Membership{}, persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO meeting_participants (id, meeting_id, user_id, joined_at, left_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT (meeting_id, user_id)
		DO UPDATE SET joined_at = excluded.joined_at, left_at = NULL
		RETURNING ` + membershipColumns

	stored, err := scanMembership(t.tx.QueryRowContext(ctx, query,
		membership.ID,
		membership.MeetingID,
		membership.UserID,
		formatTime(membership.JoinedAt),
	))
	if err != nil {
		return persistence.Membership{}, t.mapper.MapError(err)
	}
	return stored, nil
}

func (t *meetingTx) CloseMembership(ctx context.Context, membershipID string, leftAt time.Time) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE meeting_participants SET left_at = ? WHERE id = ? AND left_at IS NULL`,
		formatTime(leftAt), membershipID,
	)
	if err != nil {
		return t.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (t *meetingTx) CloseAllOpenMemberships(ctx context.Context, meetingID string, leftAt time.Time) (int, error) {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE meeting_participants SET left_at = ? WHERE meeting_id = ? AND left_at IS NULL`,
		formatTime(leftAt), meetingID,
	)
	if err != nil {
		return 0, t.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func selectMeeting(ctx context.Context, q queryer, mapper *ErrorMapper, id string) (persistence.Meeting, error) {
	if strings.TrimSpace(id) == "" {
		return persistence.Meeting{}, persistence.ErrNotFound
	}

	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE id = ?`
	meeting, err := scanMeeting(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return persistence.Meeting{}, mapper.MapError(err)
	}
	return meeting, nil
}

func selectOpenMemberships(ctx context.Context, q queryer, mapper *ErrorMapper, meetingID string) ([]persistence.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM meeting_participants
		WHERE meeting_id = ? AND left_at IS NULL
		ORDER BY joined_at ASC, id ASC
	`

	rows, err := q.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, mapper.MapError(err)
	}
	defer rows.Close()

	var memberships []persistence.Membership
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return memberships, nil
}

// scanMeeting reads the meeting columns followed by any extra destinations.
func scanMeeting(row rowScanner, extra ...any) (persistence.Meeting, error) {
	var (
		meeting     persistence.Meeting
		description sql.NullString
		status      string
		createdAt   string
		startedAt   sql.NullString
		endedAt     sql.NullString
	)

	dest := []any{
		&meeting.ID,
		&meeting.Title,
		&description,
		&meeting.HostID,
		&meeting.MaxCapacity,
		&status,
		&createdAt,
		&startedAt,
		&endedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return persistence.Meeting{}, err
	}

	var err error
	meeting.Description = stringPtr(description)
	meeting.Status = persistence.MeetingStatus(status)
	if meeting.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Meeting{}, err
	}
	if meeting.StartedAt, err = parseNullTime(startedAt); err != nil {
		return persistence.Meeting{}, err
	}
	if meeting.EndedAt, err = parseNullTime(endedAt); err != nil {
		return persistence.Meeting{}, err
	}
	return meeting, nil
}

func scanMembership(row rowScanner) (persistence.Membership, error) {
	var (
		membership persistence.Membership
		joinedAt   string
		leftAt     sql.NullString
	)

	if err := row.Scan(&membership.ID, &membership.MeetingID, &membership.UserID, &joinedAt, &leftAt); err != nil {
		return persistence.Membership{}, err
	}

	var err error
	if membership.JoinedAt, err = parseTime(joinedAt); err != nil {
		return persistence.Membership{}, err
	}
	if membership.LeftAt, err = parseNullTime(leftAt); err != nil {
		return persistence.Membership{}, err
	}
	return membership, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

var _ persistence.MeetingRepository = (*MeetingRepository)(nil)
