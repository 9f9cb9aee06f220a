// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// Store implements the persistence contracts of the transition engine,
// the publishing orchestrator, the conflict detector, the scheduler and
// the monitor against a single SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const sessionColumns = `
	s.id, s.status, s.title, s.objective, s.description,
	s.starts_at, s.ends_at,
	s.location_id, s.trainer_id, s.topic_id,
	s.headline, s.summary, s.key_benefits, s.call_to_action,
	s.landing_page_url, s.registration_url,
	s.readiness, s.published_at,
	s.validation_valid, s.validation_messages, s.validation_checked_at,
	s.version, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM registrations r WHERE r.session_id = s.id),
	(SELECT GROUP_CONCAT(DISTINCT c.kind) FROM content_versions c WHERE c.session_id = s.id AND c.accepted = 1)`

// GetSession loads a session with its registration count and accepted
// content kinds.
func (s *Store) GetSession(ctx context.Context, id string) (*workflow.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &workflow.SessionNotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return session, nil
}

// CreateSession inserts a new session row. Sessions enter the workflow in
// DRAFT state; an empty id is assigned one.
func (s *Store) CreateSession(ctx context.Context, session *workflow.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = types.StatusDraft
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Version == 0 {
		session.Version = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, status, title, objective, description,
			starts_at, ends_at, location_id, trainer_id, topic_id,
			headline, summary, key_benefits, call_to_action,
			landing_page_url, registration_url,
			readiness, published_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Status.String(), session.Title, session.Objective, session.Description,
		nullUnix(session.StartsAt), nullUnix(session.EndsAt),
		session.LocationID, session.TrainerID, session.TopicID,
		session.Headline, session.Summary, session.KeyBenefits, session.CallToAction,
		session.LandingPageURL, session.RegistrationURL,
		session.Readiness, nullUnixPtr(session.PublishedAt),
		session.Version, session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// CommitTransition persists the mutated session and appends the log entry
// in one transaction, guarded by the expected version. The log and the
// entity always move together: a failure on either side rolls back both.
func (s *Store) CommitTransition(ctx context.Context, next *workflow.Session, entry *workflow.StatusLogEntry, expectedVersion int64) (*workflow.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return nil, &workflow.ConcurrentModificationError{SessionID: next.ID, Attempts: 1}
		}
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, published_at = ?, readiness = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		next.Status.String(), nullUnixPtr(next.PublishedAt), next.Readiness,
		next.UpdatedAt.Unix(), next.ID, expectedVersion,
	)
	if err != nil {
		if isBusy(err) {
			return nil, &workflow.ConcurrentModificationError{SessionID: next.ID, Attempts: 1}
		}
		return nil, fmt.Errorf("update session %s: %w", next.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", next.ID, err)
	}
	if affected == 0 {
		return nil, &workflow.ConcurrentModificationError{SessionID: next.ID, Attempts: 1}
	}

	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal readiness snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO status_log (id, session_id, from_status, to_status, actor, automated, remark, readiness, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.From.String(), entry.To.String(),
		entry.Actor, boolToInt(entry.Automated), entry.Remark,
		entry.Readiness, string(snapshot), entry.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert status log for %s: %w", next.ID, err)
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return nil, &workflow.ConcurrentModificationError{SessionID: next.ID, Attempts: 1}
		}
		return nil, fmt.Errorf("commit transition for %s: %w", next.ID, err)
	}

	committed := *next
	committed.Version = expectedVersion + 1
	return &committed, nil
}

// ListSessionsByIDs loads the named sessions in one query. Unknown ids are
// absent from the result.
func (s *Store) ListSessionsByIDs(ctx context.Context, ids []string) ([]workflow.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.querySessions(ctx, `SELECT`+sessionColumns+` FROM sessions s WHERE s.id IN (`+placeholders+`)`, args...)
}

// ListSessionsByStatus returns every session in the given status.
func (s *Store) ListSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]workflow.Session, error) {
	return s.querySessions(ctx, `SELECT`+sessionColumns+` FROM sessions s WHERE s.status = ? ORDER BY s.starts_at`, status.String())
}

// ListReadySessions returns sessions in the READY state.
func (s *Store) ListReadySessions(ctx context.Context) ([]workflow.Session, error) {
	return s.ListSessionsByStatus(ctx, types.StatusReady)
}

// ListEndedPublished returns published sessions whose end time is at or
// before now.
func (s *Store) ListEndedPublished(ctx context.Context, now time.Time) ([]workflow.Session, error) {
	return s.querySessions(ctx, `SELECT`+sessionColumns+`
		FROM sessions s
		WHERE s.status = ? AND s.ends_at IS NOT NULL AND s.ends_at <= ?`,
		types.StatusPublished.String(), now.Unix())
}

// ListPublishedInWindow returns every published session whose interval
// intersects [from, to).
func (s *Store) ListPublishedInWindow(ctx context.Context, from, to time.Time) ([]workflow.Session, error) {
	return s.querySessions(ctx, `SELECT`+sessionColumns+`
		FROM sessions s
		WHERE s.status = ?
		  AND s.starts_at IS NOT NULL AND s.ends_at IS NOT NULL
		  AND s.starts_at < ? AND s.ends_at > ?`,
		types.StatusPublished.String(), to.Unix(), from.Unix())
}

// FindPublishedOverlapping returns published sessions other than the
// candidate that share its location or trainer and whose [start, end)
// interval intersects the candidate's.
func (s *Store) FindPublishedOverlapping(ctx context.Context, candidate *workflow.Session) ([]workflow.Session, error) {
	return s.querySessions(ctx, `SELECT`+sessionColumns+`
		FROM sessions s
		WHERE s.status = ?
		  AND s.id != ?
		  AND s.starts_at IS NOT NULL AND s.ends_at IS NOT NULL
		  AND s.starts_at < ? AND s.ends_at > ?
		  AND ((? != '' AND s.location_id = ?) OR (? != '' AND s.trainer_id = ?))`,
		types.StatusPublished.String(), candidate.ID,
		candidate.EndsAt.Unix(), candidate.StartsAt.Unix(),
		candidate.LocationID, candidate.LocationID,
		candidate.TrainerID, candidate.TrainerID)
}

// WriteValidationCache persists the validator's outcome on the session
// row. The cache is a display optimization; it intentionally bypasses the
// version check so it never contends with transitions.
func (s *Store) WriteValidationCache(ctx context.Context, sessionID string, valid bool, messages []string, checkedAt time.Time) error {
	if messages == nil {
		messages = []string{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal validation messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET validation_valid = ?, validation_messages = ?, validation_checked_at = ?
		WHERE id = ?`,
		boolToInt(valid), string(encoded), checkedAt.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("write validation cache for %s: %w", sessionID, err)
	}
	return nil
}

// PersistReadiness stores the last computed readiness percentage for
// cheap display reads.
func (s *Store) PersistReadiness(ctx context.Context, sessionID string, percentage int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET readiness = ? WHERE id = ?`, percentage, sessionID)
	if err != nil {
		return fmt.Errorf("persist readiness for %s: %w", sessionID, err)
	}
	return nil
}

// AddRegistration records an attendee registration for a session.
func (s *Store) AddRegistration(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO registrations (id, session_id, created_at) VALUES (?, ?, ?)`,
		uuid.NewString(), sessionID, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("add registration for %s: %w", sessionID, err)
	}
	return nil
}

// AcceptContentVersion records an accepted content version of the given
// kind for a session.
func (s *Store) AcceptContentVersion(ctx context.Context, sessionID, kind string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO content_versions (id, session_id, kind, accepted, created_at) VALUES (?, ?, ?, 1, ?)`,
		uuid.NewString(), sessionID, kind, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("accept content version for %s: %w", sessionID, err)
	}
	return nil
}

// CreateIncentive inserts a new active incentive.
func (s *Store) CreateIncentive(ctx context.Context, inc *workflow.Incentive) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.Status == "" {
		inc.Status = types.IncentiveActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incentives (id, session_id, name, status, ends_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.SessionID, inc.Name, inc.Status.String(), inc.EndsAt.Unix(), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("create incentive: %w", err)
	}
	return nil
}

// ListExpiredIncentives returns active incentives past their end date.
func (s *Store) ListExpiredIncentives(ctx context.Context, now time.Time) ([]workflow.Incentive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, name, status, ends_at FROM incentives
		WHERE status = ? AND ends_at <= ?`,
		types.IncentiveActive.String(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("list expired incentives: %w", err)
	}
	defer rows.Close()

	var out []workflow.Incentive
	for rows.Next() {
		var inc workflow.Incentive
		var status string
		var endsAt int64
		if err := rows.Scan(&inc.ID, &inc.SessionID, &inc.Name, &status, &endsAt); err != nil {
			return nil, fmt.Errorf("scan incentive: %w", err)
		}
		inc.Status = types.IncentiveStatus(status)
		inc.EndsAt = time.Unix(endsAt, 0).UTC()
		out = append(out, inc)
	}
	return out, rows.Err()
}

// ExpireIncentive marks an active incentive expired.
func (s *Store) ExpireIncentive(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incentives SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		types.IncentiveExpired.String(), now.Unix(), id, types.IncentiveActive.String())
	if err != nil {
		return fmt.Errorf("expire incentive %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("expire incentive %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("incentive %s is not active", id)
	}
	return nil
}

// CountSessionsByStatus returns the number of sessions per status.
func (s *Store) CountSessionsByStatus(ctx context.Context) (map[types.SessionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count sessions by status: %w", err)
	}
	defer rows.Close()

	out := make(map[types.SessionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[types.SessionStatus(status)] = count
	}
	return out, rows.Err()
}

// ListStatusLogSince returns log entries created at or after the given
// instant, ordered by session then time.
func (s *Store) ListStatusLogSince(ctx context.Context, since time.Time) ([]workflow.StatusLogEntry, error) {
	return s.queryLog(ctx, `
		SELECT id, session_id, from_status, to_status, actor, automated, remark, readiness, snapshot, created_at
		FROM status_log WHERE created_at >= ?
		ORDER BY session_id, created_at`, since.Unix())
}

// ListStatusLogForSession returns a session's full audit trail, oldest
// first.
func (s *Store) ListStatusLogForSession(ctx context.Context, sessionID string) ([]workflow.StatusLogEntry, error) {
	return s.queryLog(ctx, `
		SELECT id, session_id, from_status, to_status, actor, automated, remark, readiness, snapshot, created_at
		FROM status_log WHERE session_id = ?
		ORDER BY created_at`, sessionID)
}

func (s *Store) queryLog(ctx context.Context, query string, args ...any) ([]workflow.StatusLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query status log: %w", err)
	}
	defer rows.Close()

	var out []workflow.StatusLogEntry
	for rows.Next() {
		var (
			e         workflow.StatusLogEntry
			from, to  string
			automated int
			snapshot  string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &from, &to, &e.Actor, &automated, &e.Remark, &e.Readiness, &snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("scan status log entry: %w", err)
		}
		e.From = types.SessionStatus(from)
		e.To = types.SessionStatus(to)
		e.Automated = automated != 0
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := json.Unmarshal([]byte(snapshot), &e.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal readiness snapshot: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]workflow.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []workflow.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *session)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*workflow.Session, error) {
	var (
		s                  workflow.Session
		status             string
		startsAt, endsAt   sql.NullInt64
		publishedAt        sql.NullInt64
		validationValid    int
		validationMessages string
		validationChecked  sql.NullInt64
		createdAt          int64
		updatedAt          int64
		contentKinds       sql.NullString
	)
	err := row.Scan(
		&s.ID, &status, &s.Title, &s.Objective, &s.Description,
		&startsAt, &endsAt,
		&s.LocationID, &s.TrainerID, &s.TopicID,
		&s.Headline, &s.Summary, &s.KeyBenefits, &s.CallToAction,
		&s.LandingPageURL, &s.RegistrationURL,
		&s.Readiness, &publishedAt,
		&validationValid, &validationMessages, &validationChecked,
		&s.Version, &createdAt, &updatedAt,
		&s.RegistrationCount, &contentKinds,
	)
	if err != nil {
		return nil, err
	}

	s.Status = types.SessionStatus(status)
	if startsAt.Valid {
		s.StartsAt = time.Unix(startsAt.Int64, 0).UTC()
	}
	if endsAt.Valid {
		s.EndsAt = time.Unix(endsAt.Int64, 0).UTC()
	}
	if publishedAt.Valid {
		ts := time.Unix(publishedAt.Int64, 0).UTC()
		s.PublishedAt = &ts
	}
	s.ValidationValid = validationValid != 0
	if err := json.Unmarshal([]byte(validationMessages), &s.ValidationMessages); err != nil {
		return nil, fmt.Errorf("unmarshal validation messages: %w", err)
	}
	if validationChecked.Valid {
		ts := time.Unix(validationChecked.Int64, 0).UTC()
		s.ValidationCheckedAt = &ts
	}
	if contentKinds.Valid && contentKinds.String != "" {
		s.AcceptedContentKinds = strings.Split(contentKinds.String, ",")
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func nullUnixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isBusy reports whether the error is a lock-contention failure that the
// caller may retry.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
