package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
)

// sessionRepo implements SessionRepo on SQLite. Status writes are guarded
// by feedback_status = 'pending' in the UPDATE itself.
type sessionRepo struct {
	db *sql.DB
}

const sessionColumns = `user_id, session_id, transcript, category, scenario_title, scenario_prompt,
	feedback_status, created_at, overall_score, clarity, confidence, engagement, relevance,
	summary, strengths, improvements, xp_earned, feedback_generated_by`

func (r *sessionRepo) Create(ctx context.Context, rec *session.Record) error {
	status := rec.FeedbackStatus
	if status == "" {
		status = session.StatusPending
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "create", Ref: rec.Ref, Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO sessions
		(user_id, session_id, transcript, category, scenario_title, scenario_prompt, feedback_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, session_id) DO NOTHING`,
		rec.UserID, rec.SessionID, rec.Transcript, rec.Category, rec.ScenarioTitle, rec.ScenarioPrompt,
		string(status), rec.CreatedAt.UnixMilli())
	if err != nil {
		return &Error{Op: "create", Ref: rec.Ref, Err: err}
	}
	if n, err := res.RowsAffected(); err != nil {
		return &Error{Op: "create", Ref: rec.Ref, Err: err}
	} else if n == 0 {
		return ErrAlreadyExists
	}

	if rec.Feedback != nil && status == session.StatusCompleted {
		if err := writeFeedback(ctx, tx, rec.Ref, *rec.Feedback, rec.FeedbackGeneratedBy); err != nil {
			return &Error{Op: "create", Ref: rec.Ref, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "create", Ref: rec.Ref, Err: err}
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, ref session.Ref) (*session.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+`
		FROM sessions WHERE user_id = ? AND session_id = ?`, ref.UserID, ref.SessionID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "get", Ref: ref, Err: err}
	}
	return rec, nil
}

func (r *sessionRepo) Complete(ctx context.Context, ref session.Ref, fb session.Feedback, generatedBy string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET
		feedback_status = ?, overall_score = ?, clarity = ?, confidence = ?, engagement = ?, relevance = ?,
		summary = ?, strengths = ?, improvements = ?, xp_earned = ?, feedback_generated_by = ?
		WHERE user_id = ? AND session_id = ? AND feedback_status = ?`,
		string(session.StatusCompleted), fb.OverallScore, fb.Clarity, fb.Confidence, fb.Engagement, fb.Relevance,
		fb.Summary, encodeList(fb.Strengths), encodeList(fb.Improvements), fb.XPEarned, generatedBy,
		ref.UserID, ref.SessionID, string(session.StatusPending))
	if err != nil {
		return &Error{Op: "complete", Ref: ref, Err: err}
	}
	return r.checkSwapped(ctx, "complete", ref, res)
}

func (r *sessionRepo) Fail(ctx context.Context, ref session.Ref) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET feedback_status = ?
		WHERE user_id = ? AND session_id = ? AND feedback_status = ?`,
		string(session.StatusFailed), ref.UserID, ref.SessionID, string(session.StatusPending))
	if err != nil {
		return &Error{Op: "fail", Ref: ref, Err: err}
	}
	return r.checkSwapped(ctx, "fail", ref, res)
}

func (r *sessionRepo) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*session.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM sessions WHERE feedback_status = ? AND created_at <= ?
		ORDER BY created_at ASC LIMIT ?`,
		string(session.StatusPending), cutoff.UnixMilli(), limit)
	if err != nil {
		return nil, &Error{Op: "list pending", Err: err}
	}
	defer rows.Close()

	var out []*session.Record
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, &Error{Op: "list pending", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list pending", Err: err}
	}
	return out, nil
}

// writeFeedback fills the feedback columns of a record Create is seeding
// as already completed.
func writeFeedback(ctx context.Context, tx *sql.Tx, ref session.Ref, fb session.Feedback, generatedBy string) error {
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET
		overall_score = ?, clarity = ?, confidence = ?, engagement = ?, relevance = ?,
		summary = ?, strengths = ?, improvements = ?, xp_earned = ?, feedback_generated_by = ?
		WHERE user_id = ? AND session_id = ?`,
		fb.OverallScore, fb.Clarity, fb.Confidence, fb.Engagement, fb.Relevance,
		fb.Summary, encodeList(fb.Strengths), encodeList(fb.Improvements), fb.XPEarned, generatedBy,
		ref.UserID, ref.SessionID)
	return err
}

// checkSwapped turns a zero-row CAS update into ErrNotFound or
// ErrNotPending.
func (r *sessionRepo) checkSwapped(ctx context.Context, op string, ref session.Ref, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &Error{Op: op, Ref: ref, Err: err}
	}
	if n > 0 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE user_id = ? AND session_id = ?`,
		ref.UserID, ref.SessionID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return &Error{Op: op, Ref: ref, Err: err}
	}
	return ErrNotPending
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*session.Record, error) {
	var (
		rec         session.Record
		status      string
		createdAt   int64
		overall     sql.NullFloat64
		clarity     sql.NullFloat64
		confidence  sql.NullFloat64
		engagement  sql.NullFloat64
		relevance   sql.NullFloat64
		xp          sql.NullFloat64
		summary     sql.NullString
		strengths   sql.NullString
		improvs     sql.NullString
		generatedBy sql.NullString
	)
	err := s.Scan(&rec.UserID, &rec.SessionID, &rec.Transcript, &rec.Category, &rec.ScenarioTitle, &rec.ScenarioPrompt,
		&status, &createdAt, &overall, &clarity, &confidence, &engagement, &relevance,
		&summary, &strengths, &improvs, &xp, &generatedBy)
	if err != nil {
		return nil, err
	}

	rec.FeedbackStatus = session.Status(status)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.FeedbackGeneratedBy = generatedBy.String

	if rec.FeedbackStatus == session.StatusCompleted && overall.Valid {
		fb := &session.Feedback{
			OverallScore: overall.Float64,
			Clarity:      clarity.Float64,
			Confidence:   confidence.Float64,
			Engagement:   engagement.Float64,
			Relevance:    relevance.Float64,
			Summary:      summary.String,
			XPEarned:     xp.Float64,
		}
		if fb.Strengths, err = decodeList(strengths); err != nil {
			return nil, fmt.Errorf("decode strengths: %w", err)
		}
		if fb.Improvements, err = decodeList(improvs); err != nil {
			return nil, fmt.Errorf("decode improvements: %w", err)
		}
		rec.Feedback = fb
	}
	return &rec, nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
