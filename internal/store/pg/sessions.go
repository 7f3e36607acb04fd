package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"vendara.org/internal/session"
)

func (s *Store) GetSession(ctx context.Context, key string) (*session.Session, error) {
	var (
		sess   session.Session
		rawCtx []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select session_key, current_context, last_activity_at
		from sessions
		where session_key = $1
	`, key).Scan(&sess.Key, &rawCtx, &sess.LastActivityAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &sess.Context); err != nil {
			return nil, fmt.Errorf("decode session context: %w", err)
		}
	}
	return &sess, nil
}

// SetSession upserts so the resolver's context-default write stays
// last-write-wins under concurrent first requests.
func (s *Store) SetSession(ctx context.Context, key string, sctx session.Context) error {
	raw, err := json.Marshal(sctx)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into sessions (session_key, current_context, last_activity_at)
		values ($1, $2, now())
		on conflict (session_key) do update
		set current_context = excluded.current_context, last_activity_at = now()
	`, key, raw)
	return err
}
