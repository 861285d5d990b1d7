package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "autopost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store at cfg.Path, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log.IsZero() {
		log = logx.Nop()
	}
	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	// channel_id references are enforced here, not re-validated by readers.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertChannel(ctx context.Context, ch Channel) error {
	// Duplicate registration is a no-op, not an error.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels(id, display_name) VALUES(?,?)
		 ON CONFLICT(id) DO NOTHING`,
		ch.ID, ch.DisplayName,
	)
	return err
}

func (s *sqliteStore) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name FROM channels ORDER BY display_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetChannel(ctx context.Context, id int64) (Channel, bool, error) {
	var ch Channel
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name FROM channels WHERE id = ?`, id).
		Scan(&ch.ID, &ch.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return Channel{}, false, nil
	}
	if err != nil {
		return Channel{}, false, err
	}
	return ch, true, nil
}

func (s *sqliteStore) InsertPost(ctx context.Context, p Post) (int64, error) {
	if !ValidTimeOfDay(p.TimeOfDay) {
		return 0, ErrBadTimeOfDay
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(channel_id, image_ref, caption, time_of_day, repeat_daily)
		 VALUES(?,?,?,?,?)`,
		p.ChannelID, p.ImageRef, p.Caption, p.TimeOfDay, boolInt(p.RepeatDaily),
	)
	if err != nil {
		if isFKViolation(err) {
			return 0, ErrUnknownChannel
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListPosts(ctx context.Context, channelID int64) ([]Post, error) {
	q := `SELECT id, channel_id, image_ref, caption, time_of_day, repeat_daily
	      FROM posts`
	args := []any{}
	if channelID != 0 {
		q += ` WHERE channel_id = ?`
		args = append(args, channelID)
	}
	q += ` ORDER BY time_of_day, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (s *sqliteStore) ListDuePosts(ctx context.Context, hhmm string) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, image_ref, caption, time_of_day, repeat_daily
		 FROM posts WHERE time_of_day = ? AND repeat_daily = 1 ORDER BY id`,
		hhmm,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (s *sqliteStore) GetPost(ctx context.Context, id int64) (Post, bool, error) {
	var p Post
	var repeat int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, image_ref, caption, time_of_day, repeat_daily
		 FROM posts WHERE id = ?`, id).
		Scan(&p.ID, &p.ChannelID, &p.ImageRef, &p.Caption, &p.TimeOfDay, &repeat)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, false, nil
	}
	if err != nil {
		return Post{}, false, err
	}
	p.RepeatDaily = repeat != 0
	return p, true, nil
}

func (s *sqliteStore) UpdatePostTime(ctx context.Context, id int64, hhmm string) error {
	if !ValidTimeOfDay(hhmm) {
		return ErrBadTimeOfDay
	}
	return s.updateOne(ctx, `UPDATE posts SET time_of_day = ? WHERE id = ?`, hhmm, id)
}

func (s *sqliteStore) UpdatePostCaption(ctx context.Context, id int64, caption string) error {
	return s.updateOne(ctx, `UPDATE posts SET caption = ? WHERE id = ?`, caption, id)
}

func (s *sqliteStore) DeletePost(ctx context.Context, id int64) error {
	// Deletion is immediate; the next dispatcher tick will not see the row.
	return s.updateOne(ctx, `DELETE FROM posts WHERE id = ?`, id)
}

func (s *sqliteStore) updateOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPosts(rows *sql.Rows) ([]Post, error) {
	var out []Post
	for rows.Next() {
		var p Post
		var repeat int
		if err := rows.Scan(&p.ID, &p.ChannelID, &p.ImageRef, &p.Caption, &p.TimeOfDay, &repeat); err != nil {
			return nil, err
		}
		p.RepeatDaily = repeat != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isFKViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "FOREIGN KEY")
}
