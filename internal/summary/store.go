package summary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/minutes/pkg/event"
	_ "modernc.org/sqlite"
)

const (
	// DefaultTitle はタイトル未指定時に使うタイトル。
	DefaultTitle = "Meeting Summary"
	// DefaultPrompt は指示文未指定時に使う指示文。
	DefaultPrompt = "Summarize the following meeting notes in a clear and structured format"
)

// timeLayout はDBに保存する日時の書式。
// 固定幅にすることで文字列比較の順序と時刻の順序を一致させる。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// ErrNotFound は対象が存在しない、または呼び出し元が所有していないことを表す。
	ErrNotFound = errors.New("summary not found")
	// ErrEmptyTranscript は議事録本文が空であることを表す。
	ErrEmptyTranscript = errors.New("transcript is required")
	// ErrEmptyPrompt は指示文が空であることを表す。
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrEmptyContent はサマリー本文が空であることを表す。
	ErrEmptyContent = errors.New("summary content is required")
	// ErrEmptyTitle はタイトルが空であることを表す。
	ErrEmptyTitle = errors.New("title is required")
)

// Summary は保存された議事録サマリー。
type Summary struct {
	// ID はサマリーの一意識別子（UUID v4）。
	ID string
	// OwnerID は所有者のユーザーID。
	OwnerID string
	// Title は表示用タイトル。
	Title string
	// Transcript は元の議事録本文。
	Transcript string
	// Prompt は生成に使った指示文。
	Prompt string
	// Content は現在のサマリー本文。
	Content string
	// OriginalSummary は初回生成時のサマリー本文。
	OriginalSummary string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// CreateParams はサマリー作成時の入力。
type CreateParams struct {
	OwnerID    string
	Title      string
	Transcript string
	Prompt     string
	Content    string
}

// Store はサマリーと監査イベントをSQLiteに保存する。
// すべての操作は所有者IDを必須引数に取り、SQLで絞り込む。
type Store struct {
	// db はSQLiteのデータベース接続。
	db *sql.DB
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// OpenStore はSQLiteに接続し、マイグレーションを適用したStoreを返す。
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	memory := strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	if !memory {
		dsn = withImmediateTxLock(dsn)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// インメモリDBは接続ごとに別のDBになるため1本に固定する
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return NewStore(db), nil
}

// NewStore は既存のデータベース接続からStoreを生成する。
// スキーマは適用済みである必要がある。
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create はサマリーを保存し、SummaryGeneratedイベントを同じトランザクションで記録する。
// タイトルと指示文は未指定なら既定値を使う。Content と OriginalSummary は同じ値になる。
func (s *Store) Create(ctx context.Context, p CreateParams) (*Summary, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = DefaultTitle
	}
	prompt := p.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	switch {
	case strings.TrimSpace(p.Transcript) == "":
		return nil, ErrEmptyTranscript
	case strings.TrimSpace(prompt) == "":
		return nil, ErrEmptyPrompt
	case strings.TrimSpace(p.Content) == "":
		return nil, ErrEmptyContent
	}

	now := s.now()
	sm := &Summary{
		ID:              uuid.New().String(),
		OwnerID:         p.OwnerID,
		Title:           title,
		Transcript:      p.Transcript,
		Prompt:          prompt,
		Content:         p.Content,
		OriginalSummary: p.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO summaries (id, owner_id, title, transcript, prompt, content, original_summary, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sm.ID, sm.OwnerID, sm.Title, sm.Transcript, sm.Prompt, sm.Content, sm.OriginalSummary,
			formatTime(sm.CreatedAt), formatTime(sm.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("サマリーの挿入に失敗: %w", err)
		}
		return s.appendEvent(ctx, tx, sm.OwnerID, sm.ID, event.TypeSummaryGenerated, event.SummaryGeneratedData{
			Title:            sm.Title,
			TranscriptLength: len([]rune(sm.Transcript)),
		})
	})
	if err != nil {
		return nil, err
	}
	return sm, nil
}

// ListByOwner は所有者のサマリーを新しい順に返す。作成日時が同じ場合はID順。
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, transcript, prompt, content, original_summary, created_at, updated_at
		FROM summaries
		WHERE owner_id = ?
		ORDER BY created_at DESC, id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("サマリー一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]Summary, 0)
	for rows.Next() {
		sm, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("サマリー一覧の読み込みに失敗: %w", err)
	}
	return summaries, nil
}

// GetByID は所有者のサマリーを1件返す。存在しない場合と他人のサマリーの場合は ErrNotFound。
func (s *Store) GetByID(ctx context.Context, ownerID, id string) (*Summary, error) {
	return getByID(ctx, s.db, ownerID, id)
}

// UpdateTitle はタイトルを変更し、更新後のサマリーを返す。
// タイトルは前後の空白を除去して保存する。
func (s *Store) UpdateTitle(ctx context.Context, ownerID, id, title string) (*Summary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	var updated *Summary
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getByID(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE summaries SET title = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
			title, formatTime(now), id, ownerID,
		); err != nil {
			return fmt.Errorf("タイトルの更新に失敗: %w", err)
		}

		if err := s.appendEvent(ctx, tx, ownerID, id, event.TypeSummaryTitleUpdated, event.SummaryTitleUpdatedData{
			OldTitle: current.Title,
			NewTitle: title,
		}); err != nil {
			return err
		}

		current.Title = title
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID は所有者のサマリーを削除し、SummaryDeletedイベントを記録する。
// 削除対象がない場合は ErrNotFound。
func (s *Store) DeleteByID(ctx context.Context, ownerID, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getByID(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE id = ? AND owner_id = ?`, id, ownerID)
		if err != nil {
			return fmt.Errorf("サマリーの削除に失敗: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("削除件数の取得に失敗: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}

		return s.appendEvent(ctx, tx, ownerID, id, event.TypeSummaryDeleted, event.SummaryDeletedData{
			Title: current.Title,
		})
	})
}

// RecordEvent はサマリーに対する監査イベントを単独で記録する。
func (s *Store) RecordEvent(ctx context.Context, ownerID, summaryID string, eventType event.Type, data any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.appendEvent(ctx, tx, ownerID, summaryID, eventType, data)
	})
}

// ListEvents は所有者が記録したサマリーの監査イベントをバージョン順に返す。
func (s *Store) ListEvents(ctx context.Context, ownerID, summaryID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, owner_id, event_type, data, version, created_at
		FROM summary_events
		WHERE owner_id = ? AND aggregate_id = ?
		ORDER BY version ASC`, ownerID, summaryID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]event.Event, 0)
	for rows.Next() {
		var (
			ev        event.Event
			data      string
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.AggregateType, &ev.OwnerID, &ev.EventType, &data, &ev.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("イベントの読み込みに失敗: %w", err)
		}
		ev.Data = json.RawMessage(data)
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベントの読み込みに失敗: %w", err)
	}
	return events, nil
}

// appendEvent はサマリー単位で連番のバージョンを付けてイベントを追記する。
func (s *Store) appendEvent(ctx context.Context, tx *sql.Tx, ownerID, summaryID string, eventType event.Type, data any) error {
	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM summary_events WHERE aggregate_id = ?`, summaryID,
	).Scan(&version); err != nil {
		return fmt.Errorf("イベントバージョンの取得に失敗: %w", err)
	}

	ev, err := event.New(summaryID, ownerID, eventType, version, data)
	if err != nil {
		return err
	}
	ev.CreatedAt = s.now()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summary_events (id, aggregate_id, aggregate_type, owner_id, event_type, data, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AggregateID, string(ev.AggregateType), ev.OwnerID, string(ev.EventType), string(ev.Data), ev.Version, formatTime(ev.CreatedAt),
	); err != nil {
		return fmt.Errorf("イベントの挿入に失敗: %w", err)
	}
	return nil
}

// withImmediateTxLock はDSNに _txlock=immediate を付与し、トランザクション開始時に書き込みロックを取得させる。
// _txlock の指定が既にあればそのまま返す。
func withImmediateTxLock(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_txlock=immediate"
	}
	return dsn + "?_txlock=immediate"
}

// withTx はトランザクション内で fn を実行する。fn がエラーを返した場合はロールバックする。
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// queryRower は *sql.DB と *sql.Tx の共通部分。
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getByID(ctx context.Context, q queryRower, ownerID, id string) (*Summary, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, owner_id, title, transcript, prompt, content, original_summary, created_at, updated_at
		FROM summaries
		WHERE id = ? AND owner_id = ?`, id, ownerID)
	sm, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sm, nil
}

// scanner は *sql.Row と *sql.Rows の共通部分。
type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner) (*Summary, error) {
	var (
		sm                   Summary
		createdAt, updatedAt string
	)
	err := sc.Scan(&sm.ID, &sm.OwnerID, &sm.Title, &sm.Transcript, &sm.Prompt, &sm.Content, &sm.OriginalSummary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("サマリーの読み込みに失敗: %w", err)
	}
	if sm.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sm.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sm, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時の解析に失敗 %q: %w", s, err)
	}
	return t, nil
}
