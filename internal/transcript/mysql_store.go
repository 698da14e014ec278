package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// MySQLStore 使用 MySQL 持久化对话记录。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建连接池并初始化数据表。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS transcript_entries (
        seq BIGINT AUTO_INCREMENT PRIMARY KEY,
        entry_id VARCHAR(36) NOT NULL UNIQUE,
        saga_id VARCHAR(64) NOT NULL,
        role VARCHAR(16) NOT NULL,
        content TEXT NOT NULL,
        pending_action_ref VARCHAR(36) DEFAULT NULL,
        action_payload TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_saga_id (saga_id),
        INDEX idx_pending_ref (pending_action_ref)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化 transcript_entries 表失败: %w", err)
	}
	return nil
}

// Append 将一条记录写入 MySQL。单条 INSERT 即为原子追加。
func (s *MySQLStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "entry 不能为空")
	}
	if entry.SagaID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now()
	}

	var ref sql.NullString
	if entry.PendingActionRef != "" {
		ref = sql.NullString{String: entry.PendingActionRef, Valid: true}
	}

	const stmt = `INSERT INTO transcript_entries
        (entry_id, saga_id, role, content, pending_action_ref, action_payload, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		entry.ID,
		entry.SagaID,
		string(entry.Role),
		entry.Content,
		ref,
		entry.ActionPayload,
		entry.CreatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入对话记录失败")
	}
	return nil
}

// List 按追加顺序返回会话的全部记录。
func (s *MySQLStore) List(ctx context.Context, sagaID string) ([]Entry, error) {
	const query = `SELECT entry_id, saga_id, role, content, pending_action_ref, action_payload, created_at
        FROM transcript_entries WHERE saga_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sagaID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历对话记录失败")
	}
	return entries, nil
}

// FindPendingAction 查找仍待确认的操作。
func (s *MySQLStore) FindPendingAction(ctx context.Context, ref string) (*Entry, error) {
	const query = `SELECT entry_id, saga_id, role, content, pending_action_ref, action_payload, created_at
        FROM transcript_entries WHERE pending_action_ref = ? LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, ref)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ClearPendingAction 在单个事务内读取并清除待确认引用。
func (s *MySQLStore) ClearPendingAction(ctx context.Context, ref string) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer tx.Rollback()

	const query = `SELECT entry_id, saga_id, role, content, pending_action_ref, action_payload, created_at
        FROM transcript_entries WHERE pending_action_ref = ? LIMIT 1 FOR UPDATE`

	row := tx.QueryRowContext(ctx, query, ref)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transcript_entries SET pending_action_ref = NULL WHERE entry_id = ?`,
		entry.ID,
	); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "清除待确认引用失败")
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return &entry, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var entry Entry
	var role string
	var ref sql.NullString
	var payload sql.NullString
	if err := row.Scan(&entry.ID, &entry.SagaID, &role, &entry.Content, &ref, &payload, &entry.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话记录失败")
	}
	entry.Role = Role(role)
	if ref.Valid {
		entry.PendingActionRef = ref.String
	}
	if payload.Valid {
		entry.ActionPayload = payload.String
	}
	return entry, nil
}

// ensure interface compliance at compile time
var _ Store = (*MySQLStore)(nil)
