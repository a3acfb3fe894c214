package record

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"GuildForge-Chain/deploy/migrations"
	xerrors "GuildForge-Chain/internal/errors"
)

// mysqlDuplicateEntry 是 MySQL 唯一键冲突的错误码。
const mysqlDuplicateEntry = 1062

// SQLStore 使用 MySQL 持久化部署记录。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 创建连接池并执行内嵌迁移。
func NewSQLStore(dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &SQLStore{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) migrate() error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件失败")
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		content, err := migrations.Files.ReadFile(name)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件失败")
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移失败",
				xerrors.WithMetadata("migration", name))
		}
	}
	return nil
}

// Save 将部署记录写入 MySQL。ID 冲突映射为统一的冲突错误。
func (s *SQLStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录或记录 ID 不能为空")
	}
	const stmt = `INSERT INTO deployments
        (id, summoner, moloch, distribution_token, minion, transmuter, trust,
         total_distributed, unlock_at, block_height, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		rec.ID,
		rec.Summoner,
		rec.Moloch,
		rec.DistributionToken,
		rec.Minion,
		rec.Transmuter,
		rec.Trust,
		rec.TotalDistributed,
		rec.UnlockAt,
		rec.BlockHeight,
		rec.CreatedAt,
	); err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrRecordConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入部署记录失败")
	}
	return nil
}

// Get 查询指定记录。
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	const query = `SELECT id, summoner, moloch, distribution_token, minion, transmuter, trust,
        total_distributed, unlock_at, block_height, created_at
        FROM deployments WHERE id = ?`

	rec := &Record{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Summoner, &rec.Moloch, &rec.DistributionToken,
		&rec.Minion, &rec.Transmuter, &rec.Trust,
		&rec.TotalDistributed, &rec.UnlockAt, &rec.BlockHeight, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询部署记录失败")
	}
	return rec, nil
}

// List 查询最近的部署记录。
func (s *SQLStore) List(ctx context.Context, limit int) ([]*Record, error) {
	const query = `SELECT id, summoner, moloch, distribution_token, minion, transmuter, trust,
        total_distributed, unlock_at, block_height, created_at
        FROM deployments ORDER BY created_at DESC, id LIMIT ?`
	return s.queryRecords(ctx, query, normalizeLimit(limit))
}

// ListByMoloch 查询指定组织名下的部署记录。
func (s *SQLStore) ListByMoloch(ctx context.Context, moloch string, limit int) ([]*Record, error) {
	const query = `SELECT id, summoner, moloch, distribution_token, minion, transmuter, trust,
        total_distributed, unlock_at, block_height, created_at
        FROM deployments WHERE moloch = ? ORDER BY created_at DESC, id LIMIT ?`
	return s.queryRecords(ctx, query, moloch, normalizeLimit(limit))
}

func (s *SQLStore) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询部署记录失败")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(
			&rec.ID, &rec.Summoner, &rec.Moloch, &rec.DistributionToken,
			&rec.Minion, &rec.Transmuter, &rec.Trust,
			&rec.TotalDistributed, &rec.UnlockAt, &rec.BlockHeight, &rec.CreatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析部署记录失败")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历部署记录失败")
	}
	return records, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// Close 关闭底层数据库连接。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
