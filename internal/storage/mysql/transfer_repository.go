package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	xerrors "OpenMCP-EVM/internal/errors"
	"OpenMCP-EVM/internal/journal"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const transferColumns = `id, from_address, to_address, amount_eth, simulate, fork_block, state, tx_hash, gas_used, receipt_status, error_code, error_message, stage, created_at, updated_at`

// duplicate entry
const errDuplicateKey = 1062

// TransferRepository 使用 MySQL 保存转账流水。
type TransferRepository struct {
	db *sql.DB
}

var _ journal.Store = (*TransferRepository)(nil)

// NewTransferRepository 建立连接池并执行迁移。
func NewTransferRepository(ctx context.Context, cfg Config) (*TransferRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 MySQL 失败")
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return &TransferRepository{db: db}, nil
}

// Create 插入新的 pending 流水。
func (r *TransferRepository) Create(ctx context.Context, entry *journal.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	now := time.Now().Unix()
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.State == "" {
		entry.State = journal.StatePending
	}

	const stmt = `INSERT INTO transfers
        (id, from_address, to_address, amount_eth, simulate, fork_block, state, tx_hash, error_message, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err := r.db.ExecContext(ctx, stmt,
		entry.ID,
		entry.From,
		entry.To,
		entry.AmountEth,
		entry.Simulate,
		entry.ForkBlock,
		string(entry.State),
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysqldriver.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateKey {
			return journal.ErrConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入转账流水失败")
	}
	return nil
}

// Get 查询单条流水。
func (r *TransferRepository) Get(ctx context.Context, id string) (*journal.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transferColumns+`
    FROM transfers WHERE id = ?`, id)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账流水失败")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账流水失败")
		}
		return nil, journal.ErrNotFound
	}
	return scanEntry(rows)
}

// Complete 将 pending 流水更新为成功终态。
func (r *TransferRepository) Complete(ctx context.Context, id string, outcome journal.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	const stmt = `UPDATE transfers SET state = ?, tx_hash = ?, gas_used = ?, receipt_status = ?, updated_at = ?
    WHERE id = ? AND state = 'pending'`

	res, err := r.db.ExecContext(ctx, stmt,
		string(outcome.State),
		outcome.TxHash,
		outcome.GasUsed,
		outcome.Status,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新转账流水失败")
	}
	return r.checkTransition(ctx, id, res)
}

// Fail 将 pending 流水标记为失败。
func (r *TransferRepository) Fail(ctx context.Context, id string, failure journal.Failure) error {
	const stmt = `UPDATE transfers SET state = 'failed', error_code = ?, error_message = ?, stage = ?, updated_at = ?
    WHERE id = ? AND state = 'pending'`

	res, err := r.db.ExecContext(ctx, stmt,
		string(failure.Code),
		failure.Message,
		failure.Stage,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新转账流水失败")
	}
	return r.checkTransition(ctx, id, res)
}

// checkTransition distinguishes a missing row from one already finalized when
// a conditional update touched nothing.
func (r *TransferRepository) checkTransition(ctx context.Context, id string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取影响行数失败")
	}
	if affected > 0 {
		return nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT state FROM transfers WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账流水失败")
	}
	defer rows.Close()
	if !rows.Next() {
		return journal.ErrNotFound
	}
	return journal.ErrFinalized
}

// List 按过滤条件分页查询流水。
func (r *TransferRepository) List(ctx context.Context, opts journal.ListOptions) ([]*journal.Entry, error) {
	opts = opts.Normalize()

	var (
		clauses []string
		args    []any
	)
	if len(opts.States) > 0 {
		placeholders := make([]string, len(opts.States))
		for i, state := range opts.States {
			placeholders[i] = "?"
			args = append(args, string(state))
		}
		clauses = append(clauses, "state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.From != "" {
		clauses = append(clauses, "from_address = ?")
		args = append(args, opts.From)
	}

	query := `SELECT ` + transferColumns + ` FROM transfers`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	if opts.Order == journal.SortByCreatedAsc {
		query += ` ORDER BY seq ASC`
	} else {
		query += ` ORDER BY seq DESC`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账流水失败")
	}
	defer rows.Close()

	entries := make([]*journal.Entry, 0, opts.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历转账流水失败")
	}
	return entries, nil
}

// Close 关闭底层数据库连接。
func (r *TransferRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func scanEntry(rows *sql.Rows) (*journal.Entry, error) {
	var (
		entry     journal.Entry
		state     string
		forkBlock sql.NullInt64
		gasUsed   sql.NullInt64
		status    sql.NullBool
	)
	if err := rows.Scan(
		&entry.ID,
		&entry.From,
		&entry.To,
		&entry.AmountEth,
		&entry.Simulate,
		&forkBlock,
		&state,
		&entry.TxHash,
		&gasUsed,
		&status,
		&entry.ErrorCode,
		&entry.Error,
		&entry.Stage,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析转账流水失败")
	}
	entry.State = journal.State(state)
	if forkBlock.Valid {
		v := uint64(forkBlock.Int64)
		entry.ForkBlock = &v
	}
	if gasUsed.Valid {
		v := uint64(gasUsed.Int64)
		entry.GasUsed = &v
	}
	if status.Valid {
		v := status.Bool
		entry.Status = &v
	}
	return &entry, nil
}
