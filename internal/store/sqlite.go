package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/atmx/binary-exchange/internal/ledger"
	"github.com/atmx/binary-exchange/internal/model"
)

// Compile-time interface checks.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*CachedStore)(nil)
)

// SQLiteStore implements Store on a single SQLite file. Decimals are kept
// as TEXT columns so no value ever passes through a float. Transactions are
// opened with BEGIN IMMEDIATE, so settlement holds the write lock from its
// first read.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// sqliteTime is fixed width so timestamps order lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// OpenSQLite creates (if needed) and opens the database at path, then
// applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; readers would only contend for the same file lock.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{path: path, db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the path backing the store.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the DB.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS markets (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	resolution TEXT NOT NULL DEFAULT '',
	yes_price TEXT NOT NULL,
	no_price TEXT NOT NULL,
	volume TEXT NOT NULL,
	liquidity TEXT NOT NULL,
	trading_fee TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_balances (
	user_id TEXT PRIMARY KEY,
	balance TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	user_id TEXT NOT NULL,
	market_id TEXT NOT NULL REFERENCES markets(id),
	outcome TEXT NOT NULL,
	shares TEXT NOT NULL,
	avg_price TEXT NOT NULL,
	total_cost TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, market_id, outcome)
);
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	market_id TEXT NOT NULL REFERENCES markets(id),
	type TEXT NOT NULL,
	side TEXT NOT NULL,
	outcome TEXT NOT NULL,
	amount TEXT NOT NULL,
	limit_price TEXT,
	min_price TEXT,
	max_price TEXT,
	max_slippage TEXT,
	shares TEXT NOT NULL,
	avg_fill_price TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at);
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE REFERENCES orders(id),
	market_id TEXT NOT NULL REFERENCES markets(id),
	outcome TEXT NOT NULL,
	side TEXT NOT NULL,
	shares TEXT NOT NULL,
	price TEXT NOT NULL,
	amount TEXT NOT NULL,
	buyer_id TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_market ON trades (market_id, created_at);
CREATE TABLE IF NOT EXISTS collected_fees (
	id TEXT PRIMARY KEY,
	trade_id TEXT NOT NULL REFERENCES trades(id),
	market_id TEXT NOT NULL REFERENCES markets(id),
	user_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	rate TEXT NOT NULL,
	original_amount TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Migrate creates the ledger tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// sqlRow is satisfied by *sql.Row and *sql.Rows.
type sqlRow interface {
	Scan(dest ...any) error
}

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

// fields collects parse errors while decoding one row.
type fields struct{ err error }

func (f *fields) dec(s, name string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("parse %s: %w", name, err)
	}
	return d
}

func (f *fields) nullDec(s sql.NullString, name string) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(f.dec(s.String, name))
}

func (f *fields) ts(s, name string) time.Time {
	t, err := time.Parse(sqliteTime, s)
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("parse %s: %w", name, err)
	}
	return t
}

func nullText(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

const sqliteMarketColumns = `id, question, category, status, resolution, yes_price, no_price,
	volume, liquidity, trading_fee, version, created_at, updated_at`

func sqliteMarket(row sqlRow) (*model.Market, error) {
	var m model.Market
	var status, resolution, yes, no, volume, liquidity, tradingFee, created, updated string
	if err := row.Scan(&m.ID, &m.Question, &m.Category, &status, &resolution, &yes, &no,
		&volume, &liquidity, &tradingFee, &m.Version, &created, &updated); err != nil {
		return nil, err
	}
	var f fields
	m.Status = model.MarketStatus(status)
	m.Resolution = model.Outcome(resolution)
	m.YesPrice = f.dec(yes, "yes_price")
	m.NoPrice = f.dec(no, "no_price")
	m.Volume = f.dec(volume, "volume")
	m.Liquidity = f.dec(liquidity, "liquidity")
	m.TradingFee = f.dec(tradingFee, "trading_fee")
	m.CreatedAt = f.ts(created, "created_at")
	m.UpdatedAt = f.ts(updated, "updated_at")
	return &m, f.err
}

func (s *SQLiteStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markets (`+sqliteMarketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Question, m.Category, string(m.Status), string(m.Resolution),
		m.YesPrice.String(), m.NoPrice.String(), m.Volume.String(), m.Liquidity.String(),
		m.TradingFee.String(), m.Version, fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("market %s: %w", m.ID, ErrAlreadyExists)
	}
	return err
}

func (s *SQLiteStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := sqliteMarket(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteMarketColumns+` FROM markets WHERE id = ?`, id))
	if err != nil {
		return nil, sqlNotFound(err, "market "+id)
	}
	return m, nil
}

func (s *SQLiteStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteMarketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := sqliteMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *SQLiteStore) SetMarketStatus(ctx context.Context, id string, status model.MarketStatus, resolution model.Outcome) (*model.Market, error) {
	var out *model.Market
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := sqliteMarket(tx.QueryRowContext(ctx,
			`SELECT `+sqliteMarketColumns+` FROM markets WHERE id = ?`, id))
		if err != nil {
			return sqlNotFound(err, "market "+id)
		}
		if err := checkTransition(m.Status, status); err != nil {
			return err
		}
		m.Status = status
		m.Resolution = resolution
		m.Version++
		m.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE markets SET status = ?, resolution = ?, version = ?, updated_at = ? WHERE id = ?`,
			string(status), string(resolution), m.Version, fmtTime(m.UpdatedAt), id); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func sqliteBalance(row sqlRow) (*model.UserBalance, error) {
	var b model.UserBalance
	var balance, updated string
	if err := row.Scan(&b.UserID, &balance, &updated); err != nil {
		return nil, err
	}
	var f fields
	b.Balance = f.dec(balance, "balance")
	b.UpdatedAt = f.ts(updated, "updated_at")
	return &b, f.err
}

func getSQLiteBalance(ctx context.Context, db sqlExecer, userID string) (*model.UserBalance, error) {
	b, err := sqliteBalance(db.QueryRowContext(ctx,
		`SELECT user_id, balance, updated_at FROM user_balances WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return &model.UserBalance{UserID: userID, Balance: decimal.Zero}, nil
	}
	return b, err
}

func putSQLiteBalance(ctx context.Context, db sqlExecer, b *model.UserBalance) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_balances (user_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		b.UserID, b.Balance.String(), fmtTime(b.UpdatedAt))
	return err
}

func (s *SQLiteStore) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	return getSQLiteBalance(ctx, s.db, userID)
}

// CreditBalance reads and rewrites the balance inside one transaction; the
// addition happens in decimal, not in SQL arithmetic on TEXT.
func (s *SQLiteStore) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (*model.UserBalance, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	var out *model.UserBalance
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getSQLiteBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		b.Balance = b.Balance.Add(amount)
		b.UpdatedAt = time.Now().UTC()
		if err := putSQLiteBalance(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

const sqlitePositionColumns = `user_id, market_id, outcome, shares, avg_price, total_cost, updated_at`

func sqlitePosition(row sqlRow) (*model.Position, error) {
	var p model.Position
	var outcome, shares, avg, cost, updated string
	if err := row.Scan(&p.UserID, &p.MarketID, &outcome, &shares, &avg, &cost, &updated); err != nil {
		return nil, err
	}
	var f fields
	p.Outcome = model.Outcome(outcome)
	p.Shares = f.dec(shares, "shares")
	p.AvgPrice = f.dec(avg, "avg_price")
	p.TotalCost = f.dec(cost, "total_cost")
	p.UpdatedAt = f.ts(updated, "updated_at")
	return &p, f.err
}

func (s *SQLiteStore) GetPosition(ctx context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error) {
	p, err := sqlitePosition(s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePositionColumns+` FROM positions WHERE user_id = ? AND market_id = ? AND outcome = ?`,
		userID, marketID, string(outcome)))
	if err != nil {
		return nil, sqlNotFound(err, "position")
	}
	return p, nil
}

func (s *SQLiteStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePositionColumns+` FROM positions WHERE user_id = ? ORDER BY market_id, outcome DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := sqlitePosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

const sqliteOrderColumns = `id, user_id, market_id, type, side, outcome, amount,
	limit_price, min_price, max_price, max_slippage, shares, avg_fill_price, status, created_at, updated_at`

func sqliteOrder(row sqlRow) (*model.Order, error) {
	var o model.Order
	var typ, side, outcome, amount, shares, avgFill, status, created, updated string
	var limit, minP, maxP, slip sql.NullString
	if err := row.Scan(&o.ID, &o.UserID, &o.MarketID, &typ, &side, &outcome, &amount,
		&limit, &minP, &maxP, &slip, &shares, &avgFill, &status, &created, &updated); err != nil {
		return nil, err
	}
	var f fields
	o.Type = model.OrderType(typ)
	o.Side = model.Side(side)
	o.Outcome = model.Outcome(outcome)
	o.Status = model.OrderStatus(status)
	o.Amount = f.dec(amount, "amount")
	o.LimitPrice = f.nullDec(limit, "limit_price")
	o.MinPrice = f.nullDec(minP, "min_price")
	o.MaxPrice = f.nullDec(maxP, "max_price")
	o.MaxSlippage = f.nullDec(slip, "max_slippage")
	o.Shares = f.dec(shares, "shares")
	o.AvgFillPrice = f.dec(avgFill, "avg_fill_price")
	o.CreatedAt = f.ts(created, "created_at")
	o.UpdatedAt = f.ts(updated, "updated_at")
	return &o, f.err
}

func putSQLiteOrder(ctx context.Context, db sqlExecer, o *model.Order) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO orders (`+sqliteOrderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   shares = excluded.shares,
		   avg_fill_price = excluded.avg_fill_price,
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		o.ID, o.UserID, o.MarketID, string(o.Type), string(o.Side), string(o.Outcome), o.Amount.String(),
		nullText(o.LimitPrice), nullText(o.MinPrice), nullText(o.MaxPrice), nullText(o.MaxSlippage),
		o.Shares.String(), o.AvgFillPrice.String(), string(o.Status),
		fmtTime(o.CreatedAt), fmtTime(o.UpdatedAt))
	return err
}

func (s *SQLiteStore) SaveOrder(ctx context.Context, o *model.Order) error {
	return putSQLiteOrder(ctx, s.db, o)
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := sqliteOrder(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteOrderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return nil, sqlNotFound(err, "order "+id)
	}
	return o, nil
}

func (s *SQLiteStore) ListOrders(ctx context.Context, userID string, status model.OrderStatus) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteOrderColumns+` FROM orders
		 WHERE user_id = ? AND (? = '' OR status = ?)
		 ORDER BY created_at DESC`, userID, string(status), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := sqliteOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) CancelOrder(ctx context.Context, id, userID string, at time.Time) (*model.Order, error) {
	var out *model.Order
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		o, err := sqliteOrder(tx.QueryRowContext(ctx,
			`SELECT `+sqliteOrderColumns+` FROM orders WHERE id = ? AND user_id = ?`, id, userID))
		if err != nil {
			return sqlNotFound(err, "order "+id)
		}
		if o.Status != model.OrderPending {
			return ErrOrderNotPending
		}
		o.Status = model.OrderCancelled
		o.UpdatedAt = at
		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
			string(o.Status), fmtTime(at), id); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ExpireOrders(ctx context.Context, cutoff, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		string(model.OrderExpired), fmtTime(at), string(model.OrderPending), fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, marketID string) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, market_id, outcome, side, shares, price, amount, buyer_id, seller_id, created_at
		 FROM trades WHERE market_id = ? ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var outcome, side, shares, price, amount, created string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.MarketID, &outcome, &side,
			&shares, &price, &amount, &t.BuyerID, &t.SellerID, &created); err != nil {
			return nil, err
		}
		var f fields
		t.Outcome = model.Outcome(outcome)
		t.Side = model.Side(side)
		t.Shares = f.dec(shares, "shares")
		t.Price = f.dec(price, "price")
		t.Amount = f.dec(amount, "amount")
		t.CreatedAt = f.ts(created, "created_at")
		if f.err != nil {
			return nil, f.err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) ListFees(ctx context.Context, marketID string) ([]model.CollectedFee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trade_id, market_id, user_id, amount, rate, original_amount, created_at
		 FROM collected_fees WHERE market_id = ? ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fees []model.CollectedFee
	for rows.Next() {
		var fr model.CollectedFee
		var amount, rate, original, created string
		if err := rows.Scan(&fr.ID, &fr.TradeID, &fr.MarketID, &fr.UserID,
			&amount, &rate, &original, &created); err != nil {
			return nil, err
		}
		var f fields
		fr.Amount = f.dec(amount, "amount")
		fr.Rate = f.dec(rate, "rate")
		fr.OriginalAmount = f.dec(original, "original_amount")
		fr.CreatedAt = f.ts(created, "created_at")
		if f.err != nil {
			return nil, f.err
		}
		fees = append(fees, fr)
	}
	return fees, rows.Err()
}

// Settle reads every affected row inside an immediate transaction, applies
// the execution and writes the result before committing.
func (s *SQLiteStore) Settle(ctx context.Context, e ledger.Execution) (*ledger.Result, error) {
	o := e.Order
	var res *ledger.Result

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := sqliteMarket(tx.QueryRowContext(ctx,
			`SELECT `+sqliteMarketColumns+` FROM markets WHERE id = ?`, o.MarketID))
		if err != nil {
			return sqlNotFound(err, "market "+o.MarketID)
		}
		bal, err := getSQLiteBalance(ctx, tx, o.UserID)
		if err != nil {
			return err
		}
		st := ledger.State{Market: *m, Balance: *bal}

		pos, err := sqlitePosition(tx.QueryRowContext(ctx,
			`SELECT `+sqlitePositionColumns+` FROM positions WHERE user_id = ? AND market_id = ? AND outcome = ?`,
			o.UserID, o.MarketID, string(o.Outcome)))
		switch {
		case err == nil:
			st.Position = pos
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		res, err = ledger.Apply(st, e)
		if err != nil {
			return err
		}
		return s.writeSettlement(ctx, tx, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) writeSettlement(ctx context.Context, tx *sql.Tx, r *ledger.Result) error {
	m := r.Market
	if _, err := tx.ExecContext(ctx,
		`UPDATE markets SET yes_price = ?, no_price = ?, volume = ?, version = ?, updated_at = ? WHERE id = ?`,
		m.YesPrice.String(), m.NoPrice.String(), m.Volume.String(), m.Version, fmtTime(m.UpdatedAt), m.ID); err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	if err := putSQLiteBalance(ctx, tx, &r.Balance); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	p := r.Position
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO positions (`+sqlitePositionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, market_id, outcome) DO UPDATE SET
		   shares = excluded.shares, avg_price = excluded.avg_price,
		   total_cost = excluded.total_cost, updated_at = excluded.updated_at`,
		p.UserID, p.MarketID, string(p.Outcome),
		p.Shares.String(), p.AvgPrice.String(), p.TotalCost.String(), fmtTime(p.UpdatedAt)); err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if err := putSQLiteOrder(ctx, tx, &r.Order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	t := r.Trade
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, order_id, market_id, outcome, side, shares, price, amount, buyer_id, seller_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.MarketID, string(t.Outcome), string(t.Side),
		t.Shares.String(), t.Price.String(), t.Amount.String(), t.BuyerID, t.SellerID, fmtTime(t.CreatedAt)); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	f := r.Fee
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collected_fees (id, trade_id, market_id, user_id, amount, rate, original_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TradeID, f.MarketID, f.UserID,
		f.Amount.String(), f.Rate.String(), f.OriginalAmount.String(), fmtTime(f.CreatedAt)); err != nil {
		return fmt.Errorf("insert fee: %w", err)
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func sqlNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
