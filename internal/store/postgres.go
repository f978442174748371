package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/ledger"
	"github.com/atmx/binary-exchange/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Settlement runs in one transaction holding row locks on the market,
// balance and position rows, always taken in that order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS markets (
	id          TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	resolution  TEXT NOT NULL DEFAULT '',
	yes_price   NUMERIC NOT NULL,
	no_price    NUMERIC NOT NULL,
	volume      NUMERIC NOT NULL DEFAULT 0,
	liquidity   NUMERIC NOT NULL DEFAULT 0,
	trading_fee NUMERIC NOT NULL DEFAULT 0,
	version     BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS user_balances (
	user_id    TEXT PRIMARY KEY,
	balance    NUMERIC NOT NULL CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	user_id    TEXT NOT NULL,
	market_id  TEXT NOT NULL REFERENCES markets(id),
	outcome    TEXT NOT NULL,
	shares     NUMERIC NOT NULL CHECK (shares >= 0),
	avg_price  NUMERIC NOT NULL,
	total_cost NUMERIC NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, market_id, outcome)
);
CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	market_id      TEXT NOT NULL REFERENCES markets(id),
	type           TEXT NOT NULL,
	side           TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	amount         NUMERIC NOT NULL,
	limit_price    NUMERIC,
	min_price      NUMERIC,
	max_price      NUMERIC,
	max_slippage   NUMERIC,
	shares         NUMERIC NOT NULL DEFAULT 0,
	avg_fill_price NUMERIC NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id, created_at);
CREATE TABLE IF NOT EXISTS trades (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL UNIQUE REFERENCES orders(id),
	market_id  TEXT NOT NULL REFERENCES markets(id),
	outcome    TEXT NOT NULL,
	side       TEXT NOT NULL,
	shares     NUMERIC NOT NULL,
	price      NUMERIC NOT NULL,
	amount     NUMERIC NOT NULL,
	buyer_id   TEXT NOT NULL,
	seller_id  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_market_idx ON trades (market_id, created_at);
CREATE TABLE IF NOT EXISTS collected_fees (
	id              TEXT PRIMARY KEY,
	trade_id        TEXT NOT NULL REFERENCES trades(id),
	market_id       TEXT NOT NULL REFERENCES markets(id),
	user_id         TEXT NOT NULL,
	amount          NUMERIC NOT NULL,
	rate            NUMERIC NOT NULL,
	original_amount NUMERIC NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the ledger tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// pgxRow is satisfied by pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...any) error
}

const marketColumns = `id, question, category, status, resolution,
	yes_price::TEXT, no_price::TEXT, volume::TEXT, liquidity::TEXT, trading_fee::TEXT,
	version, created_at, updated_at`

func scanMarket(row pgxRow) (*model.Market, error) {
	var m model.Market
	var status, resolution string
	var yes, no, volume, liquidity, tradingFee string
	if err := row.Scan(&m.ID, &m.Question, &m.Category, &status, &resolution,
		&yes, &no, &volume, &liquidity, &tradingFee,
		&m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Status = model.MarketStatus(status)
	m.Resolution = model.Outcome(resolution)
	var err error
	if m.YesPrice, err = decimal.NewFromString(yes); err != nil {
		return nil, fmt.Errorf("parse yes_price: %w", err)
	}
	if m.NoPrice, err = decimal.NewFromString(no); err != nil {
		return nil, fmt.Errorf("parse no_price: %w", err)
	}
	m.Volume, _ = decimal.NewFromString(volume)
	m.Liquidity, _ = decimal.NewFromString(liquidity)
	if m.TradingFee, err = decimal.NewFromString(tradingFee); err != nil {
		return nil, fmt.Errorf("parse trading_fee: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, question, category, status, resolution, yes_price, no_price,
		                      volume, liquidity, trading_fee, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12, $13)`,
		m.ID, m.Question, m.Category, string(m.Status), string(m.Resolution),
		m.YesPrice.String(), m.NoPrice.String(),
		m.Volume.String(), m.Liquidity.String(), m.TradingFee.String(),
		m.Version, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("market %s: %w", m.ID, ErrAlreadyExists)
	}
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "market "+id)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) SetMarketStatus(ctx context.Context, id string, status model.MarketStatus, resolution model.Outcome) (*model.Market, error) {
	var out *model.Market
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		m, err := scanMarket(tx.QueryRow(ctx,
			`SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "market "+id)
		}
		if err := checkTransition(m.Status, status); err != nil {
			return err
		}
		m.Status = status
		m.Resolution = resolution
		m.Version++
		m.UpdatedAt = time.Now().UTC()
		if _, err := tx.Exec(ctx,
			`UPDATE markets SET status = $2, resolution = $3, version = $4, updated_at = $5 WHERE id = $1`,
			id, string(status), string(resolution), m.Version, m.UpdatedAt); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	b, err := scanBalance(s.pool.QueryRow(ctx,
		`SELECT user_id, balance::TEXT, updated_at FROM user_balances WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.UserBalance{UserID: userID, Balance: decimal.Zero}, nil
	}
	return b, err
}

func scanBalance(row pgxRow) (*model.UserBalance, error) {
	var b model.UserBalance
	var balance string
	if err := row.Scan(&b.UserID, &balance, &b.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if b.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (*model.UserBalance, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return scanBalance(s.pool.QueryRow(ctx,
		`INSERT INTO user_balances (user_id, balance, updated_at)
		 VALUES ($1, $2::NUMERIC, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = user_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		 RETURNING user_id, balance::TEXT, updated_at`,
		userID, amount.String(), time.Now().UTC()))
}

const positionColumns = `user_id, market_id, outcome, shares::TEXT, avg_price::TEXT, total_cost::TEXT, updated_at`

func scanPosition(row pgxRow) (*model.Position, error) {
	var p model.Position
	var outcome, shares, avg, cost string
	if err := row.Scan(&p.UserID, &p.MarketID, &outcome, &shares, &avg, &cost, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Outcome = model.Outcome(outcome)
	var err error
	if p.Shares, err = decimal.NewFromString(shares); err != nil {
		return nil, fmt.Errorf("parse shares: %w", err)
	}
	if p.AvgPrice, err = decimal.NewFromString(avg); err != nil {
		return nil, fmt.Errorf("parse avg_price: %w", err)
	}
	if p.TotalCost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse total_cost: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 AND market_id = $2 AND outcome = $3`,
		userID, marketID, string(outcome)))
	if err != nil {
		return nil, notFound(err, "position")
	}
	return p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 ORDER BY market_id, outcome DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

const orderColumns = `id, user_id, market_id, type, side, outcome, amount::TEXT,
	limit_price::TEXT, min_price::TEXT, max_price::TEXT, max_slippage::TEXT,
	shares::TEXT, avg_fill_price::TEXT, status, created_at, updated_at`

func scanOrder(row pgxRow) (*model.Order, error) {
	var o model.Order
	var typ, side, outcome, status, amount, shares, avgFill string
	var limit, minP, maxP, slip *string
	if err := row.Scan(&o.ID, &o.UserID, &o.MarketID, &typ, &side, &outcome, &amount,
		&limit, &minP, &maxP, &slip,
		&shares, &avgFill, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Type = model.OrderType(typ)
	o.Side = model.Side(side)
	o.Outcome = model.Outcome(outcome)
	o.Status = model.OrderStatus(status)
	o.Amount, _ = decimal.NewFromString(amount)
	o.Shares, _ = decimal.NewFromString(shares)
	o.AvgFillPrice, _ = decimal.NewFromString(avgFill)
	o.LimitPrice = parseNullDecimal(limit)
	o.MinPrice = parseNullDecimal(minP)
	o.MaxPrice = parseNullDecimal(maxP)
	o.MaxSlippage = parseNullDecimal(slip)
	return &o, nil
}

// pgExecer is satisfied by the pool and by a transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertOrder(ctx context.Context, db pgExecer, o *model.Order) error {
	_, err := db.Exec(ctx,
		`INSERT INTO orders (id, user_id, market_id, type, side, outcome, amount,
		                     limit_price, min_price, max_price, max_slippage,
		                     shares, avg_fill_price, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC,
		         $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC,
		         $12::NUMERIC, $13::NUMERIC, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   shares = EXCLUDED.shares,
		   avg_fill_price = EXCLUDED.avg_fill_price,
		   status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at`,
		o.ID, o.UserID, o.MarketID, string(o.Type), string(o.Side), string(o.Outcome), o.Amount.String(),
		nullDecimalString(o.LimitPrice), nullDecimalString(o.MinPrice),
		nullDecimalString(o.MaxPrice), nullDecimalString(o.MaxSlippage),
		o.Shares.String(), o.AvgFillPrice.String(), string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) SaveOrder(ctx context.Context, o *model.Order) error {
	return upsertOrder(ctx, s.pool, o)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "order "+id)
	}
	return o, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, userID string, status model.OrderStatus) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`, userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) CancelOrder(ctx context.Context, id, userID string, at time.Time) (*model.Order, error) {
	var out *model.Order
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
		if err != nil {
			return notFound(err, "order "+id)
		}
		if o.Status != model.OrderPending {
			return ErrOrderNotPending
		}
		o.Status = model.OrderCancelled
		o.UpdatedAt = at
		if _, err := tx.Exec(ctx,
			`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(o.Status), at); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (s *PostgresStore) ExpireOrders(ctx context.Context, cutoff, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = 'expired', updated_at = $2
		 WHERE status = 'pending' AND created_at < $1`, cutoff, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, marketID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, market_id, outcome, side, shares::TEXT, price::TEXT, amount::TEXT,
		        buyer_id, seller_id, created_at
		 FROM trades WHERE market_id = $1 ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var outcome, side, shares, price, amount string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.MarketID, &outcome, &side,
			&shares, &price, &amount, &t.BuyerID, &t.SellerID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Outcome = model.Outcome(outcome)
		t.Side = model.Side(side)
		t.Shares, _ = decimal.NewFromString(shares)
		t.Price, _ = decimal.NewFromString(price)
		t.Amount, _ = decimal.NewFromString(amount)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) ListFees(ctx context.Context, marketID string) ([]model.CollectedFee, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, trade_id, market_id, user_id, amount::TEXT, rate::TEXT, original_amount::TEXT, created_at
		 FROM collected_fees WHERE market_id = $1 ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fees []model.CollectedFee
	for rows.Next() {
		var f model.CollectedFee
		var amount, rate, original string
		if err := rows.Scan(&f.ID, &f.TradeID, &f.MarketID, &f.UserID,
			&amount, &rate, &original, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Amount, _ = decimal.NewFromString(amount)
		f.Rate, _ = decimal.NewFromString(rate)
		f.OriginalAmount, _ = decimal.NewFromString(original)
		fees = append(fees, f)
	}
	return fees, rows.Err()
}

// Settle locks market, balance and position rows in a fixed order, applies
// the execution and writes every resulting row in the same transaction.
func (s *PostgresStore) Settle(ctx context.Context, e ledger.Execution) (*ledger.Result, error) {
	o := e.Order
	var res *ledger.Result

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		m, err := scanMarket(tx.QueryRow(ctx,
			`SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, o.MarketID))
		if err != nil {
			return notFound(err, "market "+o.MarketID)
		}

		st := ledger.State{Market: *m, Balance: model.UserBalance{UserID: o.UserID}}

		bal, err := scanBalance(tx.QueryRow(ctx,
			`SELECT user_id, balance::TEXT, updated_at FROM user_balances WHERE user_id = $1 FOR UPDATE`, o.UserID))
		switch {
		case err == nil:
			st.Balance = *bal
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		pos, err := scanPosition(tx.QueryRow(ctx,
			`SELECT `+positionColumns+` FROM positions
			 WHERE user_id = $1 AND market_id = $2 AND outcome = $3 FOR UPDATE`,
			o.UserID, o.MarketID, string(o.Outcome)))
		switch {
		case err == nil:
			st.Position = pos
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		res, err = ledger.Apply(st, e)
		if err != nil {
			return err
		}
		return writeSettlement(ctx, tx, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func writeSettlement(ctx context.Context, tx pgx.Tx, r *ledger.Result) error {
	m := r.Market
	if _, err := tx.Exec(ctx,
		`UPDATE markets SET yes_price = $2::NUMERIC, no_price = $3::NUMERIC, volume = $4::NUMERIC,
		                    version = $5, updated_at = $6
		 WHERE id = $1`,
		m.ID, m.YesPrice.String(), m.NoPrice.String(), m.Volume.String(), m.Version, m.UpdatedAt); err != nil {
		return fmt.Errorf("update market: %w", err)
	}

	b := r.Balance
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_balances (user_id, balance, updated_at) VALUES ($1, $2::NUMERIC, $3)
		 ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		b.UserID, b.Balance.String(), b.UpdatedAt); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	p := r.Position
	if _, err := tx.Exec(ctx,
		`INSERT INTO positions (user_id, market_id, outcome, shares, avg_price, total_cost, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)
		 ON CONFLICT (user_id, market_id, outcome) DO UPDATE SET
		   shares = EXCLUDED.shares, avg_price = EXCLUDED.avg_price,
		   total_cost = EXCLUDED.total_cost, updated_at = EXCLUDED.updated_at`,
		p.UserID, p.MarketID, string(p.Outcome),
		p.Shares.String(), p.AvgPrice.String(), p.TotalCost.String(), p.UpdatedAt); err != nil {
		return fmt.Errorf("update position: %w", err)
	}

	if err := upsertOrder(ctx, tx, &r.Order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	t := r.Trade
	if _, err := tx.Exec(ctx,
		`INSERT INTO trades (id, order_id, market_id, outcome, side, shares, price, amount, buyer_id, seller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)`,
		t.ID, t.OrderID, t.MarketID, string(t.Outcome), string(t.Side),
		t.Shares.String(), t.Price.String(), t.Amount.String(), t.BuyerID, t.SellerID, t.CreatedAt); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	f := r.Fee
	if _, err := tx.Exec(ctx,
		`INSERT INTO collected_fees (id, trade_id, market_id, user_id, amount, rate, original_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		f.ID, f.TradeID, f.MarketID, f.UserID,
		f.Amount.String(), f.Rate.String(), f.OriginalAmount.String(), f.CreatedAt); err != nil {
		return fmt.Errorf("insert fee: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back unless fn and the commit
// both succeed.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullDecimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNullDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
