package storage

// sqlite.go — persistencia durable del bot sobre SQLite (pure Go, sin CGo).
//
// Tablas:
//   trades          — histórico de operaciones (append al abrir, update al cerrar)
//   positions       — exposición viva, una fila por mercado
//   settings        — tunables clave/valor del proceso
//   recommendations — propuestas del subsistema de reflexión
//
// Los importes monetarios (PnL, bankroll) se guardan como TEXT decimal para
// que la contabilidad sea exacta; los precios como REAL.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id           TEXT PRIMARY KEY,
    market_id    TEXT NOT NULL,
    market_title TEXT NOT NULL DEFAULT '',
    strategy     TEXT NOT NULL,
    side         TEXT NOT NULL,
    size         INTEGER NOT NULL,
    entry_price  REAL NOT NULL,
    exit_price   REAL,
    gross_pnl    TEXT,
    fees         TEXT,
    net_pnl      TEXT,
    status       TEXT NOT NULL DEFAULT 'open',
    reasoning    TEXT NOT NULL DEFAULT '',
    exit_reason  TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL,
    resolved_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trades_market   ON trades(market_id, status);
CREATE INDEX IF NOT EXISTS idx_trades_resolved ON trades(status, resolved_at);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy, created_at);

CREATE TABLE IF NOT EXISTS positions (
    market_id      TEXT PRIMARY KEY,
    market_title   TEXT NOT NULL DEFAULT '',
    strategy       TEXT NOT NULL,
    side           TEXT NOT NULL,
    size           INTEGER NOT NULL,
    entry_price    REAL NOT NULL,
    current_price  REAL NOT NULL,
    unrealized_pnl TEXT NOT NULL DEFAULT '0',
    category       TEXT NOT NULL DEFAULT '',
    opened_at      DATETIME NOT NULL,
    expires_at     DATETIME
);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS recommendations (
    id             TEXT PRIMARY KEY,
    setting_key    TEXT NOT NULL,
    current_value  TEXT NOT NULL DEFAULT '',
    proposed_value TEXT NOT NULL,
    reasoning      TEXT NOT NULL DEFAULT '',
    trigger_event  TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'pending',
    denial_reason  TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL,
    resolved_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_recs_status ON recommendations(status, created_at);
`

// SQLiteStore implementa ports.Store sobre SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close cierra la conexión.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── Settings ────────────────────────────────────────────────────────────────

// GetSetting devuelve el valor de la clave, o fallback si no existe.
func (s *SQLiteStore) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("storage.GetSetting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting hace upsert de la clave.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.SetSetting %s: %w", key, err)
	}
	return nil
}

// ─── Trades ──────────────────────────────────────────────────────────────────

// CreateTradeWithPosition inserta el Trade y hace upsert de la Position en
// una transacción: un segundo trade sobre un mercado ya en cartera se
// registra igualmente pero no duplica la Position.
func (s *SQLiteStore) CreateTradeWithPosition(ctx context.Context, trade domain.Trade, pos domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CreateTradeWithPosition: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades
		  (id, market_id, market_title, strategy, side, size, entry_price,
		   status, reasoning, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		trade.ID.String(), trade.MarketID, trade.MarketTitle, trade.Strategy,
		string(trade.Side), trade.Size, trade.EntryPrice,
		string(trade.Status), trade.Reasoning, trade.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.CreateTradeWithPosition: insert trade: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO positions
		  (market_id, market_title, strategy, side, size, entry_price,
		   current_price, unrealized_pnl, category, opened_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(market_id) DO NOTHING`,
		pos.MarketID, pos.MarketTitle, pos.Strategy, string(pos.Side), pos.Size,
		pos.EntryPrice, pos.CurrentPrice, pos.UnrealizedPnl.String(),
		pos.Category, pos.OpenedAt.UTC(), nullTime(pos.ExpiresAt),
	); err != nil {
		return fmt.Errorf("storage.CreateTradeWithPosition: upsert position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.CreateTradeWithPosition: commit: %w", err)
	}
	return nil
}

// CloseTrade aplica el cierre completo como unidad atómica: marca el Trade
// abierto del mercado como cerrado, suma el net PnL al bankroll persistido
// y borra la Position. Si cualquier paso falla, todo se revierte.
func (s *SQLiteStore) CloseTrade(ctx context.Context, close ports.TradeClose) (domain.Trade, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: begin: %w", err)
	}
	defer tx.Rollback()

	var tradeID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM trades WHERE market_id=? AND status='open'
		ORDER BY created_at DESC LIMIT 1`, close.MarketID).Scan(&tradeID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: no open trade for %s", close.MarketID)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: find trade: %w", err)
	}

	resolvedAt := close.ResolvedAt.UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE trades
		SET status='closed', exit_price=?, gross_pnl=?, fees=?, net_pnl=?,
		    exit_reason=?, resolved_at=?
		WHERE id=?`,
		close.ExitPrice, close.GrossPnl.String(), close.Fees.String(),
		close.NetPnl.String(), close.Reason, resolvedAt, tradeID,
	); err != nil {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: update trade: %w", err)
	}

	// Bankroll: leer dentro de la transacción, sumar el neto, reescribir.
	var rawBankroll string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key=?`, domain.SettingBankroll).Scan(&rawBankroll)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: read bankroll: %w", err)
	}
	bankroll := decimal.Zero
	if rawBankroll != "" {
		bankroll, err = decimal.NewFromString(rawBankroll)
		if err != nil {
			return domain.Trade{}, fmt.Errorf("storage.CloseTrade: parse bankroll %q: %w", rawBankroll, err)
		}
	}
	newBankroll := bankroll.Add(close.NetPnl)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		domain.SettingBankroll, newBankroll.String(), time.Now().UTC(),
	); err != nil {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: update bankroll: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM positions WHERE market_id=?`, close.MarketID); err != nil {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: delete position: %w", err)
	}

	trade, err := scanTradeTx(ctx, tx, tradeID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: reload trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Trade{}, fmt.Errorf("storage.CloseTrade: commit: %w", err)
	}
	return trade, nil
}

// RealizedPnlSince suma el net PnL de trades cerrados desde el instante dado.
func (s *SQLiteStore) RealizedPnlSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT net_pnl FROM trades
		WHERE status='closed' AND resolved_at >= ? AND net_pnl IS NOT NULL`,
		since.UTC())
	if err != nil {
		return decimal.Zero, fmt.Errorf("storage.RealizedPnlSince: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("storage.RealizedPnlSince: scan: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("storage.RealizedPnlSince: parse %q: %w", raw, err)
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

// RecentTradeTickers devuelve los tickers operados por una estrategia desde
// el instante dado.
func (s *SQLiteStore) RecentTradeTickers(ctx context.Context, strategy string, since time.Time) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT market_id FROM trades
		WHERE strategy=? AND created_at >= ?`,
		strategy, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.RecentTradeTickers: %w", err)
	}
	defer rows.Close()

	tickers := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("storage.RecentTradeTickers: scan: %w", err)
		}
		tickers[t] = true
	}
	return tickers, rows.Err()
}

// ─── Positions ───────────────────────────────────────────────────────────────

// OpenPositions devuelve todas las posiciones abiertas.
func (s *SQLiteStore) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, market_title, strategy, side, size, entry_price,
		       current_price, unrealized_pnl, category, opened_at, expires_at
		FROM positions ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, unrealized string
		var expiresAt sql.NullTime
		if err := rows.Scan(
			&p.MarketID, &p.MarketTitle, &p.Strategy, &side, &p.Size,
			&p.EntryPrice, &p.CurrentPrice, &unrealized, &p.Category,
			&p.OpenedAt, &expiresAt,
		); err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: scan: %w", err)
		}
		p.Side = domain.Side(side)
		p.UnrealizedPnl, err = decimal.NewFromString(unrealized)
		if err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: parse pnl %q: %w", unrealized, err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			p.ExpiresAt = &t
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdatePositionMark persiste precio actual y PnL no realizado.
func (s *SQLiteStore) UpdatePositionMark(ctx context.Context, marketID string, currentPrice float64, unrealized decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET current_price=?, unrealized_pnl=? WHERE market_id=?`,
		currentPrice, unrealized.String(), marketID)
	if err != nil {
		return fmt.Errorf("storage.UpdatePositionMark %s: %w", marketID, err)
	}
	return nil
}

// UpdatePositionExpiry rellena expires_at cuando faltaba.
func (s *SQLiteStore) UpdatePositionExpiry(ctx context.Context, marketID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET expires_at=? WHERE market_id=?`,
		expiresAt.UTC(), marketID)
	if err != nil {
		return fmt.Errorf("storage.UpdatePositionExpiry %s: %w", marketID, err)
	}
	return nil
}

// ─── Recommendations ─────────────────────────────────────────────────────────

// InsertRecommendation guarda una propuesta del subsistema de reflexión.
func (s *SQLiteStore) InsertRecommendation(ctx context.Context, rec domain.Recommendation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recommendations
		  (id, setting_key, current_value, proposed_value, reasoning, trigger_event,
		   status, denial_reason, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID.String(), rec.SettingKey, rec.CurrentValue, rec.ProposedValue,
		rec.Reasoning, rec.Trigger, string(rec.Status), rec.DenialReason,
		rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.InsertRecommendation: %w", err)
	}
	return nil
}

// GetRecommendation devuelve una recomendación por id.
func (s *SQLiteStore) GetRecommendation(ctx context.Context, id uuid.UUID) (domain.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, setting_key, current_value, proposed_value, reasoning,
		       trigger_event, status, denial_reason, created_at, resolved_at
		FROM recommendations WHERE id=?`, id.String())
	return scanRecommendation(row)
}

// PendingRecommendations lista las recomendaciones aún sin resolver.
func (s *SQLiteStore) PendingRecommendations(ctx context.Context) ([]domain.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, setting_key, current_value, proposed_value, reasoning,
		       trigger_event, status, denial_reason, created_at, resolved_at
		FROM recommendations WHERE status='pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingRecommendations: %w", err)
	}
	defer rows.Close()

	var recs []domain.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ResolveRecommendation marca una recomendación como aprobada o denegada.
func (s *SQLiteStore) ResolveRecommendation(ctx context.Context, id uuid.UUID, status domain.RecommendationStatus, denialReason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recommendations
		SET status=?, denial_reason=?, resolved_at=?
		WHERE id=? AND status='pending'`,
		string(status), denialReason, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("storage.ResolveRecommendation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.ResolveRecommendation %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("storage.ResolveRecommendation: %s is not pending", id)
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row rowScanner) (domain.Recommendation, error) {
	var rec domain.Recommendation
	var id, status string
	var resolvedAt sql.NullTime
	err := row.Scan(&id, &rec.SettingKey, &rec.CurrentValue, &rec.ProposedValue,
		&rec.Reasoning, &rec.Trigger, &status, &rec.DenialReason,
		&rec.CreatedAt, &resolvedAt)
	if err != nil {
		return rec, fmt.Errorf("storage: scan recommendation: %w", err)
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return rec, fmt.Errorf("storage: parse recommendation id %q: %w", id, err)
	}
	rec.Status = domain.RecommendationStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	return rec, nil
}

func scanTradeTx(ctx context.Context, tx *sql.Tx, tradeID string) (domain.Trade, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, market_id, market_title, strategy, side, size, entry_price,
		       exit_price, gross_pnl, fees, net_pnl, status, reasoning,
		       created_at, resolved_at
		FROM trades WHERE id=?`, tradeID)

	var t domain.Trade
	var id, side, status string
	var exitPrice sql.NullFloat64
	var gross, fees, net sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&id, &t.MarketID, &t.MarketTitle, &t.Strategy, &side,
		&t.Size, &t.EntryPrice, &exitPrice, &gross, &fees, &net, &status,
		&t.Reasoning, &t.CreatedAt, &resolvedAt)
	if err != nil {
		return t, err
	}
	t.ID, err = uuid.Parse(id)
	if err != nil {
		return t, fmt.Errorf("parse trade id %q: %w", id, err)
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	if exitPrice.Valid {
		v := exitPrice.Float64
		t.ExitPrice = &v
	}
	if t.GrossPnl, err = nullDecimal(gross); err != nil {
		return t, err
	}
	if t.Fees, err = nullDecimal(fees); err != nil {
		return t, err
	}
	if t.NetPnl, err = nullDecimal(net); err != nil {
		return t, err
	}
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		t.ResolvedAt = &ts
	}
	return t, nil
}

func nullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", ns.String, err)
	}
	return &v, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
