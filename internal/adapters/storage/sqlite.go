package storage

// sqlite.go — almacenamiento ligero de decisiones y estado de riesgo.
//
// Estrategia:
//   - `decisions`: una fila por ciclo de decisión (trade o skip). Es el
//     histórico auditable: qué ventana, qué lado, cuánto y por qué no.
//   - `risk_state`: snapshot de una sola fila con los contadores del
//     proceso. Sobrevive reinicios para que la dedup por ventana y la
//     racha de errores no se pierdan con un crash.
//   - Prune automático al arrancar: decisions > 30d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por ciclo de decisión
CREATE TABLE IF NOT EXISTS decisions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    window_id    INTEGER  NOT NULL,
    direction    TEXT     NOT NULL,
    size_usd     REAL     NOT NULL DEFAULT 0,
    edge         REAL     NOT NULL DEFAULT 0,
    confidence   REAL     NOT NULL DEFAULT 0,
    market_price REAL     NOT NULL DEFAULT 0,
    skip_reason  TEXT     NOT NULL DEFAULT '',
    order_id     TEXT     NOT NULL DEFAULT '',
    decided_at   DATETIME NOT NULL
);

-- Snapshot único de los contadores de riesgo
CREATE TABLE IF NOT EXISTS risk_state (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    consecutive_errors  INTEGER NOT NULL DEFAULT 0,
    last_traded_window  INTEGER NOT NULL DEFAULT 0,
    total_predictions   INTEGER NOT NULL DEFAULT 0,
    up_count            INTEGER NOT NULL DEFAULT 0,
    down_count          INTEGER NOT NULL DEFAULT 0,
    skip_count          INTEGER NOT NULL DEFAULT 0,
    updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_at     ON decisions(decided_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_window ON decisions(window_id);
`

const retentionDecisions = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveDecision persiste el resultado de un ciclo (trade o skip).
func (s *SQLiteStorage) SaveDecision(ctx context.Context, d domain.TradeDecision) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
			(window_id, direction, size_usd, edge, confidence, market_price,
			 skip_reason, order_id, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(d.WindowID),
		string(d.Direction),
		d.SizeUSD,
		d.Edge,
		d.Confidence,
		d.MarketPrice,
		string(d.Skip),
		d.OrderID,
		d.DecidedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveDecision: insert: %w", err)
	}
	return nil
}

// SaveRiskState guarda el snapshot de contadores (upsert de fila única).
func (s *SQLiteStorage) SaveRiskState(ctx context.Context, rs domain.RiskState) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_state
			(id, consecutive_errors, last_traded_window, total_predictions,
			 up_count, down_count, skip_count, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			consecutive_errors = excluded.consecutive_errors,
			last_traded_window = excluded.last_traded_window,
			total_predictions  = excluded.total_predictions,
			up_count           = excluded.up_count,
			down_count         = excluded.down_count,
			skip_count         = excluded.skip_count,
			updated_at         = excluded.updated_at
	`,
		rs.ConsecutiveAPIErrors,
		int64(rs.LastTradedWindowID),
		rs.TotalPredictions,
		rs.UpCount,
		rs.DownCount,
		rs.SkipCount,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveRiskState: upsert: %w", err)
	}
	return nil
}

// LoadRiskState carga el último snapshot. Devuelve el estado cero si la
// tabla está vacía.
func (s *SQLiteStorage) LoadRiskState(ctx context.Context) (domain.RiskState, error) {
	var rs domain.RiskState
	var lastWindow int64

	err := s.db.QueryRowContext(ctx, `
		SELECT consecutive_errors, last_traded_window, total_predictions,
		       up_count, down_count, skip_count
		FROM risk_state WHERE id = 1
	`).Scan(
		&rs.ConsecutiveAPIErrors,
		&lastWindow,
		&rs.TotalPredictions,
		&rs.UpCount,
		&rs.DownCount,
		&rs.SkipCount,
	)
	if err == sql.ErrNoRows {
		return domain.RiskState{}, nil
	}
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("storage.LoadRiskState: query: %w", err)
	}

	rs.LastTradedWindowID = domain.WindowID(lastWindow)
	return rs, nil
}

// GetDecisions devuelve las decisiones del rango dado, más recientes primero.
func (s *SQLiteStorage) GetDecisions(ctx context.Context, from, to time.Time) ([]domain.TradeDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT window_id, direction, size_usd, edge, confidence, market_price,
		       skip_reason, order_id, decided_at
		FROM decisions
		WHERE decided_at BETWEEN ? AND ?
		ORDER BY decided_at DESC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.GetDecisions: query: %w", err)
	}
	defer rows.Close()

	var decisions []domain.TradeDecision
	for rows.Next() {
		var d domain.TradeDecision
		var windowID int64
		var direction, skip, decidedAt string

		if err := rows.Scan(
			&windowID,
			&direction,
			&d.SizeUSD,
			&d.Edge,
			&d.Confidence,
			&d.MarketPrice,
			&skip,
			&d.OrderID,
			&decidedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.GetDecisions: scan row: %w", err)
		}

		d.WindowID = domain.WindowID(windowID)
		d.Direction = domain.Direction(direction)
		d.Skip = domain.SkipReason(skip)
		d.DecidedAt = parseStoredTime(decidedAt)
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina decisiones antiguas para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionDecisions)
	s.db.ExecContext(ctx, `DELETE FROM decisions WHERE decided_at < ?`, cutoff)
}

// parseStoredTime acepta los formatos con los que el driver serializa DATETIME.
func parseStoredTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
