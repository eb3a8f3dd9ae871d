package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/report"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS audit_runs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_id CHAR(36) NOT NULL,
		chain VARCHAR(32) NOT NULL,
		contract VARCHAR(255) NOT NULL,
		path VARCHAR(1024) NOT NULL,
		address VARCHAR(42) NOT NULL DEFAULT '',
		status VARCHAR(64) NOT NULL,
		error TEXT,
		risk_score DOUBLE NOT NULL DEFAULT 0,
		total_findings INT NOT NULL DEFAULT 0,
		critical INT NOT NULL DEFAULT 0,
		high INT NOT NULL DEFAULT 0,
		medium INT NOT NULL DEFAULT 0,
		low INT NOT NULL DEFAULT 0,
		informational INT NOT NULL DEFAULT 0,
		analyzers_run VARCHAR(255) NOT NULL DEFAULT '',
		profit_potential_usd DOUBLE NOT NULL DEFAULT 0,
		economic_json JSON NULL,
		audited_at DATETIME NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		INDEX idx_run (run_id),
		INDEX idx_address (chain, address)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_findings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		audit_id BIGINT NOT NULL,
		source VARCHAR(32) NOT NULL DEFAULT '',
		type VARCHAR(255) NOT NULL,
		severity VARCHAR(16) NOT NULL,
		location VARCHAR(512) NOT NULL DEFAULT '',
		description TEXT,
		INDEX idx_audit (audit_id),
		CONSTRAINT fk_findings_audit FOREIGN KEY (audit_id) REFERENCES audit_runs(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Store persists audit results in MySQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// RunRecord is one stored contract audit.
type RunRecord struct {
	ID            int64
	RunID         string
	Chain         string
	Contract      string
	Address       string
	Status        string
	RiskScore     float64
	TotalFindings int
	AuditedAt     time.Time
}

type runRow struct {
	cols []string
	args []interface{}
}

func newRunRow(runID, chain string, c *report.ContractResult) (runRow, error) {
	var econ interface{}
	var profit float64
	if c.Economic != nil {
		data, err := json.Marshal(struct {
			Economic  interface{} `json:"economic"`
			Arbitrage interface{} `json:"arbitrage,omitempty"`
		}{c.Economic, c.Arbitrage})
		if err != nil {
			return runRow{}, fmt.Errorf("marshal economic analysis: %w", err)
		}
		econ = string(data)
		profit = c.Economic.TotalProfitPotentialUSD
	}

	hist := c.Summary.Severity
	return runRow{
		cols: []string{
			"run_id", "chain", "contract", "path", "address", "status", "error",
			"risk_score", "total_findings", "critical", "high", "medium", "low", "informational",
			"analyzers_run", "profit_potential_usd", "economic_json", "audited_at", "duration_ms",
		},
		args: []interface{}{
			runID, chain, c.Contract, c.Path, c.Address, c.Status, c.Error,
			c.Summary.RiskScore, c.Summary.TotalVulnerabilities,
			hist[finding.SeverityCritical], hist[finding.SeverityHigh], hist[finding.SeverityMedium],
			hist[finding.SeverityLow], hist[finding.SeverityInformational],
			strings.Join(c.Summary.AnalyzersRun, ","), profit, econ,
			c.AuditTime.UTC(), c.Duration.Milliseconds(),
		},
	}, nil
}

func insertSQL(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
}

// SaveResult stores one contract result and its findings in a single
// transaction and returns the audit row id.
func (s *Store) SaveResult(ctx context.Context, runID, chain string, c *report.ContractResult) (int64, error) {
	row, err := newRunRow(runID, chain, c)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, insertSQL("audit_runs", row.cols), row.args...)
	if err != nil {
		return 0, fmt.Errorf("insert audit run: %w", err)
	}
	auditID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read audit id: %w", err)
	}

	if len(c.Findings) > 0 {
		stmt, err := tx.PrepareContext(ctx, insertSQL("audit_findings",
			[]string{"audit_id", "source", "type", "severity", "location", "description"}))
		if err != nil {
			return 0, fmt.Errorf("prepare finding insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range c.Findings {
			if _, err := stmt.ExecContext(ctx, auditID, f.Source, truncate(f.Type, 255),
				string(finding.ParseSeverity(string(f.Severity))), truncate(f.Location, 512), f.Description); err != nil {
				return 0, fmt.Errorf("insert finding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit audit: %w", err)
	}
	return auditID, nil
}

// RecentRuns lists the latest audits, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, chain, contract, address, status, risk_score, total_findings, audited_at
		FROM audit_runs
		ORDER BY audited_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunRecord, 0)
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.Chain, &r.Contract, &r.Address, &r.Status,
			&r.RiskScore, &r.TotalFindings, &r.AuditedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
