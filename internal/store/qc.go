package store

import (
	"database/sql"
	"fmt"
	"time"
)

// QCResult is a quality-control measurement recorded by an analyzer.
type QCResult struct {
	ID        string    `json:"id"`
	Automate  string    `json:"automate"`
	TestName  string    `json:"testName"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type QCStore struct {
	db *sql.DB
}

func NewQCStore(db *sql.DB) *QCStore {
	return &QCStore{db: db}
}

// ListOverdueFailures returns failed QC results older than the given time.
func (s *QCStore) ListOverdueFailures(before time.Time) ([]QCResult, error) {
	rows, err := s.db.Query(
		`SELECT id, automate, test_name, status, timestamp
		 FROM quality_control_results WHERE status = 'fail' AND timestamp < ?
		 ORDER BY timestamp`, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue qc failures: %w", err)
	}
	defer rows.Close()

	var results []QCResult
	for rows.Next() {
		var r QCResult
		if err := rows.Scan(&r.ID, &r.Automate, &r.TestName, &r.Status, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan qc result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
