package executions

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"qaflow/pkg/db"
)

const recordQuery = `
SELECT chat_id,
       COALESCE(stdout, '')        AS stdout,
       COALESCE(stderr, '')        AS stderr,
       return_code,
       COALESCE(result_status, '') AS result_status,
       COALESCE(signed_url, '')    AS signed_url,
       COALESCE(artifact_key, '')  AS artifact_key,
       COALESCE(artifacts, '[]'::jsonb) AS artifacts,
       results_at
FROM test_scripts
WHERE chat_id = $1
ORDER BY created_at DESC
LIMIT 1
`

// PGStore reads execution records from the test_scripts table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by pool.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &PGStore{pool: pool}, nil
}

// Record returns the latest record for sessionID, or nil when there is none.
func (s *PGStore) Record(ctx context.Context, sessionID string) (*Record, error) {
	var rec Record
	if err := db.Get(ctx, s.pool, &rec, recordQuery, sessionID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query execution record %s: %w", sessionID, err)
	}
	if rec.Artifacts == nil {
		rec.Artifacts = []string{}
	}
	return &rec, nil
}
