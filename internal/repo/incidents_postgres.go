package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/utils"
)

// DefaultOpenIncidentLimit bounds how many open incidents are scored per alert.
const DefaultOpenIncidentLimit = 200

// PostgresIncidentStore reads open incidents and records correlation decisions.
type PostgresIncidentStore struct {
	db    *sql.DB
	limit int
}

// NewPostgresIncidentStore constructs the store; limit <= 0 uses DefaultOpenIncidentLimit.
func NewPostgresIncidentStore(db *sql.DB, limit int) *PostgresIncidentStore {
	if limit <= 0 {
		limit = DefaultOpenIncidentLimit
	}
	return &PostgresIncidentStore{db: db, limit: limit}
}

// OpenIncidents returns the tenant's open incidents, most recently updated first.
func (s *PostgresIncidentStore) OpenIncidents(ctx context.Context, tenantID string) ([]models.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, services, updated_at
		FROM incidents
		WHERE tenant_id = $1 AND status = 'open'
		ORDER BY updated_at DESC, id ASC
		LIMIT $2`, tenantID, s.limit)
	if err != nil {
		return nil, utils.StoreErr("incidents.open", "query", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		var inc models.Incident
		var services pq.StringArray
		if err := rows.Scan(&inc.ID, &inc.Title, &services, &inc.UpdatedAt); err != nil {
			return nil, utils.StoreErr("incidents.open", "scan row", err)
		}
		inc.Services = []string(services)
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.StoreErr("incidents.open", "iterate rows", err)
	}
	return out, nil
}

// RecordDecision stores the decision and applies it: a match touches the
// incident and adds the alert's service, otherwise a new open incident is
// created under decision.IncidentID.
func (s *PostgresIncidentStore) RecordDecision(ctx context.Context, decision models.Decision) error {
	scores, err := json.Marshal(decision.Scores)
	if err != nil {
		return utils.StoreErr("incidents.record", "marshal scores", err)
	}
	decidedAt := decision.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.StoreErr("incidents.record", "begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO correlation_decisions
			(id, tenant_id, alert_id, alert_service, alert_title, outcome, incident_id, score, threshold, scores, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		decision.ID, decision.TenantID, decision.Alert.ID, decision.Alert.Service, decision.Alert.Title,
		decision.Outcome(), decision.IncidentID, decision.Score, decision.Threshold, scores, decidedAt,
	); err != nil {
		return utils.StoreErr("incidents.record", "insert decision", err)
	}

	if decision.IncidentID != "" {
		if decision.Matched {
			_, err = tx.ExecContext(ctx, `
				UPDATE incidents
				SET updated_at = $3,
				    services = CASE WHEN $4 = '' OR $4 = ANY(services) THEN services ELSE array_append(services, $4) END
				WHERE tenant_id = $1 AND id = $2`,
				decision.TenantID, decision.IncidentID, decidedAt, decision.Alert.Service)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO incidents (tenant_id, id, title, services, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'open', $5, $5)
				ON CONFLICT (tenant_id, id) DO NOTHING`,
				decision.TenantID, decision.IncidentID, decision.Alert.Title, pq.Array(nonEmpty(decision.Alert.Service)), decidedAt)
		}
		if err != nil {
			return utils.StoreErr("incidents.record", "apply decision", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.StoreErr("incidents.record", "commit", err)
	}
	return nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
