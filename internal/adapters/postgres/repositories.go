package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xbeat/certicredia-sub001/internal/domain"
	"github.com/xbeat/certicredia-sub001/internal/ports"
)

var (
	_ ports.AssessmentRepository   = (*DB)(nil)
	_ ports.OrganizationRepository = (*DB)(nil)
)

const uniqueViolation = "23505"

// Append locks the record head row for the duration of the transaction, so
// concurrent writers on the same key are serialized here. The primary key on
// assessment_versions backs up the numbering.
func (db *DB) Append(ctx context.Context, key domain.AssessmentKey, nv ports.NewVersion) (v domain.Version, err error) {
	data, err := json.Marshal(nv.Data)
	if err != nil {
		return v, fmt.Errorf("encode snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return v, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var current int
	if err = tx.QueryRow(ctx, `
        INSERT INTO assessments (organization_id, indicator_id)
        VALUES ($1, $2)
        ON CONFLICT (organization_id, indicator_id) DO UPDATE SET updated_at = now()
        RETURNING current_version
    `, key.OrganizationID, key.IndicatorID).Scan(&current); err != nil {
		return v, err
	}

	v = domain.Version{
		Version:      current + 1,
		Timestamp:    nv.Timestamp.UTC(),
		User:         nv.User,
		Action:       nv.Action,
		RevertedFrom: nv.RevertedFrom,
		Digest:       nv.Digest,
		Data:         nv.Data.Clone(),
	}
	if _, err = tx.Exec(ctx, `
        INSERT INTO assessment_versions
            (organization_id, indicator_id, version, created_at, user_name, action, reverted_from, digest, data)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, key.OrganizationID, key.IndicatorID, v.Version, v.Timestamp, v.User, v.Action, v.RevertedFrom, v.Digest, data); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = fmt.Errorf("%w: %s/%s v%d", domain.ErrVersionConflict, key.OrganizationID, key.IndicatorID, v.Version)
		}
		return v, err
	}
	if _, err = tx.Exec(ctx, `
        UPDATE assessments SET current_version = $3, updated_at = now()
        WHERE organization_id = $1 AND indicator_id = $2
    `, key.OrganizationID, key.IndicatorID, v.Version); err != nil {
		return v, err
	}
	return v, nil
}

func (db *DB) Get(ctx context.Context, key domain.AssessmentKey) (domain.AssessmentRecord, bool, error) {
	history, err := db.History(ctx, key)
	if err != nil {
		return domain.AssessmentRecord{}, false, err
	}
	if len(history) == 0 {
		return domain.AssessmentRecord{}, false, nil
	}
	return domain.AssessmentRecord{
		OrganizationID: key.OrganizationID,
		IndicatorID:    key.IndicatorID,
		Current:        history[len(history)-1].Clone(),
		History:        history,
	}, true, nil
}

func (db *DB) History(ctx context.Context, key domain.AssessmentKey) ([]domain.Version, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT version, created_at, user_name, action, reverted_from, digest, data
        FROM assessment_versions
        WHERE organization_id = $1 AND indicator_id = $2
        ORDER BY version
    `, key.OrganizationID, key.IndicatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (db *DB) ListCurrent(ctx context.Context, orgID string) ([]domain.AssessmentRecord, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT a.indicator_id, v.version, v.created_at, v.user_name, v.action, v.reverted_from, v.digest, v.data
        FROM assessments a
        JOIN assessment_versions v
          ON v.organization_id = a.organization_id
         AND v.indicator_id = a.indicator_id
         AND v.version = a.current_version
        WHERE a.organization_id = $1
        ORDER BY a.indicator_id
    `, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AssessmentRecord{}
	for rows.Next() {
		var (
			indicatorID string
			v           domain.Version
			raw         []byte
		)
		if err := rows.Scan(&indicatorID, &v.Version, &v.Timestamp, &v.User, &v.Action, &v.RevertedFrom, &v.Digest, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &v.Data); err != nil {
			return nil, fmt.Errorf("decode %s v%d: %w", indicatorID, v.Version, err)
		}
		out = append(out, domain.AssessmentRecord{OrganizationID: orgID, IndicatorID: indicatorID, Current: v})
	}
	return out, rows.Err()
}

func scanVersion(rows pgx.Rows) (domain.Version, error) {
	var (
		v   domain.Version
		raw []byte
	)
	if err := rows.Scan(&v.Version, &v.Timestamp, &v.User, &v.Action, &v.RevertedFrom, &v.Digest, &raw); err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v.Data); err != nil {
		return v, fmt.Errorf("decode v%d: %w", v.Version, err)
	}
	v.Timestamp = v.Timestamp.UTC()
	return v, nil
}

func (db *DB) CreateOrganization(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO organizations (id, name, sector, employees, website, domain)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at
    `, org.ID, org.Name, org.Sector, org.Employees, org.Website, org.Domain).Scan(&org.CreatedAt)
	return org, err
}

func (db *DB) GetOrganization(ctx context.Context, id string) (domain.Organization, bool, error) {
	org := domain.Organization{ID: id}
	err := db.Pool.QueryRow(ctx, `
        SELECT name, sector, employees, website, domain, created_at
        FROM organizations WHERE id = $1
    `, id).Scan(&org.Name, &org.Sector, &org.Employees, &org.Website, &org.Domain, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Organization{}, false, nil
	}
	if err != nil {
		return domain.Organization{}, false, err
	}
	return org, true, nil
}
