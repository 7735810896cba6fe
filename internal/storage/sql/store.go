package sql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// newWithDB wraps an existing connection without running migrations. Used in
// tests with sqlmock.
func newWithDB(db *sqlx.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := s.db.GetContext(ctx, &key,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = $1`, keyHash)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &key, err
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	err := s.db.SelectContext(ctx, &keys,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

// ============================================
// Applications
// ============================================

// applicationRow is the flat database shape. Realms, environments and apply
// results are owned sub-documents of the application and stored as JSON.
type applicationRow struct {
	Name         string         `db:"name"`
	Description  string         `db:"description"`
	Realms       string         `db:"realms"`
	Environments string         `db:"environments"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastApplied  *time.Time     `db:"last_applied"`
	Results      sql.NullString `db:"last_apply_results"`
}

func toRow(app *domain.Application) (*applicationRow, error) {
	realms, err := json.Marshal(app.Realms)
	if err != nil {
		return nil, fmt.Errorf("encoding realms: %w", err)
	}
	envs, err := json.Marshal(app.Environments)
	if err != nil {
		return nil, fmt.Errorf("encoding environments: %w", err)
	}
	row := &applicationRow{
		Name:         app.Name,
		Description:  app.Description,
		Realms:       string(realms),
		Environments: string(envs),
		CreatedAt:    app.CreatedAt,
		UpdatedAt:    app.UpdatedAt,
		LastApplied:  app.LastApplied,
	}
	if app.LastApplyResults != nil {
		results, err := json.Marshal(app.LastApplyResults)
		if err != nil {
			return nil, fmt.Errorf("encoding apply results: %w", err)
		}
		row.Results = sql.NullString{String: string(results), Valid: true}
	}
	return row, nil
}

func fromRow(row *applicationRow) (*domain.Application, error) {
	app := &domain.Application{
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		LastApplied: row.LastApplied,
	}
	if err := json.Unmarshal([]byte(row.Realms), &app.Realms); err != nil {
		return nil, fmt.Errorf("decoding realms for %s: %w", row.Name, err)
	}
	if err := json.Unmarshal([]byte(row.Environments), &app.Environments); err != nil {
		return nil, fmt.Errorf("decoding environments for %s: %w", row.Name, err)
	}
	if row.Results.Valid {
		var results domain.ApplyResultSet
		if err := json.Unmarshal([]byte(row.Results.String), &results); err != nil {
			return nil, fmt.Errorf("decoding apply results for %s: %w", row.Name, err)
		}
		app.LastApplyResults = &results
	}
	return app, nil
}

const applicationColumns = `name, description, realms, environments, created_at, updated_at, last_applied, last_apply_results`

func (s *Store) CreateApplication(ctx context.Context, app *domain.Application) error {
	row, err := toRow(app)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO applications (`+applicationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.Name, row.Description, row.Realms, row.Environments,
		row.CreatedAt, row.UpdatedAt, row.LastApplied, row.Results)
	return wrapUniqueError(err)
}

func (s *Store) GetApplication(ctx context.Context, name string) (*domain.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+applicationColumns+` FROM applications WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row)
}

func (s *Store) ListApplications(ctx context.Context) ([]*domain.Application, error) {
	var rows []applicationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+applicationColumns+` FROM applications ORDER BY name`)
	if err != nil {
		return nil, err
	}
	apps := make([]*domain.Application, 0, len(rows))
	for i := range rows {
		app, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (s *Store) UpdateApplication(ctx context.Context, app *domain.Application) error {
	row, err := toRow(app)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE applications
		 SET description = $1, realms = $2, environments = $3, updated_at = $4,
		     last_applied = $5, last_apply_results = $6
		 WHERE name = $7`,
		row.Description, row.Realms, row.Environments, row.UpdatedAt,
		row.LastApplied, row.Results, row.Name)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteApplication(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE name = $1`, name)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetApplyResults(ctx context.Context, name string, appliedAt time.Time, results domain.ApplyResultSet) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding apply results: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE applications SET last_applied = $1, last_apply_results = $2 WHERE name = $3`,
		appliedAt, string(encoded), name)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// Access Requests
// ============================================

type accessRequestRow struct {
	ID          string     `db:"id"`
	Username    string     `db:"username"`
	Domain      string     `db:"domain"`
	Application string     `db:"application"`
	Environment string     `db:"environment"`
	Role        string     `db:"role"`
	Reason      string     `db:"reason"`
	RequestedBy string     `db:"requested_by"`
	RequestedAt time.Time  `db:"requested_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	Status      string     `db:"status"`
	ApprovedBy  *string    `db:"approved_by"`
	ApprovedAt  *time.Time `db:"approved_at"`
	SudoRule    string     `db:"sudo_rule"`
}

func toRequestRow(req *domain.AccessRequest) *accessRequestRow {
	row := &accessRequestRow{
		ID:          req.ID,
		Username:    req.User,
		Domain:      req.Domain,
		Application: req.Application,
		Environment: req.Environment,
		Role:        req.Role,
		Reason:      req.Reason,
		RequestedBy: req.RequestedBy,
		RequestedAt: req.RequestedAt,
		ExpiresAt:   req.ExpiresAt,
		Status:      string(req.Status),
		ApprovedAt:  req.ApprovedAt,
		SudoRule:    req.SudoRule,
	}
	if req.ApprovedBy != "" {
		row.ApprovedBy = &req.ApprovedBy
	}
	return row
}

func fromRequestRow(row *accessRequestRow) *domain.AccessRequest {
	req := &domain.AccessRequest{
		ID:          row.ID,
		User:        row.Username,
		Domain:      row.Domain,
		Application: row.Application,
		Environment: row.Environment,
		Role:        row.Role,
		Reason:      row.Reason,
		RequestedBy: row.RequestedBy,
		RequestedAt: row.RequestedAt,
		ExpiresAt:   row.ExpiresAt,
		Status:      domain.AccessRequestStatus(row.Status),
		ApprovedAt:  row.ApprovedAt,
		SudoRule:    row.SudoRule,
	}
	if row.ApprovedBy != nil {
		req.ApprovedBy = *row.ApprovedBy
	}
	return req
}

const accessRequestColumns = `id, username, domain, application, environment, role, reason, requested_by, requested_at, expires_at, status, approved_by, approved_at, sudo_rule`

func (s *Store) CreateAccessRequest(ctx context.Context, req *domain.AccessRequest) error {
	row := toRequestRow(req)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_requests (`+accessRequestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		row.ID, row.Username, row.Domain, row.Application, row.Environment,
		row.Role, row.Reason, row.RequestedBy, row.RequestedAt, row.ExpiresAt,
		row.Status, row.ApprovedBy, row.ApprovedAt, row.SudoRule)
	return wrapUniqueError(err)
}

func (s *Store) GetAccessRequest(ctx context.Context, id string) (*domain.AccessRequest, error) {
	var row accessRequestRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRequestRow(&row), nil
}

func (s *Store) ListAccessRequests(ctx context.Context) ([]*domain.AccessRequest, error) {
	var rows []accessRequestRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+accessRequestColumns+` FROM access_requests ORDER BY requested_at DESC`)
	if err != nil {
		return nil, err
	}
	reqs := make([]*domain.AccessRequest, 0, len(rows))
	for i := range rows {
		reqs = append(reqs, fromRequestRow(&rows[i]))
	}
	return reqs, nil
}

func (s *Store) ListAccessRequestsByStatus(ctx context.Context, status domain.AccessRequestStatus) ([]*domain.AccessRequest, error) {
	var rows []accessRequestRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE status = $1 ORDER BY requested_at DESC`,
		string(status))
	if err != nil {
		return nil, err
	}
	reqs := make([]*domain.AccessRequest, 0, len(rows))
	for i := range rows {
		reqs = append(reqs, fromRequestRow(&rows[i]))
	}
	return reqs, nil
}

func (s *Store) UpdateAccessRequest(ctx context.Context, req *domain.AccessRequest) error {
	row := toRequestRow(req)
	result, err := s.db.ExecContext(ctx,
		`UPDATE access_requests
		 SET status = $1, approved_by = $2, approved_at = $3, expires_at = $4, sudo_rule = $5
		 WHERE id = $6`,
		row.Status, row.ApprovedBy, row.ApprovedAt, row.ExpiresAt, row.SudoRule, row.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
