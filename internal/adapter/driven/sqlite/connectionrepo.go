package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ConnectionStore = (*ConnectionRepo)(nil)

// ConnectionRepo is the SQLite implementation of the ConnectionStore port.
type ConnectionRepo struct {
	db *DB
}

// NewConnectionRepo creates a new ConnectionRepo backed by the given DB.
func NewConnectionRepo(db *DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

const connectionColumns = `id, owner_id, category, display_name, provider, status, secret_id,
		cadence, data_types, last_sync_at, next_sync_at, last_error, created_at, updated_at`

// Create inserts a new connection. DataTypes are serialized as a JSON array
// in the TEXT column.
func (r *ConnectionRepo) Create(ctx context.Context, conn model.Connection) error {
	const query = `
		INSERT INTO connections (
			id, owner_id, category, display_name, provider, status, secret_id,
			cadence, data_types, last_sync_at, next_sync_at, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	dataTypes, err := marshalStrings(conn.DataTypes)
	if err != nil {
		return fmt.Errorf("marshal data types: %w", err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		conn.ID, conn.OwnerID, string(conn.Category), conn.DisplayName, conn.Provider,
		string(conn.Status), conn.SecretID, string(conn.Cadence), dataTypes,
		nullableTime(conn.LastSyncAt), nullableTime(conn.NextSyncAt), conn.LastError,
		conn.CreatedAt.UTC().Format(time.RFC3339), conn.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create connection %s: %w", conn.ID, err)
	}

	return nil
}

// Get returns the connection scoped to its owner. An owner mismatch is
// reported as ErrNotFound, identical to an absent row.
func (r *ConnectionRepo) Get(ctx context.Context, ownerID, connectionID string) (*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = ? AND owner_id = ?`
	return r.getOne(ctx, query, connectionID, ownerID)
}

// GetAny returns the connection by id regardless of owner.
func (r *ConnectionRepo) GetAny(ctx context.Context, connectionID string) (*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = ?`
	return r.getOne(ctx, query, connectionID)
}

func (r *ConnectionRepo) getOne(ctx context.Context, query string, args ...any) (*model.Connection, error) {
	row := r.db.Reader.QueryRowContext(ctx, query, args...)
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return conn, nil
}

// ListForOwner returns all connections belonging to the owner, newest first.
func (r *ConnectionRepo) ListForOwner(ctx context.Context, ownerID string) ([]model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE owner_id = ? ORDER BY created_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var conns []model.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}

	return conns, nil
}

// Update replaces the stored connection.
func (r *ConnectionRepo) Update(ctx context.Context, conn model.Connection) error {
	const query = `
		UPDATE connections SET
			category = ?, display_name = ?, provider = ?, status = ?, secret_id = ?,
			cadence = ?, data_types = ?, last_sync_at = ?, next_sync_at = ?,
			last_error = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`

	dataTypes, err := marshalStrings(conn.DataTypes)
	if err != nil {
		return fmt.Errorf("marshal data types: %w", err)
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		string(conn.Category), conn.DisplayName, conn.Provider, string(conn.Status), conn.SecretID,
		string(conn.Cadence), dataTypes, nullableTime(conn.LastSyncAt), nullableTime(conn.NextSyncAt),
		conn.LastError, time.Now().UTC().Format(time.RFC3339),
		conn.ID, conn.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update connection %s: %w", conn.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update connection %s: %w", conn.ID, err)
	}
	if affected == 0 {
		return driven.ErrNotFound
	}

	return nil
}

// Delete removes the connection scoped to its owner.
func (r *ConnectionRepo) Delete(ctx context.Context, ownerID, connectionID string) error {
	const query = `DELETE FROM connections WHERE id = ? AND owner_id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, connectionID, ownerID)
	if err != nil {
		return fmt.Errorf("delete connection %s: %w", connectionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete connection %s: %w", connectionID, err)
	}
	if affected == 0 {
		return driven.ErrNotFound
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*model.Connection, error) {
	var (
		conn                 model.Connection
		category             string
		status               string
		cadence              string
		dataTypes            string
		lastSync, nextSync   sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&conn.ID, &conn.OwnerID, &category, &conn.DisplayName, &conn.Provider, &status,
		&conn.SecretID, &cadence, &dataTypes, &lastSync, &nextSync, &conn.LastError,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.Category = model.ConnectionCategory(category)
	conn.Status = model.ConnectionStatus(status)
	conn.Cadence = model.Cadence(cadence)

	if err := json.Unmarshal([]byte(dataTypes), &conn.DataTypes); err != nil {
		return nil, fmt.Errorf("unmarshal data types: %w", err)
	}

	if conn.LastSyncAt, err = scanNullableTime(lastSync); err != nil {
		return nil, err
	}
	if conn.NextSyncAt, err = scanNullableTime(nextSync); err != nil {
		return nil, err
	}
	if conn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conn.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &conn, nil
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
