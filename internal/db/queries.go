package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const getAuthConfig = `-- name: GetAuthConfig :one
SELECT id, client_id, client_secret, access_token, refresh_token, expires_at, updated_at
FROM auth_config
WHERE id = 1
`

func (q *Queries) GetAuthConfig(ctx context.Context) (AuthConfig, error) {
	row := q.db.QueryRowContext(ctx, getAuthConfig)
	var i AuthConfig
	err := row.Scan(
		&i.ID,
		&i.ClientID,
		&i.ClientSecret,
		&i.AccessToken,
		&i.RefreshToken,
		&i.ExpiresAt,
		&i.UpdatedAt,
	)
	return i, err
}

const saveAuthConfig = `-- name: SaveAuthConfig :exec
INSERT INTO auth_config (id, client_id, client_secret, access_token, refresh_token, expires_at, updated_at)
VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE SET
    client_id = excluded.client_id,
    client_secret = excluded.client_secret,
    access_token = excluded.access_token,
    refresh_token = excluded.refresh_token,
    expires_at = excluded.expires_at,
    updated_at = CURRENT_TIMESTAMP
`

type SaveAuthConfigParams struct {
	ClientID     string         `json:"client_id"`
	ClientSecret string         `json:"client_secret"`
	AccessToken  sql.NullString `json:"access_token"`
	RefreshToken sql.NullString `json:"refresh_token"`
	ExpiresAt    sql.NullInt64  `json:"expires_at"`
}

func (q *Queries) SaveAuthConfig(ctx context.Context, arg SaveAuthConfigParams) error {
	_, err := q.db.ExecContext(ctx, saveAuthConfig,
		arg.ClientID,
		arg.ClientSecret,
		arg.AccessToken,
		arg.RefreshToken,
		arg.ExpiresAt,
	)
	return err
}

const updateTokens = `-- name: UpdateTokens :exec
UPDATE auth_config
SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = 1
`

type UpdateTokensParams struct {
	AccessToken  sql.NullString `json:"access_token"`
	RefreshToken sql.NullString `json:"refresh_token"`
	ExpiresAt    sql.NullInt64  `json:"expires_at"`
}

func (q *Queries) UpdateTokens(ctx context.Context, arg UpdateTokensParams) error {
	_, err := q.db.ExecContext(ctx, updateTokens, arg.AccessToken, arg.RefreshToken, arg.ExpiresAt)
	return err
}

const deleteAuthConfig = `-- name: DeleteAuthConfig :exec
DELETE FROM auth_config
`

func (q *Queries) DeleteAuthConfig(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAuthConfig)
	return err
}
