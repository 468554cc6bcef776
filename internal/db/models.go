package db

import (
	"database/sql"
	"time"
)

type AuthConfig struct {
	ID           int64          `json:"id"`
	ClientID     string         `json:"client_id"`
	ClientSecret string         `json:"client_secret"`
	AccessToken  sql.NullString `json:"access_token"`
	RefreshToken sql.NullString `json:"refresh_token"`
	ExpiresAt    sql.NullInt64  `json:"expires_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
