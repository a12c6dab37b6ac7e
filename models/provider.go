package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider represents a configured upstream LLM backend.
// Providers are long-lived configuration: they are soft-disabled rather
// than deleted once performance history references them.
type Provider struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name" validate:"required,max=255"`
	Endpoint   string    `json:"endpoint" db:"endpoint" validate:"required,url"`
	Credential string    `json:"credential,omitempty" db:"credential"` // opaque secret reference, never logged
	Model      string    `json:"model" db:"model" validate:"required,max=255"`
	Priority   int       `json:"priority" db:"priority" validate:"gte=0"` // lower = tried first
	Enabled    bool      `json:"enabled" db:"enabled"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Provider model
func (Provider) TableName() string {
	return "providers"
}

// NewProvider creates a new Provider instance with defaults applied
func NewProvider(name, endpoint, credential, model string, priority int) *Provider {
	now := time.Now()
	return &Provider{
		ID:         uuid.New(),
		Name:       name,
		Endpoint:   endpoint,
		Credential: credential,
		Model:      model,
		Priority:   priority,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
