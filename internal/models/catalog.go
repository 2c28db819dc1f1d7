package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product carries the catalog fields the core consumes; full catalog CRUD
// lives outside this service.
type Product struct {
	ID                 int64
	Name               string
	Price              decimal.Decimal
	FreeSelectionCount int
	ExtraPhotoPrice    decimal.Decimal
	IsActive           bool
}

type ProductSize struct {
	ID        int64
	ProductID int64
	Name      string
	Price     decimal.Decimal
	// Physical print dimensions in centimetres, forwarded to the print
	// vendor payload.
	WidthCM  float64
	HeightCM float64
}

type StyleCategory struct {
	ID       int64
	Name     string
	IsActive bool
}

// StyleImage binds a style to the API template that renders it.
type StyleImage struct {
	ID              int64
	StyleCategoryID int64
	Name            string
	ImagePath       sql.NullString
	APITemplateID   sql.NullInt64
	Prompt          sql.NullString
	IsActive        bool
}

// APITemplate is the per-style request recipe: which provider config to
// use and the request-body template with placeholders
// ({{image_url}}, {{prompt}}) substituted at submission time.
type APITemplate struct {
	ID                  int64
	Name                string
	ProviderConfigID    int64
	ModelName           sql.NullString
	WorkflowID          sql.NullString
	RequestBodyTemplate json.RawMessage
	OutputNodeID        sql.NullString
	IsActive            bool
}

// APIProviderConfig is a typed handle to one external AI provider.
type APIProviderConfig struct {
	ID            int64
	Name          string
	APIType       ProviderKind
	Host          string
	APIKey        string
	APISecret     sql.NullString
	DrawEndpoint  sql.NullString
	QueryEndpoint sql.NullString
	// MediaCode is the meitu-async preset id.
	MediaCode sql.NullString
	IsActive  bool
	UpdatedAt time.Time
}
