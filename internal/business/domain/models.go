// Package domain holds the tenant (business) profile used by numbering,
// quota and tax resolution.
package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const DefaultDocumentType = "invoice"

// Business is the tenant row. InvoicePrefix and NextInvoiceNumber are the
// legacy single counter kept for the default invoice document type.
type Business struct {
	ID                   snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name                 string         `gorm:"type:text;not null" json:"name"`
	PlanCode             string         `gorm:"column:plan_code;type:text;not null;default:'free'" json:"plan_code"`
	GSTIN                string         `gorm:"column:gstin;type:text" json:"gstin,omitempty"`
	StateCode            string         `gorm:"column:state_code;type:text" json:"state_code,omitempty"`
	GSTRegistered        bool           `gorm:"column:gst_registered;not null" json:"gst_registered"`
	DisableDraftWorkflow bool           `gorm:"column:disable_draft_workflow;not null" json:"disable_draft_workflow"`
	InvoicePrefix        string         `gorm:"column:invoice_prefix;type:text" json:"invoice_prefix,omitempty"`
	NextInvoiceNumber    string         `gorm:"column:next_invoice_number;type:text" json:"next_invoice_number,omitempty"`
	DocumentTypeConfig   datatypes.JSON `gorm:"column:document_type_config" json:"document_type_config,omitempty"`
	MonthlyInvoiceLimit  *int64         `gorm:"column:monthly_invoice_limit" json:"monthly_invoice_limit,omitempty"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null" json:"updated_at"`
}

func (Business) TableName() string { return "businesses" }

// DocumentTypeSetting is one entry of the per-document-type numbering map.
// NextNumber is kept raw so a corrupted value can be detected and repaired.
type DocumentTypeSetting struct {
	Prefix     string          `json:"prefix"`
	NextNumber json.RawMessage `json:"nextNumber,omitempty"`
	Padding    int             `json:"padding,omitempty"`
}

// NextNumberValue parses NextNumber as a positive integer, accepting both JSON
// numbers and numeric strings.
func (s DocumentTypeSetting) NextNumberValue() (int64, bool) {
	raw := strings.TrimSpace(string(s.NextNumber))
	if raw == "" || raw == "null" {
		return 0, false
	}
	raw = strings.Trim(raw, `"`)
	return ParseCounter(raw)
}

// ParseCounter parses a stored counter, rejecting non-numeric and non-positive values.
func ParseCounter(value string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Profile is the read model other packages consume.
type Profile struct {
	ID                   snowflake.ID
	Name                 string
	PlanCode             string
	StateCode            string
	GSTRegistered        bool
	DisableDraftWorkflow bool
	InvoicePrefix        string
	NextInvoiceNumber    string
	DocumentTypes        map[string]DocumentTypeSetting
	MonthlyInvoiceLimit  *int64
}

// DraftWorkflow reports whether new invoices start as drafts.
func (p Profile) DraftWorkflow() bool {
	return !p.DisableDraftWorkflow
}
