package domain

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IntegrityRecord is the persisted outcome of one validation pass over one
// entity.
type IntegrityRecord struct {
	ID                string            `json:"id"`
	EntityType        EntityType        `json:"entity_type"`
	EntityID          string            `json:"entity_id"`
	ValidatedAt       time.Time         `json:"validated_at"`
	Valid             bool              `json:"valid"`
	RulesChecked      []string          `json:"rules_checked"`
	FailedRules       []string          `json:"failed_rules,omitempty"`
	Details           map[string]string `json:"details,omitempty"`
	CorrectionApplied bool              `json:"correction_applied"`
	CorrectionNote    string            `json:"correction_note,omitempty"`
	Checksum          string            `json:"checksum"`
	SchemaVersion     int               `json:"schema_version"`
	Severity          Severity          `json:"severity"`
	AutoFixable       bool              `json:"auto_fixable"`
	FixDescription    string            `json:"fix_description,omitempty"`
}
