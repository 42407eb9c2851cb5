package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AutomationType string

const (
	AutomationSync     AutomationType = "sync"
	AutomationWarnings AutomationType = "warnings"
	AutomationOverdue  AutomationType = "overdue"
	AutomationBlock    AutomationType = "block"
)

var AutomationTypes = []AutomationType{AutomationSync, AutomationWarnings, AutomationOverdue, AutomationBlock}

func ParseAutomationType(value string) (AutomationType, error) {
	for _, t := range AutomationTypes {
		if string(t) == value {
			return t, nil
		}
	}
	return "", ErrUnknownAutomation
}

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerWebhook   Trigger = "webhook"
)

type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
)

// AutomationRun is the audit record of one automation execution. It is
// written once when started and updated once on completion.
type AutomationRun struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	Type              AutomationType `gorm:"type:text;not null;index" json:"type"`
	Trigger           Trigger        `gorm:"type:text;not null" json:"trigger"`
	Status            RunStatus      `gorm:"type:text;not null;index" json:"status"`
	ClientsProcessed  int            `gorm:"not null" json:"clients_processed"`
	PaymentsProcessed int            `gorm:"not null" json:"payments_processed"`
	MessagesSent      int            `gorm:"not null" json:"messages_sent"`
	MessagesFailed    int            `gorm:"not null" json:"messages_failed"`
	DurationMs        int64          `gorm:"not null" json:"duration_ms"`
	Summary           datatypes.JSON `json:"summary,omitempty"`
	Error             datatypes.JSON `json:"error,omitempty"`
	StartedAt         time.Time      `gorm:"not null;index" json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

func (AutomationRun) TableName() string { return "automation_runs" }

// RunError is the structured error stored on a failed run.
type RunError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

type ListFilter struct {
	Type  AutomationType
	Limit int
}
