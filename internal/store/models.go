// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package store implements C4 Message Store: relational persistence for
// sessions, their message history, and the dataset each session was
// created around.
package store

import "time"

// Session is one chat session: one uploaded dataset, one owning user, one
// message history.
type Session struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"type:varchar(128);index;not null" json:"user_id"`
	Title     string    `gorm:"type:varchar(256)" json:"title"`
	CreatedAt time.Time `json:"created_at"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Dataset  *Dataset  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Session) TableName() string { return "sessions" }

// Role identifies a message's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleInternal  Role = "internal"
)

// Message is one entry in a session's history. Kind mirrors
// internal/tools.Outcome.Kind ("query_result", "text", "table", "plot")
// plus "reasoning" for the model's own narration between tool calls;
// Payload carries the tool-specific structured data as JSON, nil for
// plain text/reasoning entries.
type Message struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string `gorm:"type:varchar(36);index;not null" json:"session_id"`
	Role      Role   `gorm:"type:varchar(16);not null" json:"role"`
	Kind      string `gorm:"type:varchar(32);not null" json:"kind"`
	Body      string `gorm:"type:text;not null" json:"body"`
	Payload   []byte `gorm:"type:blob" json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Dataset records the file a session was built around and its computed
// profile, so both survive a process restart without re-reading the
// upload.
type Dataset struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID   string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"session_id"`
	Filename    string    `gorm:"type:varchar(512);not null" json:"filename"`
	PathOnDisk  string    `gorm:"type:varchar(1024);not null" json:"-"`
	RowCount    int       `gorm:"not null" json:"row_count"`
	ColumnCount int       `gorm:"not null" json:"column_count"`
	Columns     []byte    `gorm:"type:blob" json:"-"`
	Profile     []byte    `gorm:"type:blob" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Dataset) TableName() string { return "datasets" }
