package models

import (
	"strings"
	"time"
)

// Conversation roles as stored in history and sent to the AI backend.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// DocumentVersion is written into every history document.
const DocumentVersion = "1.0"

// Part is one text fragment of a turn
type Part struct {
	Text string `json:"text"`
}

// Turn is one message exchange unit tagged with a role
type Turn struct {
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix milliseconds
}

// NewTurn creates a single-part turn. Any role other than "user" is stored as "model".
func NewTurn(role, text string, at time.Time) Turn {
	if role != RoleUser {
		role = RoleModel
	}
	t := Turn{
		Role:  role,
		Parts: []Part{{Text: text}},
	}
	if !at.IsZero() {
		t.Timestamp = at.UnixMilli()
	}
	return t
}

// Text joins all parts of the turn.
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n")
}

// HistoryDocument is the on-disk chat history layout
type HistoryDocument struct {
	Version   string            `json:"version"`
	Histories map[string][]Turn `json:"histories"`
}

// NewHistoryDocument returns an empty document.
func NewHistoryDocument() *HistoryDocument {
	return &HistoryDocument{
		Version:   DocumentVersion,
		Histories: make(map[string][]Turn),
	}
}

// ImageResult is a single image search hit
type ImageResult struct {
	URL       string
	Title     string
	Thumbnail string
}
