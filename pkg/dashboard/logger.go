package dashboard

import (
	"github.com/google/uuid"
	"github.com/kilnforge/filepool/pkg/model"
)

// BroadcastLogger wraps a model.Logger, additionally broadcasting every
// record to a Dashboard's connected /ws/logs clients — installed as a
// Run's Log capability when the dashboard is enabled (SPEC_FULL.md §11).
type BroadcastLogger struct {
	next  model.Logger
	dash  *Dashboard
	runID string
}

// NewBroadcastLogger returns a BroadcastLogger tagging every broadcast
// record with runID.
func NewBroadcastLogger(next model.Logger, dash *Dashboard, runID uuid.UUID) *BroadcastLogger {
	return &BroadcastLogger{next: next, dash: dash, runID: runID.String()}
}

func (l *BroadcastLogger) Log(message any, data map[string]any) {
	l.next.Log(message, data)
	l.broadcast("info", message, data)
}

func (l *BroadcastLogger) Info(message any, data map[string]any) {
	l.next.Info(message, data)
	l.broadcast("info", message, data)
}

func (l *BroadcastLogger) Warn(message any, data map[string]any) {
	l.next.Warn(message, data)
	l.broadcast("warning", message, data)
}

func (l *BroadcastLogger) Error(message any, data map[string]any) {
	l.next.Error(message, data)
	l.broadcast("error", message, data)
}

func (l *BroadcastLogger) Debug(message any, data map[string]any) {
	l.next.Debug(message, data)
	l.broadcast("debug", message, data)
}

func (l *BroadcastLogger) broadcast(level string, message any, data map[string]any) {
	text := ""
	switch m := message.(type) {
	case string:
		text = m
	case error:
		text = m.Error()
	}
	l.dash.Broadcast(LogLine{RunID: l.runID, Level: level, Message: text, Data: data})
}

var _ model.Logger = (*BroadcastLogger)(nil)
