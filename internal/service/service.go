// Package service holds the chat and lead-capture use cases: visitor
// sessions, widget activation, conversations, lead scoring and
// notification dispatch.
package service

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("service")

// Keys in the per-browser storage scope.
const (
	keySessionID       = "session_id"
	keyVisitorID       = "visitor_id"
	keyInitLock        = "init_lock"
	keyHasVisited      = "has_visited"
	keyHasEngaged      = "has_engaged"
	keyExitIntentShown = "exit_intent_shown"
	keyProactiveShown  = "proactive_shown"
)
