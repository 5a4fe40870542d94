package redisx

import "fmt"

const ns = "seatres:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventSeats(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:seats", ns, eventID)
}

// KeyAvailableCount holds the fast-path count of free seats for an event.
func KeyAvailableCount(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:free", ns, eventID)
}

// KeyIdempotency scopes ledger records per actor and key.
func KeyIdempotency(actorID, key string) string {
	return fmt.Sprintf("%s:idem:%s:%s", ns, actorID, key)
}

// KeyRateLimit is the limiter key prefix for one throttled scope; the
// limiter appends the client identity.
func KeyRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
