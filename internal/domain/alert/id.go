// internal/domain/alert/id.go
package alert

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:irrigation-monitor:alert"))

// ConditionID derives the stable id of a discrepancy. Identical inputs always
// yield the identical id.
func ConditionID(zoneKey string, t FailureType, start time.Time) string {
	name := strings.Join([]string{zoneKey, string(t), start.UTC().Format(time.RFC3339)}, "|")
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// SupersedingID is the id given to a condition that recurs after the alert
// previousID was resolved.
func SupersedingID(previousID string, resolvedAt time.Time) string {
	name := previousID + "|recurred|" + resolvedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}
