package config

import (
	"os"
	"strings"
)

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// RejectEmptyInboundCompletion makes completing an inbound shipment without items an error.
// When unset the completion succeeds with no inventory effect and a warning is logged.
//
// Set via env:
// - REJECT_EMPTY_INBOUND_COMPLETION=true
func RejectEmptyInboundCompletion() bool {
	return envBool("REJECT_EMPTY_INBOUND_COMPLETION")
}

// ImportArchiveEnabled copies every accepted bulk upload file to the storage bucket.
//
// Set via env:
// - IMPORT_ARCHIVE_ENABLED=true (requires GCS_BUCKET)
func ImportArchiveEnabled() bool {
	return envBool("IMPORT_ARCHIVE_ENABLED") && strings.TrimSpace(os.Getenv("GCS_BUCKET")) != ""
}

// StockEventsEnabled reports whether completions enqueue stock events for the outbox dispatcher.
func StockEventsEnabled() bool {
	return strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")) != ""
}

// PhoneRegion is the default region used when validating supplier/customer phone numbers.
func PhoneRegion() string {
	if v := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_REGION"))); v != "" {
		return v
	}
	return "MM"
}
