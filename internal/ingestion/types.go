// Package ingestion publishes documentation payloads: it validates a
// payload, uploads it to object storage and announces it on the
// payload-updated topic so every search replica reloads.
package ingestion

import "time"

// PublishRequest describes one payload to publish.
type PublishRequest struct {
	Data   []byte
	Reason string
	// Force uploads and announces even when the stored copy is identical.
	Force bool
}

// PublishResult is returned after a payload has been handled.
type PublishResult struct {
	Target      string    `json:"target"`
	Checksum    string    `json:"checksum"`
	Records     int       `json:"records"`
	Uploaded    bool      `json:"uploaded"`
	Announced   bool      `json:"announced"`
	PublishedAt time.Time `json:"published_at"`
}
