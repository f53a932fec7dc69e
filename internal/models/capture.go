// Package models defines the domain types for Ansuz.
package models

import "time"

// TempCapture is a raw audio upload waiting to be transcribed and committed.
// The audio bytes live in the blob store under BlobKey.
type TempCapture struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BlobKey returns the blob store key holding the capture audio.
func (c *TempCapture) BlobKey() string {
	return CaptureBlobKey(c.ID)
}

// Expired reports whether the capture is past its TTL at now.
func (c *TempCapture) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CaptureBlobKey returns the blob key for a capture id.
func CaptureBlobKey(id string) string {
	return "captures/" + id
}
