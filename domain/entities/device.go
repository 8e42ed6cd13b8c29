package entities

import "time"

// Device represents a registered end-user device (phone or smart mirror)
// that streams camera frames and microphone audio to the gateway.
type Device struct {
	ID           string    `json:"id"`
	SerialNumber string    `json:"serial_number"`
	Model        string    `json:"model"`
	OwnerID      *string   `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
