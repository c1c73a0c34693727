package models

import "github.com/google/uuid"

// Metadata describes one offered file. ID is the handle used to download it.
type Metadata struct {
	ID       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	Size     uint64    `json:"size"`
}

// Offer is a batch of file descriptions pushed from one device to another.
type Offer struct {
	From  Identity   `json:"from"`
	Files []Metadata `json:"files"`
}
