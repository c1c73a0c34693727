package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ErrIncomplete is returned when a payload lacks a required field.
var ErrIncomplete = errors.New("incomplete payload")

type wireIdentity struct {
	ID    *uuid.UUID `json:"id"`
	Alias *string    `json:"alias"`
	Port  *uint16    `json:"port"`
}

type wireMetadata struct {
	ID       *uuid.UUID `json:"id"`
	Filename *string    `json:"filename"`
	Size     *uint64    `json:"size"`
}

type wireOffer struct {
	From  *wireIdentity  `json:"from"`
	Files []wireMetadata `json:"files"`
}

// DecodeIdentity parses an announce payload. id, alias and port must all be
// present; unknown fields are ignored.
func DecodeIdentity(raw []byte) (Identity, error) {
	var wire wireIdentity
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Identity{}, err
	}
	return wire.identity()
}

// DecodeOffer parses an Offer body, requiring every Identity and Metadata field.
func DecodeOffer(r io.Reader) (Offer, error) {
	var wire wireOffer
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return Offer{}, err
	}
	if wire.From == nil {
		return Offer{}, fmt.Errorf("%w: from is required", ErrIncomplete)
	}
	from, err := wire.From.identity()
	if err != nil {
		return Offer{}, fmt.Errorf("from: %w", err)
	}

	offer := Offer{From: from, Files: make([]Metadata, 0, len(wire.Files))}
	for i, file := range wire.Files {
		if file.ID == nil || file.Filename == nil || file.Size == nil {
			return Offer{}, fmt.Errorf("%w: files[%d] needs id, filename and size", ErrIncomplete, i)
		}
		offer.Files = append(offer.Files, Metadata{ID: *file.ID, Filename: *file.Filename, Size: *file.Size})
	}
	return offer, nil
}

func (w wireIdentity) identity() (Identity, error) {
	if w.ID == nil || w.Alias == nil || w.Port == nil {
		return Identity{}, fmt.Errorf("%w: id, alias and port are required", ErrIncomplete)
	}
	return Identity{ID: *w.ID, Alias: *w.Alias, Port: *w.Port}, nil
}
