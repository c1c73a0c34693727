package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	// TransferOfferSent records an offer this device pushed to a peer.
	TransferOfferSent = "offer_sent"
	// TransferOfferReceived records an offer a peer pushed to this device.
	TransferOfferReceived = "offer_received"
	// TransferDownloadServed records bytes this device streamed to a peer.
	TransferDownloadServed = "download_served"
	// TransferDownloadCompleted records a file this device pulled from a peer.
	TransferDownloadCompleted = "download_completed"
)

// Transfer is one row of the transfer history.
type Transfer struct {
	ID        int64
	OfferID   string
	Kind      string
	PeerID    *string
	PeerAlias *string
	PeerAddr  *string
	Filename  string
	Size      int64
	CreatedAt int64
}

type scanner interface {
	Scan(dest ...any) error
}

func validateTransferKind(kind string) error {
	switch kind {
	case TransferOfferSent, TransferOfferReceived, TransferDownloadServed, TransferDownloadCompleted:
		return nil
	default:
		return fmt.Errorf("invalid transfer kind %q", kind)
	}
}

func nullString(ptr *string) sql.NullString {
	if ptr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *ptr, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// StringPointer returns nil for empty strings so optional columns stay NULL.
func StringPointer(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
