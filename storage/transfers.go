package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetTransferRetention changes how long history rows are kept. Zero disables pruning.
func (s *Store) SetTransferRetention(retention time.Duration) {
	s.transferRetention = retention
}

// RecordTransfer appends one history row.
func (s *Store) RecordTransfer(transfer Transfer) error {
	if transfer.OfferID == "" {
		return errors.New("offer_id is required")
	}
	if transfer.Filename == "" {
		return errors.New("filename is required")
	}
	if transfer.Size < 0 {
		return errors.New("size must be >= 0")
	}
	if err := validateTransferKind(transfer.Kind); err != nil {
		return err
	}
	if transfer.CreatedAt == 0 {
		transfer.CreatedAt = nowUnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO transfers (
			offer_id,
			kind,
			peer_id,
			peer_alias,
			peer_addr,
			filename,
			size,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transfer.OfferID,
		transfer.Kind,
		nullString(transfer.PeerID),
		nullString(transfer.PeerAlias),
		nullString(transfer.PeerAddr),
		transfer.Filename,
		transfer.Size,
		transfer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer %q/%q: %w", transfer.OfferID, transfer.Kind, err)
	}

	if s.transferRetention > 0 {
		cutoff := time.Now().Add(-s.transferRetention).UnixMilli()
		if _, err := s.PruneTransfers(cutoff); err != nil {
			return fmt.Errorf("prune transfers: %w", err)
		}
	}

	return nil
}

// ListTransfers returns the most recent history rows, newest first.
func (s *Store) ListTransfers(limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.Query(
		`SELECT id, offer_id, kind, peer_id, peer_alias, peer_addr, filename, size, created_at
		FROM transfers
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return collectTransfers(rows)
}

// ListTransfersByOffer returns every history row for an offer id, oldest first.
func (s *Store) ListTransfersByOffer(offerID string) ([]Transfer, error) {
	if offerID == "" {
		return nil, errors.New("offer_id is required")
	}

	rows, err := s.db.Query(
		`SELECT id, offer_id, kind, peer_id, peer_alias, peer_addr, filename, size, created_at
		FROM transfers
		WHERE offer_id = ?
		ORDER BY created_at, id`,
		offerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers for offer %q: %w", offerID, err)
	}

	transfers, err := collectTransfers(rows)
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, ErrNotFound
	}
	return transfers, nil
}

// PruneTransfers removes history rows older than cutoffTimestamp.
func (s *Store) PruneTransfers(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.Exec(`DELETE FROM transfers WHERE created_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune transfers: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for transfer prune: %w", err)
	}

	return rowsAffected, nil
}

func collectTransfers(rows *sql.Rows) ([]Transfer, error) {
	defer rows.Close()

	transfers := make([]Transfer, 0)
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		transfers = append(transfers, *transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return transfers, nil
}

func scanTransfer(row scanner) (*Transfer, error) {
	var (
		transfer  Transfer
		peerID    sql.NullString
		peerAlias sql.NullString
		peerAddr  sql.NullString
	)
	if err := row.Scan(
		&transfer.ID,
		&transfer.OfferID,
		&transfer.Kind,
		&peerID,
		&peerAlias,
		&peerAddr,
		&transfer.Filename,
		&transfer.Size,
		&transfer.CreatedAt,
	); err != nil {
		return nil, err
	}

	transfer.PeerID = stringPtr(peerID)
	transfer.PeerAlias = stringPtr(peerAlias)
	transfer.PeerAddr = stringPtr(peerAddr)
	return &transfer, nil
}
