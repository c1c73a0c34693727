package storage

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustRecordTransfer(t *testing.T, store *Store, offerID, kind string, createdAt int64) {
	t.Helper()

	err := store.RecordTransfer(Transfer{
		OfferID:   offerID,
		Kind:      kind,
		PeerID:    StringPointer("peer-" + offerID),
		PeerAlias: StringPointer("Bob"),
		PeerAddr:  StringPointer("10.0.0.2:8001"),
		Filename:  offerID + ".bin",
		Size:      100,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("record transfer %q/%q: %v", offerID, kind, err)
	}
}
