package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"lanshare/config"
	"lanshare/discovery"
	"lanshare/models"
	"lanshare/storage"
)

func TestParsePeerAddr(t *testing.T) {
	host, port, err := parsePeerAddr("192.168.1.20:8001")
	if err != nil {
		t.Fatalf("parsePeerAddr failed: %v", err)
	}
	if host != "192.168.1.20" || port != 8001 {
		t.Fatalf("unexpected result %q %d", host, port)
	}

	host, port, err = parsePeerAddr("[fe80::1]:8000")
	if err != nil || host != "fe80::1" || port != 8000 {
		t.Fatalf("unexpected ipv6 result %q %d %v", host, port, err)
	}

	for _, bad := range []string{"", "10.0.0.1", ":8000", "10.0.0.1:0", "10.0.0.1:70000", "10.0.0.1:http"} {
		if _, _, err := parsePeerAddr(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLogDiscoveryEvents(t *testing.T) {
	log, hook := logtest.NewNullLogger()

	peer := models.Peer{Info: models.PeerInfo{ID: uuid.New(), Alias: "B", Port: 8001}, IP: "10.0.0.2"}
	events := make(chan discovery.Event, 2)
	events <- discovery.JoinEvent(peer)
	events <- discovery.LeaveEvent(peer.Info.ID)
	close(events)

	logDiscoveryEvents(log, events)

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Message != "peer available" || entries[0].Data["addr"] != "10.0.0.2:8001" {
		t.Fatalf("unexpected join entry: %s %v", entries[0].Message, entries[0].Data)
	}
	if entries[1].Message != "peer gone" || entries[1].Level != logrus.InfoLevel {
		t.Fatalf("unexpected leave entry: %s", entries[1].Message)
	}
}

func TestIdentityCommandCreatesIdentity(t *testing.T) {
	dataDir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"identity", "--data-dir", dataDir, "--log-level", "error"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		dataDirFlag, logLevelFlag = "", ""
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("identity command failed: %v", err)
	}

	identity, err := config.LoadIdentity(config.IdentityPath(dataDir))
	if err != nil {
		t.Fatalf("expected identity file to be created: %v", err)
	}
	if !strings.Contains(out.String(), identity.ID.String()) {
		t.Fatalf("expected output to include device id, got:\n%s", out.String())
	}
	if identity.Port != config.DefaultServicePort {
		t.Fatalf("expected default port, got %d", identity.Port)
	}
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		dataDirFlag, logLevelFlag = "", ""
		historyOffer, historyLimit = "", 20
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestHistoryCommandListsTransfers(t *testing.T) {
	dataDir := t.TempDir()

	store, _, err := storage.Open(dataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	offerID := uuid.NewString()
	otherID := uuid.NewString()
	rows := []storage.Transfer{
		{OfferID: offerID, Kind: storage.TransferOfferSent, PeerAlias: storage.StringPointer("Bob"), Filename: "a.txt", Size: 3},
		{OfferID: offerID, Kind: storage.TransferDownloadServed, PeerAddr: storage.StringPointer("10.0.0.2:51000"), Filename: "a.txt", Size: 3},
		{OfferID: otherID, Kind: storage.TransferOfferReceived, PeerAlias: storage.StringPointer("Carol"), Filename: "b.txt", Size: 9},
	}
	for _, row := range rows {
		if err := store.RecordTransfer(row); err != nil {
			t.Fatalf("RecordTransfer failed: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, err := executeRoot(t, "history", "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatalf("history command failed: %v", err)
	}
	for _, want := range []string{"offer_sent", "download_served", "offer_received", "Bob", "Carol", "10.0.0.2:51000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = executeRoot(t, "history", "--data-dir", dataDir, "--offer", offerID)
	if err != nil {
		t.Fatalf("history --offer failed: %v", err)
	}
	if strings.Contains(out, otherID) || strings.Count(out, offerID) != 2 {
		t.Fatalf("expected only the two rows of %s:\n%s", offerID, out)
	}

	if _, err := executeRoot(t, "history", "--data-dir", dataDir, "--offer", uuid.NewString()); err == nil {
		t.Fatalf("expected error for unknown offer")
	}
}

func TestHistoryCommandEmpty(t *testing.T) {
	out, err := executeRoot(t, "history", "--data-dir", t.TempDir())
	if err != nil {
		t.Fatalf("history command failed: %v", err)
	}
	if !strings.Contains(out, "no transfers recorded") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
