package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lanshare/models"
	"lanshare/storage"
)

// DefaultClientTimeout bounds offer requests and the wait for download headers.
const DefaultClientTimeout = 30 * time.Second

// ProgressFunc returns a writer that observes downloaded bytes. size is -1
// when the peer did not send a length.
type ProgressFunc func(size int64, filename string) io.Writer

// ClientOptions configures outbound offers and downloads.
type ClientOptions struct {
	Identity models.Identity
	// Offers receives a registration for every file this device offers, so
	// the receiving peer can pull it from our rendezvous server.
	Offers      *OfferTable
	DownloadDir string
	Timeout     time.Duration
	Progress    ProgressFunc
	Recorder    Recorder
	Logger      logrus.FieldLogger

	transport http.RoundTripper
}

func (o ClientOptions) withDefaults() ClientOptions {
	out := o
	if out.Timeout <= 0 {
		out.Timeout = DefaultClientTimeout
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	if out.transport == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = out.Timeout
		out.transport = transport
	}
	return out
}

// Client performs the offer and download calls against peers.
type Client struct {
	options ClientOptions
	http    *http.Client
	log     logrus.FieldLogger
}

// NewClient creates a client. Nothing is retried; callers own retry policy.
func NewClient(options ClientOptions) *Client {
	opts := options.withDefaults()
	return &Client{
		options: opts,
		http:    &http.Client{Transport: opts.transport},
		log:     opts.Logger.WithField("component", "client"),
	}
}

// OfferFile announces the file at path to peer and returns the metadata sent.
// The local registration is withdrawn when the peer does not accept the offer.
func (c *Client) OfferFile(ctx context.Context, path string, peer models.Peer) (models.Metadata, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("%w: resolve %q: %v", ErrLocalIO, path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("%w: stat %q: %v", ErrLocalIO, absPath, err)
	}
	if info.IsDir() {
		return models.Metadata{}, fmt.Errorf("%w: %q is a directory", ErrLocalIO, absPath)
	}

	metadata := models.Metadata{
		ID:       uuid.New(),
		Filename: filepath.Base(absPath),
		Size:     uint64(info.Size()),
	}
	if c.options.Offers != nil {
		c.options.Offers.Put(OfferEntry{
			Metadata: metadata,
			From:     c.options.Identity,
			Path:     absPath,
		})
	}

	offer := models.Offer{
		From:  c.options.Identity,
		Files: []models.Metadata{metadata},
	}
	if err := c.postOffer(ctx, peer, offer); err != nil {
		if c.options.Offers != nil {
			c.options.Offers.Remove(metadata.ID)
		}
		return models.Metadata{}, err
	}

	c.log.WithFields(logrus.Fields{
		"offer": metadata.ID.String(),
		"file":  metadata.Filename,
		"size":  metadata.Size,
		"to":    peer.Info.Alias,
	}).Info("offer sent")
	c.record(storage.Transfer{
		OfferID:   metadata.ID.String(),
		Kind:      storage.TransferOfferSent,
		PeerID:    storage.StringPointer(peer.Info.ID.String()),
		PeerAlias: storage.StringPointer(peer.Info.Alias),
		PeerAddr:  storage.StringPointer(peer.Addr()),
		Filename:  metadata.Filename,
		Size:      int64(metadata.Size),
	})

	return metadata, nil
}

// DownloadFile pulls offer id from ip:port and stores it in the download
// directory under the base of filename. It returns the written path.
func (c *Client) DownloadFile(ctx context.Context, ip string, port uint16, id uuid.UUID, filename string) (string, error) {
	if !validFilename(filename) {
		return "", fmt.Errorf("%w: invalid filename %q", ErrLocalIO, filename)
	}
	if c.options.DownloadDir == "" {
		return "", fmt.Errorf("%w: download directory is not configured", ErrLocalIO)
	}

	url := peerURL(ip, port, "/download/"+id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build download request: %v", ErrNetwork, err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %v", ErrNetwork, url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", statusError("download", url, res)
	}

	if err := os.MkdirAll(c.options.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create download directory: %v", ErrLocalIO, err)
	}
	tmp, err := os.CreateTemp(c.options.DownloadDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrLocalIO, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	base := filepath.Base(filename)
	sink := &trackedWriter{w: tmp}
	var dst io.Writer = sink
	if c.options.Progress != nil {
		dst = io.MultiWriter(sink, progressWriter{w: c.options.Progress(res.ContentLength, base)})
	}

	written, err := io.Copy(dst, res.Body)
	if err != nil {
		if sink.err != nil {
			return "", fmt.Errorf("%w: write %q: %v", ErrLocalIO, tmpPath, sink.err)
		}
		return "", fmt.Errorf("%w: read download body: %v", ErrNetwork, err)
	}
	if res.ContentLength >= 0 && written != res.ContentLength {
		return "", fmt.Errorf("%w: short download: got %d of %d bytes", ErrNetwork, written, res.ContentLength)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close %q: %v", ErrLocalIO, tmpPath, err)
	}
	finalPath := filepath.Join(c.options.DownloadDir, base)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("%w: move download into place: %v", ErrLocalIO, err)
	}
	committed = true

	c.log.WithFields(logrus.Fields{
		"offer": id.String(),
		"path":  finalPath,
		"bytes": written,
	}).Info("download completed")
	c.record(storage.Transfer{
		OfferID:  id.String(),
		Kind:     storage.TransferDownloadCompleted,
		PeerAddr: storage.StringPointer(net.JoinHostPort(ip, strconv.Itoa(int(port)))),
		Filename: base,
		Size:     written,
	})

	return finalPath, nil
}

func (c *Client) postOffer(ctx context.Context, peer models.Peer, offer models.Offer) error {
	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	url := peerURL(peer.IP, peer.Info.Port, "/offer")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build offer request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", ErrNetwork, url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError("offer", url, res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func (c *Client) record(transfer storage.Transfer) {
	if c.options.Recorder == nil {
		return
	}
	if err := c.options.Recorder.RecordTransfer(transfer); err != nil {
		c.log.WithError(err).WithField("offer", transfer.OfferID).Warn("record transfer")
	}
}

func statusError(op, url string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	message := strings.TrimSpace(string(body))

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}

	return &StatusError{
		Op:         op,
		URL:        url,
		StatusCode: res.StatusCode,
		Message:    message,
	}
}

func peerURL(ip string, port uint16, path string) string {
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(int(port))) + path
}

type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

// progressWriter never fails, so a broken progress display cannot abort a download.
type progressWriter struct {
	w io.Writer
}

func (p progressWriter) Write(b []byte) (int, error) {
	if p.w != nil {
		_, _ = p.w.Write(b)
	}
	return len(b), nil
}
