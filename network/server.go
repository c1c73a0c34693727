package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"lanshare/models"
	"lanshare/storage"
)

const (
	// DefaultMaxConnections caps concurrently served HTTP connections.
	DefaultMaxConnections = 64
	// DefaultSweepInterval is how often expired offers are dropped.
	DefaultSweepInterval = time.Minute

	maxOfferBodyBytes = 1 << 20
	shutdownTimeout   = 5 * time.Second
)

// Recorder persists transfer history. Failures are logged and never fail a request.
type Recorder interface {
	RecordTransfer(transfer storage.Transfer) error
}

// ServerOptions configures the rendezvous HTTP server.
type ServerOptions struct {
	// SharedDir is where files named by received offers are resolved.
	SharedDir      string
	Offers         *OfferTable
	MaxConnections int
	SweepInterval  time.Duration
	Recorder       Recorder
	Logger         logrus.FieldLogger
}

func (o ServerOptions) withDefaults() ServerOptions {
	out := o
	if out.Offers == nil {
		out.Offers = NewOfferTable(DefaultOfferTTL)
	}
	if out.MaxConnections <= 0 {
		out.MaxConnections = DefaultMaxConnections
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = DefaultSweepInterval
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	return out
}

// Server serves POST /offer and GET /download/{id}.
type Server struct {
	listener net.Listener
	http     *http.Server
	options  ServerOptions
	log      logrus.FieldLogger

	closeOnce sync.Once
}

// Listen binds address once. The returned server does not accept requests
// until Serve is called.
func Listen(address string, options ServerOptions) (*Server, error) {
	opts := options.withDefaults()
	if opts.SharedDir == "" {
		return nil, errors.New("shared directory is required")
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %q: %v", ErrNetwork, address, err)
	}

	server := &Server{
		listener: netutil.LimitListener(listener, opts.MaxConnections),
		options:  opts,
		log:      opts.Logger.WithField("component", "rendezvous"),
	}
	server.http = &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Offers returns the table backing downloads.
func (s *Server) Offers() *OfferTable {
	return s.options.Offers
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /offer", s.handleOffer)
	mux.HandleFunc("GET /download/{id}", s.handleDownload)
	return mux
}

// Serve handles requests and sweeps expired offers until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	s.log.WithField("addr", s.Addr().String()).Info("rendezvous listening")

	ticker := time.NewTicker(s.options.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.shutdown(); err != nil {
				s.log.WithError(err).Warn("rendezvous shutdown")
			}
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("%w: serve rendezvous: %v", ErrNetwork, err)
		case <-ticker.C:
			if expired := s.options.Offers.Sweep(); len(expired) > 0 {
				s.log.WithField("count", len(expired)).Debug("expired offers dropped")
			}
		}
	}
}

// Close stops the server without waiting for in-flight requests.
func (s *Server) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = s.http.Close()
		if closeErr == nil {
			_ = s.listener.Close()
		}
	})
	return closeErr
}

func (s *Server) shutdown() error {
	var shutdownErr error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			shutdownErr = err
			_ = s.http.Close()
		}
	})
	return shutdownErr
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOfferBodyBytes)

	offer, err := models.DecodeOffer(r.Body)
	if err != nil {
		s.log.WithError(err).WithField("from", r.RemoteAddr).Debug("rejecting malformed offer")
		writeJSONError(w, http.StatusBadRequest, "malformed offer: "+err.Error())
		return
	}
	if err := validateOffer(offer); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries := make([]OfferEntry, 0, len(offer.Files))
	for _, file := range offer.Files {
		entries = append(entries, OfferEntry{
			Metadata: file,
			From:     offer.From,
			Path:     filepath.Join(s.options.SharedDir, filepath.Base(file.Filename)),
		})
	}
	if clash, ok := s.options.Offers.PutIfAbsent(entries...); !ok {
		s.log.WithFields(logrus.Fields{
			"offer": clash.String(),
			"from":  r.RemoteAddr,
		}).Warn("rejecting offer with an id already in use")
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("offer id %s already in use", clash))
		return
	}

	for _, file := range offer.Files {
		s.log.WithFields(logrus.Fields{
			"offer": file.ID.String(),
			"file":  file.Filename,
			"size":  file.Size,
			"from":  offer.From.Alias,
		}).Info("offer received")

		s.record(storage.Transfer{
			OfferID:   file.ID.String(),
			Kind:      storage.TransferOfferReceived,
			PeerID:    storage.StringPointer(offer.From.ID.String()),
			PeerAlias: storage.StringPointer(offer.From.Alias),
			PeerAddr:  storage.StringPointer(r.RemoteAddr),
			Filename:  file.Filename,
			Size:      int64(file.Size),
		})
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid offer id")
		return
	}

	entry, ok := s.options.Offers.Lookup(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown offer id")
		return
	}

	logger := s.log.WithFields(logrus.Fields{
		"offer": id.String(),
		"path":  entry.Path,
		"to":    r.RemoteAddr,
	})

	file, err := os.Open(entry.Path)
	if err != nil {
		logger.WithError(err).Warn("offered file unavailable")
		writeJSONError(w, http.StatusInternalServerError, "offered file unavailable")
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		logger.WithError(err).Warn("offered file unreadable")
		writeJSONError(w, http.StatusInternalServerError, "offered file unreadable")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, file)
	if err != nil {
		logger.WithError(err).WithField("written", written).Warn("download interrupted")
		return
	}

	logger.WithField("bytes", written).Info("download served")
	s.record(storage.Transfer{
		OfferID:  id.String(),
		Kind:     storage.TransferDownloadServed,
		PeerAddr: storage.StringPointer(r.RemoteAddr),
		Filename: entry.Metadata.Filename,
		Size:     written,
	})
}

func (s *Server) record(transfer storage.Transfer) {
	if s.options.Recorder == nil {
		return
	}
	if err := s.options.Recorder.RecordTransfer(transfer); err != nil {
		s.log.WithError(err).WithField("offer", transfer.OfferID).Warn("record transfer")
	}
}

func validateOffer(offer models.Offer) error {
	if offer.From.ID == uuid.Nil {
		return fmt.Errorf("%w: offer sender id is required", ErrProtocol)
	}
	if len(offer.Files) == 0 {
		return fmt.Errorf("%w: offer has no files", ErrProtocol)
	}
	seen := make(map[uuid.UUID]struct{}, len(offer.Files))
	for _, file := range offer.Files {
		if file.ID == uuid.Nil {
			return fmt.Errorf("%w: file id is required", ErrProtocol)
		}
		if _, dup := seen[file.ID]; dup {
			return fmt.Errorf("%w: duplicate file id %s", ErrProtocol, file.ID)
		}
		seen[file.ID] = struct{}{}
		if !validFilename(file.Filename) {
			return fmt.Errorf("%w: invalid filename %q", ErrProtocol, file.Filename)
		}
	}
	return nil
}

func validFilename(name string) bool {
	base := filepath.Base(name)
	return name != "" && base != "." && base != ".." && base != string(filepath.Separator)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
