// Package web exposes the read API over current positions and the change log,
// plus tracked-wallet management.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/poller"
	"go.uber.org/zap"
)

type changeReader interface {
	Query(wallet string, since time.Time) ([]domain.ChangeEvent, error)
}

type snapshotReader interface {
	Current(wallet string) map[string]domain.PositionSnapshot
}

type walletRegistry interface {
	Add(wallet string) error
	Remove(wallet string) error
	List() []string
}

type statusReader interface {
	Status() []poller.WalletStatus
}

// Server exposes HTTP endpoints serving JSON to presentation consumers.
type Server struct {
	Addr      string
	Changes   changeReader
	Snapshots snapshotReader
	Wallets   walletRegistry
	Poller    statusReader
	logger    *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, changes changeReader, snapshots snapshotReader, wallets walletRegistry, status statusReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Changes: changes, Snapshots: snapshots, Wallets: wallets, Poller: status, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/positions", s.handlePositions)
	mux.HandleFunc("/changes", s.handleChanges)
	mux.HandleFunc("/wallets", s.handleWallets)
	mux.HandleFunc("/status", s.handleStatus)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handlePositions serves the live market map of one wallet.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wallet := r.URL.Query().Get("wallet")
	if err := domain.ValidateWallet(wallet); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, s.Snapshots.Current(domain.NormalizeWallet(wallet)))
}

// handleChanges serves change events, newest first, optionally filtered by
// wallet and a `since` RFC3339 timestamp.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wallet := r.URL.Query().Get("wallet")
	if wallet != "" {
		if err := domain.ValidateWallet(wallet); err != nil {
			s.writeError(w, err)
			return
		}
		wallet = domain.NormalizeWallet(wallet)
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, &domain.ValidationError{Field: "since", Value: raw, Reason: "must be RFC3339"})
			return
		}
		since = parsed
	}

	events, err := s.Changes.Query(wallet, since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.ChangeEvent{}
	}
	s.writeJSON(w, events)
}

// handleWallets manages the tracked-wallet set.
func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, s.Wallets.List())
	case http.MethodPost:
		var body struct {
			Wallet string `json:"wallet"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, &domain.ValidationError{Field: "body", Value: "", Reason: "must be JSON with a wallet field"})
			return
		}
		if err := s.Wallets.Add(body.Wallet); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		wallet := r.URL.Query().Get("wallet")
		if err := domain.ValidateWallet(wallet); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.Wallets.Remove(wallet); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStatus serves per-wallet polling state so operators can tell "no data
// yet" apart from a recent failure.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.Poller.Status())
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
