package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/apierr"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

// handleStatus answers a fingerprint lookup from the in-process book
// first; if the order has already aged out of obstore it falls back to
// the on-chain oracle, which is the only source of truth once a
// settled or cancelled order's local record has been reaped.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hash, err := order.ParseFingerprint(mux.Vars(r)["hash"])
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeValidationError, "malformed order hash", err))
		return
	}

	if rec, err := s.store.Get(ctx, hash); err == nil {
		respondJSON(w, http.StatusOK, statusResponse{
			Exists:              true,
			IsFilledOrCancelled: isTerminal(rec.Status),
			Remaining:           rec.RemainingAmount,
			Status:              string(rec.Status),
		})
		return
	} else if !errors.Is(err, order.ErrNotFound) {
		respondError(w, apierr.Wrap(apierr.CodeServiceUnavailable, "order lookup unavailable", err))
		return
	}

	onchainStatus, err := s.oracle.StatusOf(ctx, hash)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeServiceUnavailable, "on-chain status lookup unavailable", err))
		return
	}
	if onchainStatus == nil {
		respondJSON(w, http.StatusOK, statusResponse{Exists: false})
		return
	}

	status := string(obstore.StatusOpen)
	if onchainStatus.IsFilledOrCancelled {
		status = string(obstore.StatusSettled)
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Exists:              true,
		IsFilledOrCancelled: onchainStatus.IsFilledOrCancelled,
		Remaining:           onchainStatus.Remaining,
		Status:              status,
	})
}

func isTerminal(status obstore.Status) bool {
	switch status {
	case obstore.StatusSettled, obstore.StatusFailed, obstore.StatusCancelled, obstore.StatusMatched:
		return true
	default:
		return false
	}
}

// handleNonce answers a wallet's next-expected nonce, read straight
// through from the on-chain nonce account.
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet, err := order.ParseAccount(mux.Vars(r)["wallet"])
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeValidationError, "malformed wallet address", err))
		return
	}

	nonce, err := s.oracle.NonceOf(ctx, wallet)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.CodeServiceUnavailable, "nonce lookup unavailable", err))
		return
	}
	respondJSON(w, http.StatusOK, nonceResponse{Nonce: nonce})
}
