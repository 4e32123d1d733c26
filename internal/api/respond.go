package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xtrntr/bazaar/internal/auth"
	"github.com/xtrntr/bazaar/internal/bazaar"
)

// errorBody is the shape of every error response
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeOpError maps an operation error to its status and kind.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid credentials")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "UsernameTaken", "Username already taken")
		return
	}

	code := bazaar.Code(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal error"
	}
	writeError(w, status, code, msg)
}

func statusFor(code string) int {
	switch code {
	case "NotSeller", "NotBuyer", "NotAuthorisedAsTrader":
		return http.StatusForbidden
	case "TradeNotFound", "NotTrader", "UnknownSeller":
		return http.StatusNotFound
	case "AlreadyTrader", "TradeAlreadyCompleted", "TradeAlreadyEscrowed", "TradeNotEscrowed",
		"TradeLessThanOneDay", "TradeCancelled", "EscrowShortfall":
		return http.StatusConflict
	case "TransferFailure":
		return http.StatusUnprocessableEntity
	case "NotImplemented":
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
