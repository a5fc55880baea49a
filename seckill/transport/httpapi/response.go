package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"flashsale/seckill/domain"
)

// Códigos do envelope.
const (
	CodeSuccess          = 200
	CodeSoldOut          = 4001
	CodeAlreadyAllocated = 4002
	CodeNotActive        = 4003
	CodeThrottled        = 4005
	CodeBadRequest       = 4000
	CodeNotFound         = 4004
	CodeUnavailable      = 5003
	CodeInternal         = 500
)

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: CodeSuccess, Message: "success", Data: data})
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, envelope{Code: code, Message: msg})
}

// writeDecision traduz o resultado do motor em resposta HTTP.
func writeDecision(w http.ResponseWriter, dec domain.Decision) {
	switch dec.Outcome {
	case domain.OutcomeAccepted:
		writeJSON(w, http.StatusOK, envelope{Code: CodeSuccess, Message: "accepted", Data: map[string]string{"token": dec.Token}})
	case domain.OutcomeSoldOut:
		writeError(w, http.StatusOK, CodeSoldOut, "sold out")
	case domain.OutcomeAlreadyAllocated:
		writeError(w, http.StatusOK, CodeAlreadyAllocated, "already allocated")
	case domain.OutcomeActivityNotActive:
		writeError(w, http.StatusOK, CodeNotActive, "activity not active")
	case domain.OutcomeThrottled:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, CodeThrottled, "too many requests, try again later")
	default:
		writeError(w, http.StatusInternalServerError, CodeInternal, "unknown outcome")
	}
}

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
