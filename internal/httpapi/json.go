package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// errorCode is the machine-readable half of an error response. Clients
// branch on the code; the message is for humans and may change freely.
type errorCode string

const (
	codeInvalidJSON          errorCode = "invalid_json"
	codeInvalidRequest       errorCode = "invalid_request"
	codeRagNotReady          errorCode = "rag_not_ready"
	codeRagFailed            errorCode = "rag_failed"
	codeStreamingUnsupported errorCode = "streaming_unsupported"
	codeRateLimited          errorCode = "rate_limited"
	codeArxivFailed          errorCode = "arxiv_failed"
	codeDigestFailed         errorCode = "digest_failed"
	codeMockAgent            errorCode = "mock_agent"
	codeStoreFailed          errorCode = "store_failed"
	codeNoPapers             errorCode = "no_papers"
	codeIndexFailed          errorCode = "index_failed"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}
