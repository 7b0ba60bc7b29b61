package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"qna-agent/internal/domain"
)

// maxRequestBody bounds inbound JSON bodies.
const maxRequestBody = 1 << 20 // 1 MB

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to an HTTP status and the error envelope.
// Any failure in the LLM path, the iteration ceiling included, is reported
// as a temporary service outage so clients retry rather than bug-report.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var detail string

	switch {
	case errors.Is(err, domain.ErrLLMUnavailable),
		errors.Is(err, domain.ErrLLMBadResponse),
		errors.Is(err, domain.ErrMaxIterations):
		status = http.StatusServiceUnavailable
		detail = "AI service temporarily unavailable"
	case errors.Is(err, domain.ErrChatNotFound),
		errors.Is(err, domain.ErrFileNotFound),
		errors.Is(err, domain.ErrPathOutsideRoot):
		status = http.StatusNotFound
		detail = "Not found"
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrBadRequest):
		status = http.StatusBadRequest
		detail = err.Error()
	default:
		status = http.StatusInternalServerError
		detail = "Internal server error"
	}

	if status >= 500 {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
	}

	writeJSON(w, status, errorResponse{Detail: detail})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewDomainError("Gateway.Decode", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// --- chat handlers ---

type createChatRequest struct {
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	chat, err := s.chats.Create(r.Context(), req.Title, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	page, err := s.chats.List(r.Context(), offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chats.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type updateChatRequest struct {
	Title    *string           `json:"title"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	var req updateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	chat, err := s.chats.Update(r.Context(), r.PathValue("id"), req.Title, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- message handlers ---

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.messages.Send(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)

	page, err := s.messages.List(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
