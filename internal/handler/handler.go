package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/neilb14/users-service/internal/middleware"
	"github.com/neilb14/users-service/internal/service"
	"github.com/neilb14/users-service/internal/utils/respond"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

const (
	msgPong           = "pong!"
	msgRegistered     = "Successfully registered."
	msgLoggedIn       = "Successfully logged in."
	msgInvalidPayload = "Invalid payload."
	msgUserExists     = "Sorry. That user already exists."
	msgUserNotFound   = "User does not exist."
	msgTryAgain       = "Try again."
	msgAddEmpty       = "Invalid payload"
	msgAddInvalidKeys = "Invalid payload keys"
	msgAddUserExists  = "User already exists."
	msgAddedTemplate  = "%s was added!"
)

var errEmptyPayload = errors.New("empty payload")

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Ping is the liveness probe
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	respond.Message(w, http.StatusOK, respond.StatusSuccess, msgPong)
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if _, err := decodePayload(r, &req); err != nil {
		respond.Message(w, http.StatusBadRequest, respond.StatusError, msgInvalidPayload)
		return
	}

	_, token, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusCreated, respond.Envelope{
			Status:    respond.StatusSuccess,
			Message:   msgRegistered,
			AuthToken: token,
		})
	case errors.Is(err, service.ErrValidation):
		respond.Message(w, http.StatusBadRequest, respond.StatusError, msgInvalidPayload)
	case errors.Is(err, service.ErrConflict):
		respond.Message(w, http.StatusBadRequest, respond.StatusError, msgUserExists)
	default:
		h.log.Errorf("Failed to register user: %v", err)
		respond.Message(w, http.StatusInternalServerError, respond.StatusError, msgTryAgain)
	}
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if _, err := decodePayload(r, &req); err != nil {
		respond.Message(w, http.StatusBadRequest, respond.StatusError, msgInvalidPayload)
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, respond.Envelope{
			Status:    respond.StatusSuccess,
			Message:   msgLoggedIn,
			AuthToken: token,
		})
	case errors.Is(err, service.ErrValidation):
		respond.Message(w, http.StatusBadRequest, respond.StatusError, msgInvalidPayload)
	case errors.Is(err, service.ErrNotFound):
		respond.Message(w, http.StatusNotFound, respond.StatusError, msgUserNotFound)
	default:
		h.log.Errorf("Failed to log in: %v", err)
		respond.Message(w, http.StatusInternalServerError, respond.StatusError, msgTryAgain)
	}
}

// AddUser creates a user on behalf of the authenticated caller. Must sit
// behind the auth gate.
func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	keys, err := decodePayload(r, &req)
	if err != nil {
		respond.Message(w, http.StatusBadRequest, respond.StatusFail, msgAddEmpty)
		return
	}
	if !hasKeys(keys, "username", "email", "password") {
		respond.Message(w, http.StatusBadRequest, respond.StatusFail, msgAddInvalidKeys)
		return
	}

	user, err := h.svc.AddUser(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		if caller, ok := middleware.UserFromContext(r.Context()); ok {
			h.log.Infof("User %d added by user %d", user.ID, caller.ID)
		}
		respond.Message(w, http.StatusCreated, respond.StatusSuccess, fmt.Sprintf(msgAddedTemplate, user.Email))
	case errors.Is(err, service.ErrValidation):
		respond.Message(w, http.StatusBadRequest, respond.StatusFail, msgAddInvalidKeys)
	case errors.Is(err, service.ErrConflict):
		respond.Message(w, http.StatusBadRequest, respond.StatusFail, msgAddUserExists)
	default:
		h.log.Errorf("Failed to add user: %v", err)
		respond.Message(w, http.StatusInternalServerError, respond.StatusError, msgTryAgain)
	}
}

// GetUser returns a single user by numeric id
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respond.Message(w, http.StatusNotFound, respond.StatusFail, msgUserNotFound)
		return
	}

	user, err := h.svc.GetUser(r.Context(), id)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, respond.Envelope{Status: respond.StatusSuccess, Data: user})
	case errors.Is(err, service.ErrNotFound):
		respond.Message(w, http.StatusNotFound, respond.StatusFail, msgUserNotFound)
	default:
		h.log.Errorf("Failed to load user %d: %v", id, err)
		respond.Message(w, http.StatusInternalServerError, respond.StatusError, msgTryAgain)
	}
}

// ListUsers returns every user, oldest first
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.log.Errorf("Failed to list users: %v", err)
		respond.Message(w, http.StatusInternalServerError, respond.StatusError, msgTryAgain)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Envelope{
		Status: respond.StatusSuccess,
		Data:   map[string]any{"users": users},
	})
}

// decodePayload reads a JSON object into dst and returns the keys it carried.
// Bodies that are not objects, or objects with mistyped fields, are rejected;
// an empty body or {} yields errEmptyPayload.
func decodePayload(r *http.Request, dst any) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errEmptyPayload
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errEmptyPayload
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return nil, err
	}
	return keys, nil
}

func hasKeys(keys map[string]json.RawMessage, names ...string) bool {
	for _, name := range names {
		if _, ok := keys[name]; !ok {
			return false
		}
	}
	return true
}
