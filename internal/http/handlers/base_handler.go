// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"travelmate/internal/modules/discovery"
	"travelmate/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// maxIDLength bounds traveler IDs accepted in paths.
const maxIDLength = 64

// isValidID accepts the IDs issued by the mobile client and the synthetic pool.
func isValidID(v string) bool {
	if v == "" || len(v) > maxIDLength {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

// travelerParam reads and validates a path ID, writing 400 on failure.
func travelerParam(c *gin.Context, name string) (types.ID, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(id), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDiscoveryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, discovery.ErrInvalidRadius), errors.Is(err, discovery.ErrInvalidRequester):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, discovery.ErrNoSession):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, discovery.ErrClosed):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
