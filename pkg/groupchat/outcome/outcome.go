// Package outcome writes the {"result": "success"|"error"} response envelope.
//
// Business rule failures (not found, forbidden) are reported with a normal
// 200 status and result "error", so callers can tell "the operation ran and
// was refused" apart from "the request itself was malformed" (400).
package outcome

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/apperr"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Success writes a success envelope merged with fields
func Success(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"result": ResultSuccess, "msg": ""}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// Invalid writes a 400 error envelope for requests that failed to bind
func Invalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"result": ResultError, "msg": msg})
}

// Error maps err onto the envelope by kind
func Error(c *gin.Context, err error) {
	write(c, err, "")
}

// Collapsed is Error, except that NotFound and Forbidden share the single
// generic message so callers cannot tell them apart.
func Collapsed(c *gin.Context, err error, generic string) {
	write(c, err, generic)
}

func write(c *gin.Context, err error, generic string) {
	log := zerolog.Ctx(c.Request.Context())

	switch kind := apperr.KindOf(err); kind {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"result": ResultError, "msg": err.Error()})
	case apperr.KindNotFound, apperr.KindForbidden:
		msg := err.Error()
		if generic != "" {
			msg = generic
		}
		log.Debug().Str("kind", string(kind)).Err(err).Msg("request refused")
		c.JSON(http.StatusOK, gin.H{"result": ResultError, "msg": msg})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"result": ResultError, "msg": "Internal error"})
	}
}
