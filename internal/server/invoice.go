package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	invoice, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

// GetInvoiceDocument renders the invoice on demand. Rendering is
// deterministic, so the download always matches the document that was sent
// to the customer.
func (s *Server) GetInvoiceDocument(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	invoice, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	document, err := s.renderer.Render(c.Request.Context(), invoice)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, s.renderer.ContentType(), document)
}

func parseInvoiceID(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
