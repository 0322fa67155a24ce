package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
)

// KeysHandler serves the bit catalogue.
type KeysHandler struct{}

func NewKeysHandler() *KeysHandler { return &KeysHandler{} }

// SectionInfo describes one section of the layout.
type SectionInfo struct {
	Section int    `json:"section"`
	Name    string `json:"name"`
	First   int    `json:"first"`
	Last    int    `json:"last"`
}

// List handles GET /keys, optionally filtered by ?section=N (1..7).
func (h *KeysHandler) List(c *gin.Context) {
	raw := c.Query("section")
	if raw == "" {
		writeData(c, http.StatusOK, domainFp.AllKeys())
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(domainFp.Sections()) {
		badRequest(c, "section must be between 1 and 7")
		return
	}
	writeData(c, http.StatusOK, domainFp.SectionKeys(domainFp.Sections()[n-1]))
}

// Get handles GET /keys/:index.
func (h *KeysHandler) Get(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index must be an integer")
		return
	}
	k, err := domainFp.KeyAt(idx)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeData(c, http.StatusOK, k)
}

// Sections handles GET /keys/sections.
func (h *KeysHandler) Sections(c *gin.Context) {
	secs := domainFp.Sections()
	out := make([]SectionInfo, len(secs))
	for i, s := range secs {
		first, last := s.Range()
		out[i] = SectionInfo{Section: int(s), Name: s.String(), First: first, Last: last}
	}
	writeData(c, http.StatusOK, out)
}
