package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
)

// GetListing returns a listing with its asking price formatted for display.
func (h *Handler) GetListing(c *gin.Context) {
	listing, err := h.Storage.GetListingByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listing":      listing,
		"asking_price": offer.FormatINR(listing.AskingPrice),
	})
}
