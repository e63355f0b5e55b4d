package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PostAutoSubmit godoc
// @ID          postTradeInAutoSubmit
// @Summary     Run the trade-in auto-submit sweep
// @Description Notifies staff about every complete, idle trade-in lead that has not been notified yet.
// @Description Each lead is notified at most once; per-lead failures are reported in results.
// @Tags        TradeIn
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200  {object}  services.SweepSummary
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tradein/auto-submit [post]
func (h *Handlers) PostAutoSubmit(c *gin.Context) {
	sum, err := h.sweeper.AutoSubmit(c.Request.Context(), h.now())
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, "auto-submit sweep failed")
		return
	}
	ok(c, http.StatusOK, sum)
}
