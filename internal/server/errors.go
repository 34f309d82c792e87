package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storebridge/internal/backend"
	attributesdomain "github.com/smallbiznis/storebridge/internal/attributes/domain"
	orchestratordomain "github.com/smallbiznis/storebridge/internal/orchestrator/domain"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	posterdomain "github.com/smallbiznis/storebridge/internal/poster/domain"
	productsdomain "github.com/smallbiznis/storebridge/internal/products/domain"
	"github.com/smallbiznis/storebridge/internal/receipt"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	// Typed backend rejections carry their own status and code.
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		return backendErr.StatusCode, errorPayload{
			Type:    backendErr.Code,
			Message: backendErr.Message,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orchestratordomain.ErrInvalidPromotionalOffer),
		errors.Is(err, attributesdomain.ErrInvalidAppUserID),
		errors.Is(err, attributesdomain.ErrInvalidKey),
		errors.Is(err, posterdomain.ErrNoTransactionID):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, platformdomain.ErrProductNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, platformdomain.ErrPaymentPending):
		// Deferred approval is a distinct outcome, not a failure.
		return http.StatusAccepted, errorPayload{
			Type:    "payment_pending",
			Message: "purchase awaiting approval",
		}
	case errors.Is(err, receipt.ErrMissingReceipt):
		return http.StatusConflict, errorPayload{
			Type:    "missing_receipt",
			Message: "no receipt available to post",
		}
	case errors.Is(err, productsdomain.ErrProductsTimeout):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "products_request_timed_out",
			Message: "product metadata request timed out",
		}
	case errors.Is(err, backend.ErrNetwork),
		errors.Is(err, platformdomain.ErrStoreProblem),
		errors.Is(err, platformdomain.ErrStorefrontUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
