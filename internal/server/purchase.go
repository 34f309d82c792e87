package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	orchestratordomain "github.com/smallbiznis/storebridge/internal/orchestrator/domain"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"gorm.io/gorm"
)

type promotionalOfferRequest struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"`
	Nonce     uuid.UUID `json:"nonce"`
	Timestamp int64     `json:"timestamp"`
	KeyID     string    `json:"key_id"`
}

type purchaseRequest struct {
	AppUserID string                              `json:"app_user_id"`
	ProductID string                              `json:"product_id"`
	Quantity  int                                 `json:"quantity"`
	Offer     *promotionalOfferRequest            `json:"promotional_offer"`
	Context   *platformdomain.PresentationContext `json:"presentation_context"`
	UseQueue  bool                                `json:"use_queue"`
}

type purchaseResponse struct {
	Transaction   *platformdomain.Transaction `json:"transaction,omitempty"`
	CustomerInfo  any                         `json:"customer_info"`
	UserCancelled bool                        `json:"user_cancelled"`
}

func (s *Server) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	appUserID := strings.TrimSpace(req.AppUserID)
	if appUserID == "" {
		appUserID = s.cfg.DefaultAppUserID
	}

	domainReq := orchestratordomain.PurchaseRequest{
		AppUserID: appUserID,
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  req.Quantity,
		Context:   req.Context,
	}
	if req.Offer != nil {
		domainReq.Offer = &platformdomain.PromotionalOffer{
			ID:        req.Offer.ID,
			Signature: req.Offer.Signature,
			Nonce:     req.Offer.Nonce,
			Timestamp: req.Offer.Timestamp,
			KeyID:     req.Offer.KeyID,
		}
	}

	purchase := s.orchestratorSvc.Purchase
	if req.UseQueue {
		purchase = s.orchestratorSvc.PurchaseViaQueue
	}

	result, err := purchase(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Cancellation is reported as a successful response with the flag set.
	c.JSON(http.StatusOK, gin.H{"data": purchaseResponse{
		Transaction:   result.Transaction,
		CustomerInfo:  result.CustomerInfo,
		UserCancelled: result.UserCancelled,
	}})
}

type restoreRequest struct {
	AppUserID string `json:"app_user_id"`
}

func (s *Server) RestorePurchases(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	appUserID := strings.TrimSpace(req.AppUserID)
	if appUserID == "" {
		appUserID = s.cfg.DefaultAppUserID
	}

	info, err := s.orchestratorSvc.RestorePurchases(c.Request.Context(), appUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (s *Server) GetCustomerInfo(c *gin.Context) {
	info, ok := s.customerInfo.Get(c.Request.Context(), s.appUserID(c))
	if !ok {
		AbortWithError(c, gorm.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": info})
}
