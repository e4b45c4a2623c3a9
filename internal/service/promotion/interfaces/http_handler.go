// internal/service/promotion/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"polaris/internal/pkg/lock"
	"polaris/internal/service/promotion/application"
	"polaris/internal/service/promotion/domain"
)

// PromotionHandler 封装了 promotion 服务的 HTTP 处理器
type PromotionHandler struct {
	couponSvc   *application.CouponService
	userSvc     *application.UserCouponService
	discountSvc *application.DiscountService
}

func NewPromotionHandler(
	couponSvc *application.CouponService,
	userSvc *application.UserCouponService,
	discountSvc *application.DiscountService,
) *PromotionHandler {
	return &PromotionHandler{
		couponSvc:   couponSvc,
		userSvc:     userSvc,
		discountSvc: discountSvc,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PromotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /coupons", h.handleSaveCoupon)
	mux.HandleFunc("POST /coupons/issue", h.handleIssueCoupon)
	mux.HandleFunc("POST /coupons/{couponId}/pause", h.handlePauseCoupon)
	mux.HandleFunc("GET /coupons/issuing", h.handleQueryIssuing)
	mux.HandleFunc("POST /user-coupons/{couponId}/receive", h.handleReceiveCoupon)
	mux.HandleFunc("POST /user-coupons/exchange", h.handleExchangeCoupon)
	mux.HandleFunc("POST /user-coupons/discounts", h.handleFindDiscounts)
}

func (h *PromotionHandler) handleSaveCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var form application.CouponForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.couponSvc.SaveCoupon(ctx, &form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id})
}

func (h *PromotionHandler) handleIssueCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var form application.CouponIssueForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.couponSvc.IssueCoupon(ctx, &form); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func (h *PromotionHandler) handlePauseCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	couponID, err := strconv.ParseInt(r.PathValue("couponId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}

	if err := h.couponSvc.PauseCoupon(ctx, couponID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func (h *PromotionHandler) handleQueryIssuing(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user_id", http.StatusBadRequest)
		return
	}

	vos, err := h.couponSvc.QueryIssuingCoupons(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, vos)
}

func (h *PromotionHandler) handleReceiveCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	couponID, err := strconv.ParseInt(r.PathValue("couponId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userSvc.ReceiveCoupon(ctx, couponID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func (h *PromotionHandler) handleExchangeCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req struct {
		Code   string `json:"code"`
		UserID int64  `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.UserID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userSvc.ExchangeCoupon(ctx, req.Code, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func (h *PromotionHandler) handleFindDiscounts(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req struct {
		UserID     int64                    `json:"userId"`
		OrderLines []*application.OrderLine `json:"orderLines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sols, err := h.discountSvc.FindDiscountSolutions(ctx, req.UserID, req.OrderLines)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, sols)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCode):
		statusCode = http.StatusBadRequest
	case errors.Is(err, lock.ErrLockTimeout):
		// 锁竞争超时，客户端可以稍后重试
		statusCode = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNotIssuing),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrUserLimitExceeded),
		errors.Is(err, domain.ErrAlreadyRedeemed),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrInvalidStatus):
		statusCode = http.StatusForbidden // 请求有效，但业务规则拒绝执行
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}
