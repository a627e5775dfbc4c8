// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"stockhold/internal/service/inventory/application"
	"stockhold/internal/service/inventory/domain"
)

// InventoryHandler 封装库存服务的 HTTP 处理器
type InventoryHandler struct {
	service   *application.InventoryApplicationService
	validator *application.InventoryValidator
	cartSync  *application.CartStockSynchronizer
	query     *application.StockQueryService
	hub       *StockPushHub // 可为 nil，未开启实时推送
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例
func NewInventoryHandler(service *application.InventoryApplicationService, validator *application.InventoryValidator, cartSync *application.CartStockSynchronizer, query *application.StockQueryService, hub *StockPushHub) *InventoryHandler {
	return &InventoryHandler{service: service, validator: validator, cartSync: cartSync, query: query, hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/stocks/create", h.handleCreateStock)
	mux.HandleFunc("/stocks/reserve", h.handleReserveStock)
	mux.HandleFunc("/stocks/release", h.handleReleaseStock)
	mux.HandleFunc("/stocks/commit", h.handleCommitStock)
	mux.HandleFunc("/stocks/restock", h.handleRestock)
	mux.HandleFunc("/stocks/levels", h.handleGetStockLevels)
	mux.HandleFunc("/stocks/validate", h.handleValidate)
	mux.HandleFunc("/carts/sync", h.handleSyncCart)

	if h.hub != nil {
		mux.HandleFunc("/ws/stocks", h.hub.ServeWs)
	}
}

type createStockRequest struct {
	ProductID         string `json:"productId"`
	TotalQuantity     int64  `json:"totalQuantity"`
	LowStockThreshold int64  `json:"lowStockThreshold"`
}

func (h *InventoryHandler) handleCreateStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req createStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		http.Error(w, "productId is required", http.StatusBadRequest)
		return
	}

	if err := h.service.CreateStock(ctx, req.ProductID, req.TotalQuantity, req.LowStockThreshold); err != nil {
		stockOperations.WithLabelValues("create", "error").Inc()
		writeDomainError(w, err)
		return
	}
	stockOperations.WithLabelValues("create", "ok").Inc()
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

type reserveStockRequest struct {
	ProductID string `json:"productId"`
	SessionID string `json:"sessionId"`
	Quantity  int64  `json:"quantity"`
}

func (h *InventoryHandler) handleReserveStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req reserveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reservation, err := h.service.ReserveStock(ctx, req.ProductID, req.SessionID, req.Quantity)
	if err != nil {
		// 库存不足要把实际可用量带回去，前端据此提示用户调整数量
		if insufficient, ok := domain.IsInsufficientStock(err); ok {
			stockOperations.WithLabelValues("reserve", "insufficient").Inc()
			insufficientStockRejections.Inc()
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     "INSUFFICIENT_STOCK",
				"productId": insufficient.ProductID,
				"requested": insufficient.Requested,
				"available": insufficient.Available,
			})
			return
		}
		stockOperations.WithLabelValues("reserve", "error").Inc()
		writeDomainError(w, err)
		return
	}

	stockOperations.WithLabelValues("reserve", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservationId": reservation.ID,
		"expiresAt":     reservation.ExpiresAt,
	})
}

type releaseStockRequest struct {
	ProductID string `json:"productId"`
	SessionID string `json:"sessionId"`
	Quantity  int64  `json:"quantity"` // <= 0 释放该会话的全部预留
}

func (h *InventoryHandler) handleReleaseStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req releaseStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	released, err := h.service.ReleaseStock(ctx, req.ProductID, req.SessionID, req.Quantity)
	if err != nil {
		stockOperations.WithLabelValues("release", "error").Inc()
		writeDomainError(w, err)
		return
	}
	stockOperations.WithLabelValues("release", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"released": released})
}

type commitStockRequest struct {
	ProductID string `json:"productId"`
	SessionID string `json:"sessionId"`
	Quantity  int64  `json:"quantity"`
}

func (h *InventoryHandler) handleCommitStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req commitStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.CommitStock(ctx, req.ProductID, req.SessionID, req.Quantity); err != nil {
		stockOperations.WithLabelValues("commit", "error").Inc()
		writeDomainError(w, err)
		return
	}
	stockOperations.WithLabelValues("commit", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type restockRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func (h *InventoryHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Restock(ctx, req.ProductID, req.Quantity); err != nil {
		stockOperations.WithLabelValues("restock", "error").Inc()
		writeDomainError(w, err)
		return
	}
	stockOperations.WithLabelValues("restock", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleGetStockLevels GET /stocks/levels?ids=p1,p2,p3
func (h *InventoryHandler) handleGetStockLevels(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	ids := r.URL.Query().Get("ids")
	if ids == "" {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}

	levels, err := h.query.GetStockLevels(ctx, strings.Split(ids, ","))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": levels})
}

type validateRequest struct {
	Items []domain.CartItem `json:"items"`
}

func (h *InventoryHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.validator.Validate(ctx, req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type syncCartRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *InventoryHandler) handleSyncCart(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req syncCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	result, err := h.cartSync.Sync(ctx, req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// extractTraceContext 从请求头恢复上游的追踪上下文
func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// writeDomainError 按错误类型映射 HTTP 状态码
func writeDomainError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrStockRecordExists):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrStorageUnavailable):
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
