package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lokapasar/backend-lapak/internal/common"
	"github.com/lokapasar/backend-lapak/internal/store"
)

// Handler exposes buyer-facing order reads.
type Handler struct {
	Q *store.Queries
}

// View is the serialised form of one shop order.
type View struct {
	ID              string          `json:"id"`
	HumanOrderID    string          `json:"humanOrderId"`
	ShopID          string          `json:"shopId"`
	ShopName        string          `json:"shopName"`
	Subtotal        int64           `json:"subtotal"`
	Discount        int64           `json:"discount"`
	Shipping        int64           `json:"shipping"`
	Tax             int64           `json:"tax"`
	Total           int64           `json:"total"`
	CouponCode      string          `json:"couponCode,omitempty"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentStatus   string          `json:"paymentStatus"`
	OrderStatus     string          `json:"orderStatus"`
	FailureReason   string          `json:"failureReason,omitempty"`
	GatewayOrderID  string          `json:"gatewayOrderId,omitempty"`
	ShippingAddress json.RawMessage `json:"shippingAddress,omitempty"`
	Items           []ItemView      `json:"items,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ItemView is the serialised form of one order line snapshot.
type ItemView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int32  `json:"qty"`
	Subtotal  int64  `json:"subtotal"`
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.caller(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	orders, err := h.Q.ListOrdersByUser(r.Context(), store.ListOrdersByUserParams{
		UserID: uid,
		Limit:  int32(perPage),
		Offset: int32((page - 1) * perPage),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]View, 0, len(orders))
	for _, o := range orders {
		views = append(views, toView(o, nil))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"meta": map[string]any{"page": page, "perPage": perPage},
	})
}

// Get handles GET /api/v1/orders/{orderId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.caller(w, r)
	if !ok {
		return
	}
	orderID, err := store.ToUUID(chi.URLParam(r, "orderId"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid order id"))
		return
	}
	o, err := h.Q.GetOrderByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.WriteError(w, common.NotFound("order not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	if !store.UUIDEqual(o.UserID, uid) {
		common.WriteError(w, common.NotFound("order not found"))
		return
	}
	items, err := h.Q.ListOrderItems(r.Context(), o.ID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, toView(o, items))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order handler not configured", nil)
		return pgtype.UUID{}, false
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return pgtype.UUID{}, false
	}
	uid, err := store.ToUUID(userID)
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid user id"))
		return pgtype.UUID{}, false
	}
	return uid, true
}

func toView(o store.Order, items []store.OrderItem) View {
	v := View{
		ID:              store.UUIDString(o.ID),
		HumanOrderID:    o.HumanID,
		ShopID:          store.UUIDString(o.ShopID),
		ShopName:        o.ShopName,
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		Shipping:        o.Shipping,
		Tax:             o.Tax,
		Total:           o.Total,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		OrderStatus:     o.OrderStatus,
		ShippingAddress: json.RawMessage(o.ShippingAddress),
	}
	if o.CouponCode.Valid {
		v.CouponCode = o.CouponCode.String
	}
	if o.FailureReason.Valid {
		v.FailureReason = o.FailureReason.String
	}
	if o.GatewayOrderID.Valid {
		v.GatewayOrderID = o.GatewayOrderID.String
	}
	if o.PaidAt.Valid {
		t := o.PaidAt.Time
		v.PaidAt = &t
	}
	if o.CreatedAt.Valid {
		v.CreatedAt = o.CreatedAt.Time
	}
	for _, item := range items {
		iv := ItemView{
			ProductID: store.UUIDString(item.ProductID),
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Qty:       item.Qty,
			Subtotal:  item.Subtotal,
		}
		if item.ImageURL.Valid {
			iv.ImageURL = item.ImageURL.String
		}
		v.Items = append(v.Items, iv)
	}
	return v
}
