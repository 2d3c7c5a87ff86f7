package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResolvesTypedPayload(t *testing.T) {
	orderID := uuid.New()
	env, err := New(TypeOrderCreated, OrderCreatedData{
		OrderID:     orderID,
		UserID:      "user-1",
		Items:       []OrderLine{{SkuID: "SKU-A", Quantity: 2, Price: decimal.RequireFromString("19.99")}},
		TotalAmount: decimal.RequireFromString("39.98"),
	}, uuid.New(), &Identity{UserID: "user-1", Roles: []string{"buyer"}})
	require.NoError(t, err)

	raw, err := env.Marshal()
	require.NoError(t, err)

	decoded, payload, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.TraceID, decoded.TraceID)
	assert.Equal(t, 1, decoded.Version)
	require.NotNil(t, decoded.Identity)
	assert.Equal(t, "user-1", decoded.Identity.UserID)

	data, ok := payload.(*OrderCreatedData)
	require.True(t, ok)
	assert.Equal(t, orderID, data.OrderID)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "19.99", data.Items[0].Price.StringFixed(2))
}

func TestDecodeUnknownTypeReturnsTypedError(t *testing.T) {
	env, err := New("SomethingNew", map[string]string{"k": "v"}, uuid.New(), nil)
	require.NoError(t, err)
	raw, err := env.Marshal()
	require.NoError(t, err)

	_, _, err = Decode(raw)
	var unknown UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "SomethingNew", unknown.EventType)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, _, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestNewAssignsTraceIDWhenMissing(t *testing.T) {
	env, err := New(TypePaymentSucceeded, PaymentSucceededData{OrderID: uuid.New(), PaymentID: uuid.New()}, uuid.Nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, env.TraceID)
	assert.NotEqual(t, uuid.Nil, env.EventID)
}

func TestRoutingKeyFor(t *testing.T) {
	assert.Equal(t, RoutingKeyOrderCreated, RoutingKeyFor(TypeOrderCreated))
	assert.Equal(t, RoutingKeyInventoryReleaseRequested, RoutingKeyFor(TypeInventoryReleaseRequested))
	assert.Equal(t, "", RoutingKeyFor("Nope"))
}
