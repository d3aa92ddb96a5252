package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type orderPlaced struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

func (orderPlaced) EventName() string  { return "order.placed" }
func (orderPlaced) SchemaVersion() int { return 3 }

func TestRegistryDecodesIntoRegisteredType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(orderPlaced{}))

	p, err := reg.Decode("order.placed", []byte(`{"order_id":"o-1","amount":500}`))
	require.NoError(t, err)

	placed, ok := p.(orderPlaced)
	require.True(t, ok)
	require.Equal(t, "o-1", placed.OrderID)
	require.Equal(t, int64(500), placed.Amount)
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(orderPlaced{}))
	require.Error(t, reg.Register(orderPlaced{}))
}

func TestRegistryUnknownName(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Decode("order.cancelled", []byte(`{}`))
	require.Error(t, err)
}

func TestRegistryLatestVersion(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(orderPlaced{}))

	v, ok := reg.LatestVersion("order.placed")
	require.True(t, ok)
	require.Equal(t, 3, v)

	_, ok = reg.LatestVersion("order.cancelled")
	require.False(t, ok)
}
