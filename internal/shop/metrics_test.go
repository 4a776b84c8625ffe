package shop

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedStore_Contract(t *testing.T) {
	runStoreContract(t, storeHarness{
		open: func(*testing.T) Store {
			return Instrument(NewMemStore(), NewStoreMetrics(prometheus.NewRegistry()))
		},
		danglingID: "p_gone",
	})
}

func TestInstrumentedStore_CountsOutcomes(t *testing.T) {
	ctx := context.Background()
	m := NewStoreMetrics(prometheus.NewRegistry())
	s := Instrument(NewMemStore(), m)

	p, err := s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "40"))
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, "Shirts", "Oxford", dec(t, "-1"))
	require.Error(t, err)

	_, _, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	_, _, err = s.GetProduct(ctx, "p_missing")
	require.NoError(t, err)

	_, err = s.AddToCart(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, m.Operations.WithLabelValues("create_product", outcomeOK)))
	assert.Equal(t, 1.0, counterValue(t, m.Operations.WithLabelValues("create_product", outcomeError)))
	assert.Equal(t, 1.0, counterValue(t, m.Operations.WithLabelValues("get_product", outcomeOK)))
	assert.Equal(t, 1.0, counterValue(t, m.Operations.WithLabelValues("get_product", outcomeNotFound)))
	assert.Equal(t, 1.0, counterValue(t, m.Operations.WithLabelValues("add_to_cart", outcomeOK)))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}
