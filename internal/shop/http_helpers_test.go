package shop_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Emporium/internal/shop"
)

type envelope struct {
	Success   bool            `json:"success"`
	Count     *int            `json:"count"`
	Total     *float64        `json:"total"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Error     string          `json:"error"`
	RequestID string          `json:"request_id"`
}

type apiProduct struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
}

type apiCartLine struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	Product   *apiProduct `json:"product"`
}

func newTS(t *testing.T, store shop.Store, deps shop.HTTPDeps) *httptest.Server {
	t.Helper()

	deps.Log = zap.NewNop()
	if deps.Service == "" {
		deps.Service = "emporium"
	}
	ts := httptest.NewServer(shop.NewHandler(&shop.Server{Store: store, Log: zap.NewNop()}, deps))
	t.Cleanup(ts.Close)
	return ts
}

func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func do(t *testing.T, method, url string, body io.Reader, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func doJSON(t *testing.T, method, url string, body any, token string) (int, envelope) {
	t.Helper()

	var r io.Reader
	headers := map[string]string{}
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
		headers["Content-Type"] = "application/json"
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	resp, raw := do(t, method, url, r, headers)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return resp.StatusCode, env
}

func postForm(t *testing.T, target string, form url.Values) (*http.Response, []byte) {
	t.Helper()
	return do(t, http.MethodPost, target, strings.NewReader(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out), "data: %s", env.Data)
}

func seed(t *testing.T, s shop.Store, category, name, price string) shop.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), category, name, decimal.RequireFromString(price))
	require.NoError(t, err)
	return p
}

var errDown = errors.New("datastore down")

// brokenStore fails every operation the handlers use.
type brokenStore struct{ shop.Store }

func (brokenStore) Ping(context.Context) error { return errDown }
func (brokenStore) ListProducts(context.Context) ([]shop.Product, error) {
	return nil, errDown
}
func (brokenStore) ListProductsByCategory(context.Context, string) ([]shop.Product, error) {
	return nil, errDown
}
func (brokenStore) GetProduct(context.Context, string) (shop.Product, bool, error) {
	return shop.Product{}, false, errDown
}
func (brokenStore) CreateProduct(context.Context, string, string, decimal.Decimal) (shop.Product, error) {
	return shop.Product{}, errDown
}
func (brokenStore) UpdateProduct(context.Context, string, shop.ProductPatch) (shop.Product, bool, error) {
	return shop.Product{}, false, errDown
}
func (brokenStore) DeleteProduct(context.Context, string) (bool, error) { return false, errDown }
func (brokenStore) ListCart(context.Context) ([]shop.CartLine, error) {
	return nil, errDown
}
func (brokenStore) AddToCart(context.Context, string) (shop.CartEntry, error) {
	return shop.CartEntry{}, errDown
}
func (brokenStore) RemoveFromCart(context.Context, string) error { return errDown }
func (brokenStore) ClearCart(context.Context) error              { return errDown }
func (brokenStore) CartTotal(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errDown
}
