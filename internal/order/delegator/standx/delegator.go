package standx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"main/internal/model"
	"main/pkg/exception"

	"github.com/bytedance/sonic"
	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_standxBaseUrl = "https://perps.standx.com"

	defaultCallTimeout = 15 * time.Second
	retryAttempts      = 3
	retryDelay         = 500 * time.Millisecond
)

// Delegator is the request/response trading client. The signing handshake
// lives in the transport layer; this client only attaches the bearer token
// and speaks the venue's JSON API.
type Delegator struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewDelegator builds a trading client. baseURL may be empty to use the
// production endpoint.
func NewDelegator(client *http.Client, baseURL, token string) *Delegator {
	if client == nil {
		client = &http.Client{Timeout: defaultCallTimeout}
	}
	if baseURL == "" {
		baseURL = _standxBaseUrl
	}

	return &Delegator{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// PlaceOrderInput describes one new order.
type PlaceOrderInput struct {
	Symbol      string
	Side        model.OrderSide
	Type        model.OrderType
	Qty         string
	Price       string
	TimeInForce string
	ReduceOnly  bool
	MarginMode  string
	Leverage    int
	ClOrdID     string
}

type placeOrderBody struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"order_type"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"time_in_force"`
	ReduceOnly  bool   `json:"reduce_only"`
	MarginMode  string `json:"margin_mode,omitempty"`
	Leverage    int    `json:"leverage,omitempty"`
	ClOrdID     string `json:"cl_ord_id,omitempty"`
}

// NewOrder places a limit or market order and returns the venue's async
// acknowledgment. The real order state arrives on the push channel.
func (d *Delegator) NewOrder(ctx context.Context, in PlaceOrderInput) (ResponseOrderAction, error) {
	var out ResponseOrderAction

	if in.Symbol == "" || !in.Side.IsAvailable() || !in.Type.IsAvailable() || in.Qty == "" {
		return out, exception.ErrOrderInvalidRequest
	}
	if in.Type == model.OrderTypeLimit && in.Price == "" {
		return out, exception.ErrOrderInvalidRequest
	}

	tif := in.TimeInForce
	if tif == "" {
		if in.Type == model.OrderTypeMarket {
			tif = "ioc"
		} else {
			tif = "gtc"
		}
	}

	body := placeOrderBody{
		Symbol:      in.Symbol,
		Side:        in.Side.String(),
		OrderType:   in.Type.String(),
		Qty:         in.Qty,
		Price:       in.Price,
		TimeInForce: tif,
		ReduceOnly:  in.ReduceOnly,
		MarginMode:  in.MarginMode,
		Leverage:    in.Leverage,
		ClOrdID:     in.ClOrdID,
	}

	if err := d.call(ctx, http.MethodPost, "/api/new_order", nil, body, &out); err != nil {
		return out, err
	}
	return out, nil
}

// CancelOrder cancels by exchange id, client id, or both. At least one
// identity is required.
func (d *Delegator) CancelOrder(ctx context.Context, orderID int64, clOrdID string) (ResponseOrderAction, error) {
	var out ResponseOrderAction

	if orderID == 0 && clOrdID == "" {
		return out, exception.ErrOrderMissingIdentity
	}

	body := map[string]any{}
	if orderID != 0 {
		body["order_id"] = orderID
	}
	if clOrdID != "" {
		body["cl_ord_id"] = clOrdID
	}

	if err := d.call(ctx, http.MethodPost, "/api/cancel_order", nil, body, &out); err != nil {
		return out, err
	}
	return out, nil
}

// QueryOpenOrders fetches the authoritative open-order list.
func (d *Delegator) QueryOpenOrders(ctx context.Context, symbol string, limit int) ([]model.Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp ResponseOpenOrders
	if err := d.call(ctx, http.MethodGet, "/api/query_open_orders", params, nil, &resp); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(resp.Result))
	for _, row := range resp.Result {
		orders = append(orders, row.Normalize())
	}
	return orders, nil
}

// QueryPositions fetches current positions, optionally filtered by symbol.
func (d *Delegator) QueryPositions(ctx context.Context, symbol string) ([]model.Position, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var rows []ResponsePosition
	if err := d.call(ctx, http.MethodGet, "/api/query_positions", params, nil, &rows); err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, row.Normalize())
	}
	return positions, nil
}

// QueryBalance fetches the unified balance snapshot. Accounts that never
// funded answer 404; those report the zero snapshot instead of an error.
func (d *Delegator) QueryBalance(ctx context.Context) (model.Balance, error) {
	var balance model.Balance
	err := d.call(ctx, http.MethodGet, "/api/query_balance", nil, nil, &balance)
	if err == nil {
		return balance, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound && strings.Contains(apiErr.Body, "user balance not found") {
		logs.Info("no balance record yet, reporting zero snapshot")
		return model.ZeroBalance(), nil
	}
	return balance, err
}

// QuerySymbolPrice fetches the public price snapshot for one symbol.
func (d *Delegator) QuerySymbolPrice(ctx context.Context, symbol string) (ResponseSymbolPrice, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp ResponseSymbolPrice
	if err := d.call(ctx, http.MethodGet, "/api/query_symbol_price", params, nil, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// call performs one API request with a bounded fixed-delay retry. Only
// transport-level failures retry; business errors surface immediately.
func (d *Delegator) call(ctx context.Context, method, path string, params url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := sonic.ConfigFastest.Marshal(body)
		if err != nil {
			return yerrors.Wrap(err, "marshal request body")
		}
		payload = encoded
	}

	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			logs.Warnf("retrying %s %s, attempt %d, err: %+v", method, path, attempt+1, lastErr)
		}

		err := d.doOnce(ctx, method, path, params, payload, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return yerrors.Wrapf(lastErr, "%s %s failed after %d attempts", method, path, retryAttempts)
}

func (d *Delegator) doOnce(ctx context.Context, method, path string, params url.Values, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	endpoint := d.baseURL + path
	if len(params) != 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return yerrors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return yerrors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out); err != nil {
		return yerrors.Wrap(err, "decode response body")
	}
	return nil
}

// isRetryable classifies transport failures (timeouts, connection drops)
// apart from business rejections.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
