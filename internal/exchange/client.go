// Package exchange reads account data from the Coinbase Advanced Trade
// REST API.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/pnlledger/internal/domain"
)

const (
	fillsPath    = "/api/v3/brokerage/orders/historical/fills"
	accountsPath = "/api/v3/brokerage/accounts"
	pageLimit    = 100
)

// Credentials are the legacy API key triple used for HMAC signing.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Client is a signed REST client for the endpoints the ledger needs.
type Client struct {
	http   *resty.Client
	creds  Credentials
	quote  string
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a Client for baseURL. Fills quoted in anything other
// than quoteCurrency are skipped.
func NewClient(baseURL string, creds Credentials, quoteCurrency string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && (resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500)
		})
	return &Client{
		http:   c,
		creds:  creds,
		quote:  strings.ToUpper(quoteCurrency),
		logger: logger,
		now:    time.Now,
	}
}

// Sign returns the base64 HMAC-SHA256 of timestamp+method+path+body keyed
// with secret.
func Sign(secret, timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// newRequest builds a GET request for path with authentication headers.
// Query parameters are not part of the signed path.
func (c *Client) newRequest(ctx context.Context, path string) *resty.Request {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	return c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("CB-ACCESS-KEY", c.creds.APIKey).
		SetHeader("CB-ACCESS-SIGN", Sign(c.creds.APISecret, ts, http.MethodGet, path, "")).
		SetHeader("CB-ACCESS-TIMESTAMP", ts).
		SetHeader("CB-ACCESS-PASSPHRASE", c.creds.Passphrase)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	if resp.IsSuccess() {
		return nil
	}
	body := strings.TrimSpace(resp.String())
	if resp.StatusCode() == http.StatusUnauthorized {
		return errors.Errorf("authentication failed (401): check API key, secret, passphrase and IP allowlist: %s", body)
	}
	return errors.Errorf("http %d: %s", resp.StatusCode(), body)
}

type fillDTO struct {
	EntryID     string `json:"entry_id"`
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	TradeTime   string `json:"trade_time"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Commission  string `json:"commission"`
	ProductID   string `json:"product_id"`
	Side        string `json:"side"`
	SizeInQuote bool   `json:"size_in_quote"`
}

type fillsPage struct {
	Fills  []fillDTO `json:"fills"`
	Cursor string    `json:"cursor"`
}

// ListFills pages through the account's fill history and returns the
// fills in the configured quote currency, oldest first.
func (c *Client) ListFills(ctx context.Context) ([]domain.Fill, error) {
	var (
		fills  []domain.Fill
		cursor string
	)
	seen := make(map[string]struct{})
	for {
		var page fillsPage
		req := c.newRequest(ctx, fillsPath).
			SetQueryParam("limit", strconv.Itoa(pageLimit)).
			SetResult(&page)
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		if err := checkResponse(req.Get(fillsPath)); err != nil {
			return nil, errors.Wrap(err, "list fills")
		}

		for _, dto := range page.Fills {
			f, quote, err := dto.toFill()
			if err != nil {
				return nil, errors.Wrapf(err, "fill %s", dto.EntryID)
			}
			if quote != c.quote {
				c.logger.Warn("skipping fill in foreign quote currency",
					slog.String("fill_id", f.ID),
					slog.String("product_id", dto.ProductID),
					slog.String("quote", quote),
					slog.String("expected_quote", c.quote),
				)
				continue
			}
			fills = append(fills, f)
		}

		if page.Cursor == "" || len(page.Fills) == 0 {
			break
		}
		if _, dup := seen[page.Cursor]; dup {
			return nil, errors.Errorf("list fills: cursor %q repeated", page.Cursor)
		}
		seen[page.Cursor] = struct{}{}
		cursor = page.Cursor
	}

	slices.SortStableFunc(fills, func(a, b domain.Fill) int {
		return a.ExecutedAt.Compare(b.ExecutedAt)
	})
	if fills == nil {
		fills = []domain.Fill{}
	}
	c.logger.Info("fetched fills", slog.Int("count", len(fills)))
	return fills, nil
}

func (d fillDTO) toFill() (domain.Fill, string, error) {
	base, quote, err := domain.SplitProduct(d.ProductID)
	if err != nil {
		return domain.Fill{}, "", err
	}
	side, err := domain.ParseSide(d.Side)
	if err != nil {
		return domain.Fill{}, "", err
	}
	price, err := domain.ParseAmount(d.Price)
	if err != nil {
		return domain.Fill{}, "", errors.Wrap(err, "price")
	}
	size, err := domain.ParseAmount(d.Size)
	if err != nil {
		return domain.Fill{}, "", errors.Wrap(err, "size")
	}
	fee := decimal.Zero
	if d.Commission != "" {
		if fee, err = domain.ParseAmount(d.Commission); err != nil {
			return domain.Fill{}, "", errors.Wrap(err, "commission")
		}
	}
	executed, err := time.Parse(time.RFC3339Nano, d.TradeTime)
	if err != nil {
		return domain.Fill{}, "", errors.Wrap(err, "trade_time")
	}

	qty := size
	if d.SizeInQuote {
		if !price.IsPositive() {
			return domain.Fill{}, "", errors.Errorf("size in quote with price %s", price)
		}
		qty = size.DivRound(price, domain.Scale)
	}

	id := d.EntryID
	if id == "" {
		id = d.TradeID
	}
	return domain.Fill{
		ID:         id,
		OrderID:    d.OrderID,
		Asset:      base,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Fee:        fee,
		ExecutedAt: executed.UTC(),
	}, quote, nil
}

// Account is one wallet balance.
type Account struct {
	UUID      string
	Name      string
	Currency  string
	Available decimal.Decimal
}

type accountsPage struct {
	Accounts []struct {
		UUID             string `json:"uuid"`
		Name             string `json:"name"`
		Currency         string `json:"currency"`
		AvailableBalance struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"available_balance"`
	} `json:"accounts"`
	HasNext bool   `json:"has_next"`
	Cursor  string `json:"cursor"`
}

// ListAccounts returns every account balance. It doubles as the
// credentials check.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	accounts := []Account{}
	cursor := ""
	for {
		var page accountsPage
		req := c.newRequest(ctx, accountsPath).
			SetQueryParam("limit", strconv.Itoa(pageLimit)).
			SetResult(&page)
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		if err := checkResponse(req.Get(accountsPath)); err != nil {
			return nil, errors.Wrap(err, "list accounts")
		}
		for _, a := range page.Accounts {
			available := decimal.Zero
			if a.AvailableBalance.Value != "" {
				v, err := domain.ParseAmount(a.AvailableBalance.Value)
				if err != nil {
					return nil, errors.Wrapf(err, "account %s balance", a.UUID)
				}
				available = v
			}
			accounts = append(accounts, Account{
				UUID:      a.UUID,
				Name:      a.Name,
				Currency:  a.Currency,
				Available: available,
			})
		}
		if !page.HasNext || page.Cursor == "" || page.Cursor == cursor {
			break
		}
		cursor = page.Cursor
	}
	return accounts, nil
}
