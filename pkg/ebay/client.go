// Package ebay is a minimal client for the eBay Browse API, used for
// sold-listing comps during market-search voting and ground-truth resolution.
package ebay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL     = "https://api.ebay.com/buy/browse/v1"
	defaultMarketplace = "EBAY_US"
	defaultLimit       = 25
)

// Client searches eBay listings.
type Client interface {
	SearchSold(ctx context.Context, query string, limit int) ([]Listing, error)
}

// Listing is one search result.
type Listing struct {
	ItemID   string    `json:"item_id"`
	Title    string    `json:"title"`
	Price    float64   `json:"price"`
	Category string    `json:"category,omitempty"`
	SoldAt   time.Time `json:"sold_at,omitempty"`
	URL      string    `json:"url,omitempty"`
}

// PriceSummary reduces listings to the median/low/high comps the consensus
// pipeline consumes. Returns ok=false when there are no priced listings.
func PriceSummary(listings []Listing) (median, low, high float64, sampleSize int, ok bool) {
	var prices []float64
	for _, l := range listings {
		if l.Price > 0 {
			prices = append(prices, l.Price)
		}
	}
	if len(prices) == 0 {
		return 0, 0, 0, 0, false
	}
	sort.Float64s(prices)

	n := len(prices)
	if n%2 == 1 {
		median = prices[n/2]
	} else {
		median = (prices[n/2-1] + prices[n/2]) / 2
	}
	return median, prices[0], prices[n-1], n, true
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithMarketplace overrides the default marketplace header.
func WithMarketplace(id string) Option {
	return func(c *httpClient) {
		c.marketplace = id
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token       string
	baseURL     string
	marketplace string
	http        *http.Client
}

// NewClient creates an eBay Browse API client. token is an OAuth
// application access token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:       token,
		baseURL:     defaultBaseURL,
		marketplace: defaultMarketplace,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// itemSummaryResponse mirrors the subset of the Browse API search payload we
// read.
type itemSummaryResponse struct {
	ItemSummaries []struct {
		ItemID string `json:"itemId"`
		Title  string `json:"title"`
		Price  struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"price"`
		Categories []struct {
			CategoryName string `json:"categoryName"`
		} `json:"categories"`
		ItemEndDate time.Time `json:"itemEndDate"`
		ItemWebURL  string    `json:"itemWebUrl"`
	} `json:"itemSummaries"`
}

func (c *httpClient) SearchSold(ctx context.Context, query string, limit int) ([]Listing, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("filter", "soldItems:true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/item_summary/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "ebay: create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplace)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "ebay: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ebay: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("ebay: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result itemSummaryResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "ebay: unmarshal response")
	}

	listings := make([]Listing, 0, len(result.ItemSummaries))
	for _, s := range result.ItemSummaries {
		price, err := strconv.ParseFloat(s.Price.Value, 64)
		if err != nil {
			// Skip unpriced results rather than failing the whole search.
			continue
		}
		l := Listing{
			ItemID: s.ItemID,
			Title:  s.Title,
			Price:  price,
			SoldAt: s.ItemEndDate,
			URL:    s.ItemWebURL,
		}
		if len(s.Categories) > 0 {
			l.Category = s.Categories[0].CategoryName
		}
		listings = append(listings, l)
	}
	return listings, nil
}
