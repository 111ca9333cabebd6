package newsscraping

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

const newsBaseURL = "https://data.alpaca.markets/v1beta1/news"

type NewsArticle struct {
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Symbols     []string  `json:"symbols"`
	PublishedAt time.Time `json:"created_at"`
}

type Client struct {
	apiKey    string
	secretKey string
	client    *http.Client
}

func NewClient() *Client {
	return &Client{
		apiKey:    os.Getenv("ALPACA_API_KEY"),
		secretKey: os.Getenv("ALPACA_API_SECRET"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchNews returns the most recent articles mentioning a symbol, newest
// first, up to limit.
func (c *Client) FetchNews(symbol string, limit int) ([]NewsArticle, error) {
	if limit <= 0 {
		limit = 10
	}

	q := url.Values{}
	q.Set("symbols", symbol)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("sort", "desc")

	req, err := http.NewRequest("GET", newsBaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news request returned status %d", resp.StatusCode)
	}

	var payload struct {
		News []NewsArticle `json:"news"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode news response: %w", err)
	}

	return payload.News, nil
}
