// Package newsapi は NewsAPI (newsapi.org) のトップニュース取得クライアントを提供する。
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jinford/news-rag/internal/core/article"
	"github.com/jinford/news-rag/internal/core/ingestion"
)

const (
	// DefaultBaseURL は NewsAPI のエンドポイント
	DefaultBaseURL = "https://newsapi.org/v2"

	// DefaultCountry はトップニュース取得対象の国コード
	DefaultCountry = "us"

	// DefaultTimeout は HTTP リクエストのタイムアウト
	DefaultTimeout = 30 * time.Second
)

// Client は NewsAPI クライアント
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	country    string
	logger     *slog.Logger
}

type ClientOption func(*Client)

// WithBaseURL はエンドポイントを上書きする
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithCountry は対象の国コードを上書きする
func WithCountry(country string) ClientOption {
	return func(c *Client) {
		if country != "" {
			c.country = country
		}
	}
}

// WithHTTPClient は HTTP クライアントを差し替える
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger は Client にロガーを設定する
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		country:    DefaultCountry,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse は NewsAPI のレスポンス。エラー時は code と message が入る
type apiResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []apiArticle `json:"articles"`
}

type apiArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// TopHeadlines はトップニュースを 1 ページ分取得する
func (c *Client) TopHeadlines(ctx context.Context, page, pageSize int) ([]*article.Article, int, error) {
	endpoint := fmt.Sprintf("%s/top-headlines", c.baseURL)

	query := url.Values{}
	query.Set("country", c.country)
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("news api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read news api response: %w", err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, 0, fmt.Errorf("invalid news api response (status %d): %w", resp.StatusCode, err)
	}

	if decoded.Status != "ok" {
		return nil, 0, fmt.Errorf("news api error (status %d, code %q): %s", resp.StatusCode, decoded.Code, decoded.Message)
	}

	articles := make([]*article.Article, 0, len(decoded.Articles))
	for _, a := range decoded.Articles {
		mapped, ok := c.mapArticle(a)
		if !ok {
			continue
		}
		articles = append(articles, mapped)
	}

	return articles, decoded.TotalResults, nil
}

// mapArticle はレスポンスの記事をドメインの記事へ写像する。
// URL かタイトルを欠く記事は取り込みようがないため捨てる
func (c *Client) mapArticle(a apiArticle) (*article.Article, bool) {
	if a.URL == "" || a.Title == "" {
		return nil, false
	}

	mapped := &article.Article{
		SourceID:    a.Source.ID,
		SourceName:  a.Source.Name,
		Author:      a.Author,
		Title:       a.Title,
		Description: a.Description,
		URL:         a.URL,
		URLToImage:  a.URLToImage,
		Content:     a.Content,
	}

	if a.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			mapped.PublishedAt = &t
		} else {
			c.logger.Warn("publishedAt をパースできません", "url", a.URL, "publishedAt", a.PublishedAt)
		}
	}

	return mapped, true
}

// インターフェース実装の確認
var _ ingestion.NewsProvider = (*Client)(nil)
