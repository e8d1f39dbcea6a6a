// Package news 提供了获取农业新闻头条的客户端。
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"amazing-kissan-go/internal/config"
)

// Article 是一条新闻头条。
type Article struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourceName string `json:"sourceName"`
}

// Client 封装了对 NewsAPI 的查询。
type Client struct {
	cfg    config.NewsConfig
	client *http.Client
}

// NewClient 创建一个新闻客户端。
func NewClient(cfg config.NewsConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type apiResponse struct {
	Articles []struct {
		Title  string `json:"title"`
		URL    string `json:"url"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// TopHeadlines 按关键词查询最新的农业新闻。
// API key 缺失或上游失败时返回空列表，不向上抛错。
func (c *Client) TopHeadlines(ctx context.Context, query string) []Article {
	if c.cfg.APIKey == "" {
		return []Article{}
	}
	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 5
	}

	endpoint := fmt.Sprintf("%s/everything?q=%s&language=en&pageSize=%d&sortBy=publishedAt&apiKey=%s",
		c.cfg.BaseURL, url.QueryEscape(query), pageSize, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return []Article{}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return []Article{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return []Article{}
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return []Article{}
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		articles = append(articles, Article{
			Title:      a.Title,
			URL:        a.URL,
			SourceName: a.Source.Name,
		})
	}
	return articles
}
