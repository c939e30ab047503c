// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source fetches help-center articles from the content API.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/optibot/kbsync/internal/httputil"
	"github.com/optibot/kbsync/pkg/types"
)

// Client fetches the full article listing from a help-center API.
// A fetch error is returned to the caller instead of an empty list so a
// transient outage is never mistaken for "zero articles exist".
type Client struct {
	HTTPClient *http.Client
	Config     types.SourceConfig

	// BaseURL overrides the endpoint derived from Config.Domain.
	// Tests substitute an httptest server.
	BaseURL string
}

const defaultPageSize = 100

func (c *Client) endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s/api/v2/help_center/articles.json", c.Config.Domain)
}

// FetchAll drains all pages of the article listing. Each returned article
// carries its upstream modification marker: the response Last-Modified
// header when present, otherwise the article's updated_at field.
func (c *Client) FetchAll(ctx context.Context) ([]types.Article, error) {
	pageSize := c.Config.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	params := url.Values{"page[size]": {fmt.Sprintf("%d", pageSize)}}
	reqURL := c.endpoint() + "?" + params.Encode()

	var articles []types.Article
	for reqURL != "" {
		page, next, err := c.fetchPage(ctx, reqURL)
		if err != nil {
			return nil, err
		}
		articles = append(articles, page...)
		if next == reqURL {
			break
		}
		reqURL = next
	}
	return articles, nil
}

// articlePage covers both cursor pagination (meta/links) and the older
// offset pagination (next_page).
type articlePage struct {
	Articles []sourceArticle `json:"articles"`
	Meta     struct {
		HasMore     bool   `json:"has_more"`
		AfterCursor string `json:"after_cursor"`
	} `json:"meta"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
	NextPage string `json:"next_page"`
}

type sourceArticle struct {
	ID        json.Number `json:"id"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	HTMLURL   string      `json:"html_url"`
	UpdatedAt string      `json:"updated_at"`
}

func (c *Client) fetchPage(ctx context.Context, reqURL string) ([]types.Article, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.Config.UserAgent)
	if c.Config.Email != "" && c.Config.APIToken != "" {
		req.SetBasicAuth(c.Config.Email+"/token", c.Config.APIToken)
	}

	resp, err := httputil.DoWithRetry(ctx, c.HTTPClient, req, 0)
	if err != nil {
		return nil, "", fmt.Errorf("help center API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("help center API returned HTTP %d", resp.StatusCode)
	}

	// Response-level Last-Modified is the preferred change marker for
	// every article on this page.
	// An unparseable header is ignored; articles fall back to updated_at.
	var apiLastModified string
	if h := resp.Header.Get("Last-Modified"); h != "" {
		if t, parseErr := http.ParseTime(h); parseErr == nil {
			apiLastModified = t.UTC().Format(time.RFC3339)
		}
	}

	var page articlePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("parsing help center response: %w", err)
	}

	articles := make([]types.Article, 0, len(page.Articles))
	for _, sa := range page.Articles {
		marker := apiLastModified
		if marker == "" {
			marker = sa.UpdatedAt
		}
		articles = append(articles, types.Article{
			ID:           sa.ID.String(),
			Title:        sa.Title,
			Body:         sa.Body,
			HTMLURL:      sa.HTMLURL,
			UpdatedAt:    sa.UpdatedAt,
			LastModified: marker,
		})
	}

	next := ""
	switch {
	case page.Meta.HasMore && page.Links.Next != "":
		next = page.Links.Next
	case page.NextPage != "":
		next = page.NextPage
	}
	return articles, next, nil
}
