package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/crawler"
	"dynamics-archiver-go/internal/proxy"
)

const spaceFeedPath = "/x/polymer/web-dynamic/v1/feed/space"
const detailPath = "/x/polymer/web-dynamic/v1/detail"

// featureFlags mirrors the flags the web client sends; without them the API
// omits opus-style items from the feed.
const featureFlags = "itemOpusStyle,listOnlyfans,opusBigCover,onlyfansVote,forwardListHidden,decorationCard,commentsNewVersion,onlyfansAssetsV2,ugcDelete,onlyfansQaCard"

type Client struct {
	httpClient *resty.Client
	switcher   *proxy.Switcher
	proxyPool  *proxy.Pool
}

func NewClient() *Client {
	switcher := proxy.NewSwitcher()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = switcher.ProxyFunc

	timeoutSec := config.AppConfig.HttpTimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	hc := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(timeoutSec) * time.Second,
	}
	rc := resty.NewWithClient(hc)
	rc.SetBaseURL("https://api.bilibili.com")
	rc.SetHeaders(map[string]string{
		"accept":          "application/json, text/plain, */*",
		"accept-language": "zh-CN,zh;q=0.9,en;q=0.8",
		"referer":         "https://www.bilibili.com/",
		"user-agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	})
	if ck := config.CookieHeader(); ck != "" {
		rc.SetHeader("cookie", ck)
	}

	retryCount := config.AppConfig.HttpRetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	baseMs := config.AppConfig.HttpRetryBaseDelayMs
	if baseMs <= 0 {
		baseMs = 500
	}
	maxMs := config.AppConfig.HttpRetryMaxDelayMs
	if maxMs <= 0 {
		maxMs = 4000
	}
	rc.SetRetryCount(retryCount)
	rc.SetRetryWaitTime(time.Duration(baseMs) * time.Millisecond)
	rc.SetRetryMaxWaitTime(time.Duration(maxMs) * time.Millisecond)
	out := &Client{httpClient: rc, switcher: switcher}
	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return crawler.ShouldRetryError(err)
		}
		if r == nil {
			return true
		}
		code := r.StatusCode()
		if out.proxyPool != nil && crawler.ShouldInvalidateProxyStatus(code) {
			out.proxyPool.InvalidateCurrent()
		}
		if code == http.StatusForbidden && out.proxyPool != nil {
			return true
		}
		return crawler.ShouldRetryStatus(code)
	})

	return out
}

// InitProxyPool attaches a proxy pool. Requests pick up the pool's current
// proxy before each call; without a pool requests go direct.
func (c *Client) InitProxyPool(pool *proxy.Pool) {
	c.proxyPool = pool
}

func (c *Client) ensureProxy(ctx context.Context) error {
	if c.proxyPool == nil || c.switcher == nil {
		return nil
	}
	p, err := c.proxyPool.GetOrRefresh(ctx)
	if err != nil {
		return err
	}
	u, err := p.HTTPURL()
	if err != nil {
		return err
	}
	return c.switcher.Set(u)
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Page is one page of a space feed: items in server order plus the normalized
// cursor for the next request. An empty NextOffset means the feed is exhausted.
type Page struct {
	Items      []map[string]any
	NextOffset string
}

// FetchSpacePage requests one page of an owner's dynamics feed. An empty
// offset omits the parameter, which the API treats as "start from head".
func (c *Client) FetchSpacePage(ctx context.Context, hostMID string, offset string, needTop bool) (Page, error) {
	hostMID = strings.TrimSpace(hostMID)
	if hostMID == "" {
		return Page{}, crawler.Error{Kind: crawler.ErrorKindInvalidInput, Msg: "empty host_mid"}
	}
	if err := c.ensureProxy(ctx); err != nil {
		return Page{}, err
	}

	req := c.httpClient.R().SetContext(ctx).SetQueryParams(map[string]string{
		"host_mid": hostMID,
		"need_top": boolParam(needTop),
		"features": featureFlags,
	})
	if offset != "" {
		req.SetQueryParam("offset", offset)
	}

	var out apiResponse
	resp, err := req.SetResult(&out).Get(spaceFeedPath)
	if err != nil {
		return Page{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		if hint := crawler.DetectRiskHint(resp.String()); hint != "" {
			return Page{}, crawler.NewRiskHintError(spaceFeedPath, hint)
		}
		return Page{}, crawler.NewHTTPStatusError(spaceFeedPath, resp.StatusCode(), resp.String())
	}
	if out.Code != 0 {
		return Page{}, fmt.Errorf("bilibili api error: code=%d message=%s", out.Code, out.Message)
	}
	return parsePage(out.Data)
}

// FetchDetail requests a single dynamic by id and returns the raw item map.
func (c *Client) FetchDetail(ctx context.Context, dynamicID string) (map[string]any, error) {
	dynamicID = strings.TrimSpace(dynamicID)
	if dynamicID == "" {
		return nil, crawler.Error{Kind: crawler.ErrorKindInvalidInput, Msg: "empty dynamic id"}
	}
	if err := c.ensureProxy(ctx); err != nil {
		return nil, err
	}

	var out apiResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"id": dynamicID, "features": featureFlags}).
		SetResult(&out).
		Get(detailPath)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, crawler.NewHTTPStatusError(detailPath, resp.StatusCode(), resp.String())
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("bilibili api error: code=%d message=%s", out.Code, out.Message)
	}

	var data map[string]any
	if err := json.Unmarshal(out.Data, &data); err != nil {
		return nil, err
	}
	// The detail endpoint wraps the item; older responses put it under "card".
	if item, ok := data["item"].(map[string]any); ok {
		return item, nil
	}
	if card, ok := data["card"].(map[string]any); ok {
		return card, nil
	}
	return data, nil
}

func parsePage(raw json.RawMessage) (Page, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Page{}, err
	}
	var page Page
	if items, ok := data["items"].([]any); ok {
		page.Items = make([]map[string]any, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				page.Items = append(page.Items, m)
			}
		}
	}
	page.NextOffset = NormalizeCursor(data["offset"])
	return page, nil
}

func boolParam(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
