package perscom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/formcache"
	"github.com/unkn0wn-root/formcache/directory"
)

const (
	DefaultBaseURL = "https://api.perscom.io/v2"

	defaultTimeout  = 30 * time.Second
	defaultRetryMax = 3
	maxErrorBody    = 4 << 10
)

type Config struct {
	BaseURL   string // "" => DefaultBaseURL
	APIKey    string
	PerscomID string

	Timeout      time.Duration // per attempt; 0 => 30s
	QPS          int           // client-side rate limit; 0 = unlimited
	RetryMax     int           // 0 => 3; < 0 disables retries
	RetryWaitMin time.Duration // 0 => retryablehttp default
	RetryWaitMax time.Duration // 0 => retryablehttp default

	// FollowPages reads every page up to meta.last_page. The limit passed
	// to ListForms is then the page size.
	FollowPages bool

	Logger formcache.Logger
}

// Client lists forms from PERSCOM. It is safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	perscomID   string
	followPages bool
	http        *retryablehttp.Client
	limiter     *rate.Limiter
	log         formcache.Logger
}

var _ directory.Source = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoBaseURL, cfg.BaseURL)
	}

	log := cfg.Logger
	if log == nil {
		log = formcache.NopLogger{}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: coalesceDuration(cfg.Timeout, defaultTimeout)}
	rc.Logger = leveledLogger{log}
	switch {
	case cfg.RetryMax < 0:
		rc.RetryMax = 0
	case cfg.RetryMax == 0:
		rc.RetryMax = defaultRetryMax
	default:
		rc.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), cfg.QPS)
	}

	return &Client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		perscomID:   cfg.PerscomID,
		followPages: cfg.FollowPages,
		http:        rc,
		limiter:     limiter,
		log:         log,
	}, nil
}

// ListForms returns forms in the order the API lists them.
func (c *Client) ListForms(ctx context.Context, limit int) ([]directory.Form, error) {
	var out []directory.Form
	for page := 1; ; page++ {
		body, err := c.get(ctx, "/forms", url.Values{
			"limit": {strconv.Itoa(limit)},
			"page":  {strconv.Itoa(page)},
		})
		if err != nil {
			return nil, err
		}
		forms, m, err := parseForms(body)
		if err != nil {
			return nil, err
		}
		out = append(out, forms...)

		if c.followPages && len(forms) > 0 && page < m.lastPage {
			continue
		}
		if m.total > len(out) {
			c.log.Warn("perscom form list truncated", formcache.Fields{
				"total": m.total, "returned": len(out), "limit": limit,
			})
		}
		return out, nil
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("perscom: rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("perscom: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.perscomID != "" {
		req.Header.Set("X-Perscom-Id", c.perscomID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perscom: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: gjson.GetBytes(b, "message").String()}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("perscom: read body: %w", err)
	}
	return body, nil
}

type meta struct {
	lastPage int
	total    int
}

func parseForms(body []byte) ([]directory.Form, meta, error) {
	if !gjson.ValidBytes(body) {
		return nil, meta{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, meta{}, fmt.Errorf("%w: missing data array", ErrMalformed)
	}

	items := data.Array()
	forms := make([]directory.Form, 0, len(items))
	for i, it := range items {
		id := it.Get("id")
		if !id.Exists() || id.String() == "" {
			return nil, meta{}, fmt.Errorf("%w: data[%d] has no id", ErrMalformed, i)
		}
		forms = append(forms, directory.Form{ID: id.String(), Name: it.Get("name").String()})
	}

	m := meta{
		lastPage: int(gjson.GetBytes(body, "meta.last_page").Int()),
		total:    int(gjson.GetBytes(body, "meta.total").Int()),
	}
	return forms, m, nil
}

func coalesceDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// leveledLogger routes retryablehttp's logs into a formcache.Logger.
type leveledLogger struct{ l formcache.Logger }

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.l.Error(msg, kvFields(kv)) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.l.Info(msg, kvFields(kv)) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.l.Debug(msg, kvFields(kv)) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.l.Warn(msg, kvFields(kv)) }

func kvFields(kv []interface{}) formcache.Fields {
	if len(kv) == 0 {
		return nil
	}
	f := make(formcache.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
