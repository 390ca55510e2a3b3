package preload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/juju/errors"
	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/log2"
	"golang.org/x/time/rate"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	DefaultIDField      = "image"
	DefaultMaxBodyBytes = 16 << 20
	DefaultHTTPTimeout  = 30 * time.Second
)

// HTTPConfig describes imagery provider.
// ListURL may contain {key}, ImageURL may contain {id} and {key}.
// Substituted values are query-escaped.
type HTTPConfig struct {
	ListURL      string  `hcl:"list_url"`
	ImageURL     string  `hcl:"image_url"`
	IDField      string  `hcl:"id_field"`
	RatePerSec   float64 `hcl:"rate_per_sec"` // 0 = unlimited
	UserAgent    string  `hcl:"user_agent"`
	MaxBodyBytes int     `hcl:"max_body_bytes"`
	TimeoutSec   int     `hcl:"timeout_sec"`
	FitWidth     int     `hcl:"fit_width"`
	FitHeight    int     `hcl:"fit_height"`
}

// HTTPSource implements Lister, URLBuilder and Fetcher over plain HTTP GET.
type HTTPSource struct {
	log     *log2.Log
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	maxBody int64
}

// NewHTTPSource without list_url and image_url gives fetch-only source,
// see Configured.
func NewHTTPSource(config HTTPConfig, transport http.RoundTripper, log *log2.Log) (*HTTPSource, error) {
	if (config.ListURL == "") != (config.ImageURL == "") {
		return nil, errors.NotValidf("provider list_url and image_url must be set together")
	}
	if config.IDField == "" {
		config.IDField = DefaultIDField
	}
	self := &HTTPSource{
		log:    log,
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   helpers.IntSecondDefault(config.TimeoutSec, DefaultHTTPTimeout),
		},
		maxBody: int64(helpers.IntDefault(config.MaxBodyBytes, DefaultMaxBodyBytes)),
	}
	if config.RatePerSec > 0 {
		burst := int(config.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		self.limiter = rate.NewLimiter(rate.Limit(config.RatePerSec), burst)
	}
	return self, nil
}

// Configured reports whether source can list provider images.
func (self *HTTPSource) Configured() bool { return self.config.ListURL != "" }

func (self *HTTPSource) Locator(providerKey, id string) string {
	return expand(self.config.ImageURL, map[string]string{"id": id, "key": providerKey})
}

// List accepts JSON array of strings or array of objects with id field.
func (self *HTTPSource) List(ctx context.Context, providerKey string) ([]string, error) {
	if !self.Configured() {
		return nil, errors.NotValidf("provider is not configured")
	}
	u := expand(self.config.ListURL, map[string]string{"key": providerKey})
	body, err := self.get(ctx, u)
	if err != nil {
		return nil, errors.Annotate(err, "list")
	}
	ids, err := parseList(body, self.config.IDField)
	if err != nil {
		return nil, errors.Annotatef(err, "list parse url=%s", redact(u))
	}
	return ids, nil
}

func (self *HTTPSource) Fetch(ctx context.Context, locator string) (image.Image, error) {
	body, err := self.get(ctx, locator)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Annotatef(err, "decode url=%s", redact(locator))
	}
	if self.config.FitWidth > 0 && self.config.FitHeight > 0 {
		img = imaging.Fit(img, self.config.FitWidth, self.config.FitHeight, imaging.Lanczos)
	}
	return img, nil
}

func (self *HTTPSource) get(ctx context.Context, u string) ([]byte, error) {
	if self.limiter != nil {
		if err := self.limiter.Wait(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if self.config.UserAgent != "" {
		req.Header.Set("User-Agent", self.config.UserAgent)
	}
	resp, err := self.client.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "GET %s", redact(u))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// drain for keep-alive reuse
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("GET %s status=%d", redact(u), resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, self.maxBody+1))
	if err != nil {
		return nil, errors.Annotatef(err, "GET %s read", redact(u))
	}
	if int64(len(body)) > self.maxBody {
		return nil, errors.NotValidf("GET %s body larger than %d", redact(u), self.maxBody)
	}
	self.log.Debugf("preload GET %s bytes=%d", redact(u), len(body))
	return body, nil
}

func parseList(b []byte, idField string) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]string, 0, len(raw))
	for i, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				ids = append(ids, s)
			}
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, errors.NotValidf("list item %d", i)
		}
		switch v := obj[idField].(type) {
		case string:
			if v != "" {
				ids = append(ids, v)
			}
		case float64:
			ids = append(ids, fmt.Sprint(v))
		default:
			return nil, errors.NotValidf("list item %d field %s", i, idField)
		}
	}
	return ids, nil
}

func expand(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", url.QueryEscape(v))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// redact hides query values, provider keys travel in query string.
func redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.RawQuery == "" {
		return u
	}
	q := parsed.Query()
	for k := range q {
		q.Set(k, "xxx")
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
