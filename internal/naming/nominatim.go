package naming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

const defaultUserAgent = "geodrop/1.0"

// NominatimClient resolves names with a Nominatim-compatible reverse
// geocoding endpoint. Retries on 5xx, 429 and network errors.
type NominatimClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	userAgent  string
	language   string
}

// NominatimOption configures a NominatimClient.
type NominatimOption func(*NominatimClient)

// WithUserAgent sets the User-Agent header; public instances require one.
func WithUserAgent(ua string) NominatimOption {
	return func(c *NominatimClient) { c.userAgent = ua }
}

// WithLanguage sets the Accept-Language header.
func WithLanguage(lang string) NominatimOption {
	return func(c *NominatimClient) { c.language = lang }
}

// NewNominatimClient creates a client for baseURL (e.g. https://nominatim.openstreetmap.org).
func NewNominatimClient(baseURL string, maxRetries int, baseDelay, timeout time.Duration, opts ...NominatimOption) *NominatimClient {
	c := &NominatimClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type reverseResponse struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func (c *NominatimClient) Resolve(ctx context.Context, loc geo.Coordinate) (string, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		name, err := c.doRequest(ctx, loc)
		if err == nil {
			return name, nil
		}
		if _, ok := err.(retryableError); !ok {
			return "", err
		}
		lastErr = err

		if attempt < c.maxRetries {
			delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return "", fmt.Errorf("reverse geocode failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *NominatimClient) doRequest(ctx context.Context, loc geo.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(loc.Lng, 'f', 6, 64))
	q.Set("zoom", "14")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retryableError{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", retryableError{fmt.Errorf("geocoder status: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var rr reverseResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", fmt.Errorf("unmarshal reverse response: %w", err)
	}
	if rr.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, rr.Error)
	}

	name := placeName(rr)
	if name == "" {
		return "", ErrUnresolved
	}
	return name, nil
}

// placeName prefers "locality, country" and falls back to the provider's
// own labels.
func placeName(rr reverseResponse) string {
	var locality string
	for _, key := range []string{"suburb", "neighbourhood", "city_district", "city", "town", "village", "county", "state"} {
		if v := rr.Address[key]; v != "" {
			locality = v
			break
		}
	}
	country := rr.Address["country"]

	switch {
	case locality != "" && country != "":
		return locality + ", " + country
	case locality != "":
		return locality
	case rr.Name != "":
		return rr.Name
	case rr.DisplayName != "":
		return rr.DisplayName
	default:
		return country
	}
}
