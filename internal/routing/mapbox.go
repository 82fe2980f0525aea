// Package routing resolves approximate distance and duration between two
// points for order placement.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taxi-dispatch/internal/domain"
)

var ErrNoRoute = errors.New("no route found")

const DefaultMapboxBaseURL = "https://api.mapbox.com"

type Mapbox struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// NewMapbox returns a Directions API client. timeout bounds every call
// end to end.
func NewMapbox(accessToken, baseURL string, timeout time.Duration) *Mapbox {
	if baseURL == "" {
		baseURL = DefaultMapboxBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Mapbox{
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type directionsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Route asks for a driving route and reports the first one's distance in
// meters and duration in seconds.
func (m *Mapbox) Route(ctx context.Context, start, end domain.Location) (domain.Route, error) {
	coordinates := fmt.Sprintf("%f,%f;%f,%f", start.Lng, start.Lat, end.Lng, end.Lat)
	apiURL := fmt.Sprintf("%s/directions/v5/mapbox/driving/%s?access_token=%s",
		m.baseURL, coordinates, url.QueryEscape(m.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return domain.Route{}, fmt.Errorf("build directions request: %w", redactToken(err, m.accessToken))
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return domain.Route{}, fmt.Errorf("directions request: %w", redactToken(err, m.accessToken))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Route{}, fmt.Errorf("read directions response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Route{}, fmt.Errorf("mapbox directions: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed directionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Route{}, fmt.Errorf("decode directions response: %w", err)
	}
	if parsed.Code != "" && parsed.Code != "Ok" {
		return domain.Route{}, fmt.Errorf("mapbox directions: %s %s", parsed.Code, parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return domain.Route{}, ErrNoRoute
	}
	first := parsed.Routes[0]
	return domain.Route{DistanceMeters: first.Distance, DurationSeconds: first.Duration}, nil
}

// redactToken masks the access token in the URL carried by a transport
// error so it never reaches logs.
func redactToken(err error, token string) error {
	var urlErr *url.Error
	if token == "" || !errors.As(err, &urlErr) {
		return err
	}
	urlErr.URL = strings.NewReplacer(url.QueryEscape(token), "***", token, "***").Replace(urlErr.URL)
	return err
}
