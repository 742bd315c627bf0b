// Package routing talks to an OSRM-compatible road and foot router.
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

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"shuttle-tracker/internal/geo"
)

var ErrRoutingUnavailable = errors.New("routing unavailable")

type Profile string

const (
	Driving Profile = "driving"
	Foot    Profile = "foot"
)

// Router turns waypoints into a polyline or a travel duration.
type Router interface {
	Polyline(ctx context.Context, profile Profile, waypoints ...geo.Point) ([]geo.Point, error)
	Duration(ctx context.Context, profile Profile, waypoints ...geo.Point) (time.Duration, error)
}

// Metrics receives one observation per upstream request. Cache hits are not reported.
type Metrics interface {
	RoutingObserve(profile string, ok bool, d time.Duration)
}

type OSRM struct {
	baseURL    string
	httpClient *http.Client
	cache      gcache.Cache
	metrics    Metrics
}

// NewOSRM returns a client for baseURL. cacheSize <= 0 disables the cache.
func NewOSRM(baseURL string, timeout time.Duration, cacheSize int, m Metrics) *OSRM {
	c := &OSRM{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
	}
	if cacheSize > 0 {
		c.cache = gcache.New(cacheSize).LRU().Build()
	}
	return c
}

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Duration float64           `json:"duration"`
	Distance float64           `json:"distance"`
	Geometry *geojson.Geometry `json:"geometry"`
}

func (c *OSRM) Polyline(ctx context.Context, profile Profile, waypoints ...geo.Point) ([]geo.Point, error) {
	r, err := c.route(ctx, profile, true, waypoints)
	if err != nil {
		return nil, err
	}
	if r.Geometry == nil {
		return nil, fmt.Errorf("%w: route without geometry", ErrRoutingUnavailable)
	}
	ls, ok := r.Geometry.Geometry().(orb.LineString)
	if !ok || len(ls) == 0 {
		return nil, fmt.Errorf("%w: unexpected geometry %T", ErrRoutingUnavailable, r.Geometry.Geometry())
	}
	out := make([]geo.Point, len(ls))
	for i, p := range ls {
		out[i] = geo.Point{Lat: p.Lat(), Lon: p.Lon()}
	}
	return out, nil
}

func (c *OSRM) Duration(ctx context.Context, profile Profile, waypoints ...geo.Point) (time.Duration, error) {
	r, err := c.route(ctx, profile, false, waypoints)
	if err != nil {
		return 0, err
	}
	return time.Duration(r.Duration * float64(time.Second)), nil
}

func (c *OSRM) route(ctx context.Context, profile Profile, full bool, waypoints []geo.Point) (osrmRoute, error) {
	if len(waypoints) < 2 {
		return osrmRoute{}, fmt.Errorf("%w: need at least two waypoints", ErrRoutingUnavailable)
	}
	coords := make([]string, len(waypoints))
	for i, p := range waypoints {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
	}
	overview := "false"
	if full {
		overview = "full"
	}
	u := fmt.Sprintf("%s/route/v1/%s/%s?overview=%s&geometries=geojson",
		c.baseURL, url.PathEscape(string(profile)), strings.Join(coords, ";"), overview)

	if c.cache != nil {
		if cached, err := c.cache.Get(u); err == nil {
			if r, ok := cached.(osrmRoute); ok {
				return r, nil
			}
		}
	}

	start := time.Now()
	r, err := c.fetch(ctx, u)
	if c.metrics != nil {
		c.metrics.RoutingObserve(string(profile), err == nil, time.Since(start))
	}
	if err != nil {
		return osrmRoute{}, err
	}
	if c.cache != nil {
		_ = c.cache.Set(u, r)
	}
	return r, nil
}

func (c *OSRM) fetch(ctx context.Context, u string) (osrmRoute, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return osrmRoute{}, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return osrmRoute{}, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return osrmRoute{}, fmt.Errorf("%w: osrm status %d: %s", ErrRoutingUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var obj osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return osrmRoute{}, fmt.Errorf("%w: decode: %v", ErrRoutingUnavailable, err)
	}
	if obj.Code != "" && obj.Code != "Ok" {
		return osrmRoute{}, fmt.Errorf("%w: osrm %s: %s", ErrRoutingUnavailable, obj.Code, obj.Message)
	}
	if len(obj.Routes) == 0 {
		return osrmRoute{}, fmt.Errorf("%w: no route", ErrRoutingUnavailable)
	}
	return obj.Routes[0], nil
}
