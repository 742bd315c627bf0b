package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shuttle-tracker/internal/geo"
)

// restPayload is one vehicle document as served by the realtime database,
// e.g. GET <base>/Bus1.json.
type restPayload struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Long *float64 `json:"long"`
	Vel  *float64 `json:"vel"`
	Rot  string   `json:"rot"`
	Dir  string   `json:"dir"`
}

// REST reads vehicle documents from a JSON-over-HTTP realtime store.
type REST struct {
	base   string
	client *http.Client
	now    func() time.Time
}

func NewREST(baseURL string, timeout time.Duration) *REST {
	return &REST{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (r *REST) Fetch(ctx context.Context, id string) (State, error) {
	u := fmt.Sprintf("%s/%s.json", r.base, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrPositionFetchFailed, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrPositionFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return State{}, fmt.Errorf("%w: %s: status %d", ErrPositionFetchFailed, id, resp.StatusCode)
	}

	// The store answers "null" for ids it has never seen.
	var p *restPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return State{}, fmt.Errorf("%w: decode %s: %v", ErrPositionFetchFailed, id, err)
	}
	if p == nil {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, id)
	}
	if p.Lat == nil || p.Long == nil {
		return State{}, fmt.Errorf("%w: %s: missing coordinates", ErrPositionFetchFailed, id)
	}
	st := State{
		ID:        id,
		Name:      p.Name,
		Lat:       *p.Lat,
		Lon:       *p.Long,
		Heading:   geo.ParseOctant(p.Rot),
		Velocity:  p.Vel,
		Direction: p.Dir,
		FetchedAt: r.now(),
	}
	if err := st.Point().Validate(); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrPositionFetchFailed, id, err)
	}
	return st, nil
}
