package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/HatiCode/peakwatch/pkg/records"
)

const (
	// DefaultSteamAPIURL is the Steam Web API base URL.
	DefaultSteamAPIURL = "https://api.steampowered.com"
	// DefaultSteamAppID is Limbus Company.
	DefaultSteamAppID = "1973530"
)

// SteamAdapter fetches the number of players currently in a Steam app via
// ISteamUserStats/GetNumberOfCurrentPlayers.
type SteamAdapter struct {
	// BaseURL defaults to DefaultSteamAPIURL.
	BaseURL string
	// AppID defaults to DefaultSteamAppID.
	AppID string
	// APIKey is optional; the endpoint answers anonymous requests too.
	APIKey string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (s *SteamAdapter) Name() string { return "steam" }

type steamPlayersResponse struct {
	Response struct {
		PlayerCount *json.Number `json:"player_count"`
		Result      int          `json:"result"`
	} `json:"response"`
}

// Fetch implements Source.
func (s *SteamAdapter) Fetch(ctx context.Context) (int64, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultSteamAPIURL
	}
	appID := s.AppID
	if appID == "" {
		appID = DefaultSteamAppID
	}

	u, err := url.Parse(base)
	if err != nil {
		return 0, fmt.Errorf("invalid BaseURL: %w", err)
	}
	u = u.JoinPath("/ISteamUserStats/GetNumberOfCurrentPlayers/v1/")
	q := u.Query()
	q.Set("appid", appID)
	if s.APIKey != "" {
		q.Set("key", s.APIKey)
	}
	u.RawQuery = q.Encode()

	cli := s.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: steam: status %d", ErrFetch, resp.StatusCode)
	}

	var sr steamPlayersResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&sr); err != nil {
		return 0, fmt.Errorf("%w: decode steam response: %w", ErrFetch, err)
	}
	if sr.Response.Result != 1 {
		return 0, fmt.Errorf("%w: steam result code %d", ErrFetch, sr.Response.Result)
	}
	if sr.Response.PlayerCount == nil {
		return 0, fmt.Errorf("%w: steam response has no player_count", records.ErrInvalidObservation)
	}

	return records.ParseObservation(sr.Response.PlayerCount.String())
}
