package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	FitbitAPIURL   = "https://api.fitbit.com"
	fitbitAuthURL  = "https://www.fitbit.com/oauth2/authorize"
	fitbitTokenURL = "https://api.fitbit.com/oauth2/token"

	activityName = "Treadmill"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// FitbitCredentials are the OAuth2 client and token pair the exporter runs with.
// Obtaining them is out of band.
type FitbitCredentials struct {
	ClientID     string `mapstructure:"FITBIT_CLIENT_ID"`
	ClientSecret string `mapstructure:"FITBIT_CLIENT_SECRET"`
	AccessToken  string `mapstructure:"FITBIT_ACCESS_TOKEN"`
	RefreshToken string `mapstructure:"FITBIT_REFRESH_TOKEN"`
}

// Complete reports whether every credential is set. The export to Fitbit is skipped
// otherwise.
func (c FitbitCredentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.AccessToken != "" && c.RefreshToken != ""
}

// Fitbit logs runs as manual activities and reads the profile weight. The access token
// is used as is until the API rejects it, then refreshed once and the request retried.
type Fitbit struct {
	// BaseURL defaults to FitbitAPIURL and TokenURL to the Fitbit token endpoint.
	BaseURL  string
	TokenURL string
	// Location is the timezone the activity date and start time are written in.
	Location *time.Location
	Client   *http.Client

	creds FitbitCredentials

	mu        sync.Mutex
	token     *oauth2.Token
	refreshed bool
}

func NewFitbit(creds FitbitCredentials) *Fitbit {
	return &Fitbit{
		BaseURL:  FitbitAPIURL,
		TokenURL: fitbitTokenURL,
		Location: time.Local,
		Client:   &http.Client{Timeout: 30 * time.Second},
		creds:    creds,
		token: &oauth2.Token{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			TokenType:    "Bearer",
		},
	}
}

func (f *Fitbit) String() string {
	return "fitbit"
}

// Token returns the token currently in use and whether it was refreshed. Fitbit refresh
// tokens are single use, so a refreshed token must be stored for the next run.
func (f *Fitbit) Token() (*oauth2.Token, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.token, f.refreshed
}

func (f *Fitbit) currentToken() *oauth2.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.token
}

func (f *Fitbit) refresh(ctx context.Context, stale *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// someone else already refreshed it.
	if f.token != stale {
		return nil
	}

	conf := &oauth2.Config{
		ClientID:     f.creds.ClientID,
		ClientSecret: f.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   fitbitAuthURL,
			TokenURL:  f.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	expired := *stale
	expired.Expiry = time.Now().Add(-time.Minute)

	tok, err := conf.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, f.Client), &expired).Token()

	if err != nil {
		return errors.Wrap(err, "fitbit: failed to refresh access token")
	}

	log.Warn().Msg("Fitbit access token refreshed, store the new refresh token for the next run")

	f.token = tok
	f.refreshed = true

	return nil
}

// ActivityForm renders the run as a manual activity log entry. Elevation has no field
// in the API and is dropped.
func (f *Fitbit) ActivityForm(a Activity) url.Values {
	loc := f.Location

	if loc == nil {
		loc = time.Local
	}

	start := a.Start.In(loc)

	return url.Values{
		"activityName":   {activityName},
		"manualCalories": {strconv.Itoa(int(a.CaloriesKcal))},
		"startTime":      {start.Format("15:04")},
		"durationMillis": {strconv.FormatInt(int64(a.DurationSeconds)*1000, 10)},
		"date":           {start.Format("2006-01-02")},
		"distance":       {strconv.FormatFloat(a.DistanceKm, 'f', 3, 64)},
		"distanceUnit":   {"Kilometer"},
	}
}

func (f *Fitbit) Export(ctx context.Context, a Activity) error {
	form := f.ActivityForm(a)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/1/user/-/activities.json",
		strings.NewReader(form.Encode()))

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		ActivityLog struct {
			LogID int64 `json:"logId"`
		} `json:"activityLog"`
	}

	if err := f.do(req, &out); err != nil {
		return errors.Wrap(err, "fitbit: failed to log activity")
	}

	log.Info().
		Int64("LogID", out.ActivityLog.LogID).
		Str("Date", form.Get("date")).
		Str("StartTime", form.Get("startTime")).
		Msg("Logged run to Fitbit")

	return nil
}

// Weight returns the weight on the user's profile. Without an Accept-Language header the
// API answers in metric units.
func (f *Fitbit) Weight(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/1/user/-/profile.json", nil)

	if err != nil {
		return 0, err
	}

	var out struct {
		User struct {
			Weight float64 `json:"weight"`
		} `json:"user"`
	}

	if err := f.do(req, &out); err != nil {
		return 0, errors.Wrap(err, "fitbit: failed to fetch profile")
	}

	if out.User.Weight <= 0 {
		return 0, errors.New("fitbit: no weight on profile")
	}

	return out.User.Weight, nil
}

func (f *Fitbit) do(req *http.Request, out any) error {
	tok := f.currentToken()
	status, body, err := f.send(req, tok)

	if err == nil && status == http.StatusUnauthorized {
		if err := f.refresh(req.Context(), tok); err != nil {
			return err
		}

		if req, err = rewind(req); err != nil {
			return err
		}

		status, body, err = f.send(req, f.currentToken())
	}

	if err != nil {
		return err
	}

	if status < 200 || status > 299 {
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, status, strings.TrimSpace(string(body)))
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	return json.Unmarshal(body, out)
}

func (f *Fitbit) send(req *http.Request, tok *oauth2.Token) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	resp, err := f.Client.Do(req)

	if err != nil {
		return 0, nil, err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, body, err
}

// rewind prepares a request to be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())

	if req.GetBody != nil {
		body, err := req.GetBody()

		if err != nil {
			return nil, err
		}

		out.Body = body
	}

	return out, nil
}
