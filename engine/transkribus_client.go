package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

// Transkribus job statuses this client branches on. Anything else means the
// job is still in flight.
const (
	transkribusStatusFinished = "FINISHED"
	transkribusStatusFailed   = "FAILED"
)

// TranskribusClientConfig configures the Transkribus API client.
type TranskribusClientConfig struct {
	// Username and Password identify the operational service account. Tokens
	// derived from them are scoped to this identity, never to end users.
	Username string
	Password string
	// ClientID is the OAuth client id for the processing API.
	ClientID string
	// Client is the HTTP client used for all calls.
	Client *http.Client
	// ProcessesURL and AuthURL are overridable for tests.
	ProcessesURL string
	AuthURL      string
}

func DefaultTranskribusClientConfig() TranskribusClientConfig {
	return TranskribusClientConfig{
		ClientID:     "processing-api-client",
		Client:       http.DefaultClient,
		ProcessesURL: "https://transkribus.eu/processing/v1/processes",
		AuthURL:      "https://account.readcoop.eu/auth/realms/readcoop/protocol/openid-connect/token",
	}
}

// TranskribusClient talks to the Transkribus processing API. Every call is
// bearer authenticated; a 401 triggers one token refresh followed by exactly
// one retry of the original call. Token state is held per client instance
// behind a lock so concurrent calls cannot race a refresh.
type TranskribusClient struct {
	config TranskribusClientConfig

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewTranskribusClient(config TranskribusClientConfig) *TranskribusClient {
	defaults := DefaultTranskribusClientConfig()
	if config.ClientID == "" {
		config.ClientID = defaults.ClientID
	}
	if config.Client == nil {
		config.Client = defaults.Client
	}
	if config.ProcessesURL == "" {
		config.ProcessesURL = defaults.ProcessesURL
	}
	if config.AuthURL == "" {
		config.AuthURL = defaults.AuthURL
	}
	return &TranskribusClient{config: config}
}

type transkribusProcess struct {
	ProcessID int64  `json:"processId"`
	Status    string `json:"status"`
	Content   *struct {
		Text string `json:"text"`
	} `json:"content"`
}

type transkribusSubmission struct {
	Config struct {
		TextRecognition struct {
			HTRID int `json:"htrId"`
		} `json:"textRecognition"`
		LineDetection *struct {
			ModelID int `json:"modelId"`
		} `json:"lineDetection,omitempty"`
	} `json:"config"`
	Image struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Content *struct {
		Regions []transkribusRegion `json:"regions"`
	} `json:"content,omitempty"`
}

type transkribusRegion struct {
	ID     string `json:"id"`
	Coords struct {
		Points string `json:"points"`
	} `json:"coords"`
}

// Submit creates a recognition job and returns its id. A FAILED status at
// submission is fatal.
func (c *TranskribusClient) Submit(ctx context.Context, imageURL string, htrID, lineID int, points string) (int64, error) {
	var submission transkribusSubmission
	submission.Config.TextRecognition.HTRID = htrID
	if lineID != 0 {
		submission.Config.LineDetection = &struct {
			ModelID int `json:"modelId"`
		}{ModelID: lineID}
	}
	submission.Image.ImageURL = imageURL
	if points != "" {
		region := transkribusRegion{ID: "region_1"}
		region.Coords.Points = points
		submission.Content = &struct {
			Regions []transkribusRegion `json:"regions"`
		}{Regions: []transkribusRegion{region}}
	}

	process, err := c.request(ctx, http.MethodPost, c.config.ProcessesURL, &submission)
	if err != nil {
		return 0, err
	}
	if process.Status == transkribusStatusFailed {
		return 0, ocrerror.NewTranskribusSubmit()
	}
	return process.ProcessID, nil
}

// Process fetches the current status of a job, with the recognized text once
// the job is finished.
func (c *TranskribusClient) Process(ctx context.Context, processID int64) (status, text string, err error) {
	process, err := c.request(ctx, http.MethodGet, c.config.ProcessesURL+"/"+strconv.FormatInt(processID, 10), nil)
	if err != nil {
		return "", "", err
	}
	if process.Content != nil {
		text = process.Content.Text
	}
	return process.Status, text, nil
}

func (c *TranskribusClient) request(ctx context.Context, method, url string, body any) (*transkribusProcess, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, raw, err := c.do(ctx, method, url, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		token, err = c.refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		resp, raw, err = c.do(ctx, method, url, body, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, ocrerror.NewTranskribusUnauthorized()
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ocrerror.NewTranskribus(resp.StatusCode)
	}

	// A 200 with an empty or unparseable body is its own failure mode,
	// distinct from an auth error.
	var process transkribusProcess
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &process) != nil {
		return nil, ocrerror.NewTranskribusEmptyResponse()
	}
	return &process, nil
}

func (c *TranskribusClient) do(ctx context.Context, method, url string, body any, token string) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, errors.Join(errors.New("failed to marshal request body"), err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, errors.Join(errors.New("failed to prepare request"), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.config.Client.Do(req)
	if err != nil {
		return nil, nil, errors.Join(errors.New("request to Transkribus failed"), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Join(errors.New("error while reading Transkribus response body"), err)
	}
	return resp, raw, nil
}

// token returns the cached access token, acquiring one through the password
// grant on first use.
func (c *TranskribusClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" {
		return c.accessToken, nil
	}
	return c.passwordGrantLocked(ctx)
}

// refresh swaps the token that just received a 401 for a fresh one. When a
// concurrent call already refreshed, the cached token is reused instead of
// refreshing again.
func (c *TranskribusClient) refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.accessToken != stale {
		return c.accessToken, nil
	}

	if c.refreshToken != "" {
		token, err := c.grantLocked(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {c.config.ClientID},
			"refresh_token": {c.refreshToken},
		})
		if err == nil {
			return token, nil
		}
	}
	return c.passwordGrantLocked(ctx)
}

func (c *TranskribusClient) passwordGrantLocked(ctx context.Context) (string, error) {
	return c.grantLocked(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {c.config.Username},
		"password":   {c.config.Password},
		"client_id":  {c.config.ClientID},
		"scope":      {"offline_access"},
	})
}

func (c *TranskribusClient) grantLocked(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Join(errors.New("failed to prepare token request"), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.config.Client.Do(req)
	if err != nil {
		return "", errors.Join(errors.New("token request to Transkribus failed"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ocrerror.NewTranskribusUnauthorized()
	}
	if resp.StatusCode != http.StatusOK {
		return "", ocrerror.NewTranskribus(resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Join(errors.New("error while reading token response body"), err)
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &tokens) != nil || tokens.AccessToken == "" {
		return "", ocrerror.NewTranskribusEmptyResponse()
	}

	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	return c.accessToken, nil
}

// Authenticate runs the password grant and returns the token pair. Used by
// the auth command to verify service account credentials.
func (c *TranskribusClient) Authenticate(ctx context.Context) (access, refresh string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.passwordGrantLocked(ctx); err != nil {
		return "", "", err
	}
	return c.accessToken, c.refreshToken, nil
}
