package kiauvo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL = "https://api.owners.kia.com/apigw/v1"
	requestTimeout = 30 * time.Second

	clientID  = "MWAMOBILE"
	appType   = "L"
	osType    = "A"
	userAgent = "okhttp/4.10.0"

	// errorCode returned when the session id is stale.
	codeSessionExpired = 1003
	// errorCode returned for bad credentials.
	codeInvalidCredentials = 1001
)

type Config struct {
	Username string
	Password string
	BaseURL  string
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to the Kia USA owners API. It owns credentials, the device
// id minted at construction, and the session token established by Login.
// Safe for use from multiple goroutines; token state is guarded internally.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	deviceID   string

	mu        sync.Mutex
	sessionID string
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, fmt.Errorf("kia username is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("kia password is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		username:   cfg.Username,
		password:   cfg.Password,
		deviceID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login registers the device and establishes a session. The session id is
// returned by the API in the "sid" response header.
func (c *Client) Login(ctx context.Context) error {
	body := map[string]any{
		"deviceKey":  "",
		"deviceType": 2,
		"userCredential": map[string]string{
			"userId":   c.username,
			"password": c.password,
		},
	}

	resp, payload, err := c.post(ctx, "/prof/authUser", body, "", "")
	if err != nil {
		return err
	}
	if err := checkStatus(resp.StatusCode, payload.Status, true); err != nil {
		return err
	}

	sid := strings.TrimSpace(resp.Header.Get("sid"))
	if sid == "" {
		return fmt.Errorf("kia login: no session id in response")
	}

	c.mu.Lock()
	c.sessionID = sid
	c.mu.Unlock()
	return nil
}

// Vehicles fetches the account's vehicle list.
func (c *Client) Vehicles(ctx context.Context) ([]Vehicle, error) {
	payload, err := c.call(ctx, "/ownr/gvl", map[string]any{}, "")
	if err != nil {
		return nil, err
	}
	if len(payload.VehicleSummary) == 0 {
		return nil, ErrNoVehicles
	}

	vehicles := make([]Vehicle, 0, len(payload.VehicleSummary))
	for _, summary := range payload.VehicleSummary {
		name := summary.NickName
		if name == "" {
			name = summary.ModelName
		}
		vehicles = append(vehicles, Vehicle{
			VehicleKey: summary.VehicleKey,
			VIN:        summary.VIN,
			Name:       name,
			Model:      summary.ModelName,
			Year:       summary.ModelYear,
			Nickname:   summary.NickName,
		})
	}
	return vehicles, nil
}

// VehicleStatus performs a single-vehicle refresh against the service's
// cached vehicle state and returns the typed snapshot.
func (c *Client) VehicleStatus(ctx context.Context, vehicleKey string) (*Snapshot, error) {
	body := map[string]any{
		"vehicleConfigReq": map[string]string{
			"airTempRange": "0",
			"maintenance":  "0",
			"vehicle":      "1",
		},
		"vehicleInfoReq": map[string]string{
			"drivingActivty": "0",
			"dtc":            "0",
			"enrollment":     "0",
			"location":       "1",
			"vehicleStatus":  "1",
			"weather":        "0",
		},
		"vinKey": []string{vehicleKey},
	}

	payload, err := c.call(ctx, "/cmm/gvi", body, vehicleKey)
	if err != nil {
		return nil, err
	}
	if len(payload.VehicleInfoList) == 0 {
		return nil, &APIError{Status: http.StatusOK, Message: "empty vehicle info list"}
	}
	return newSnapshot(payload.VehicleInfoList[0], time.Now()), nil
}

func (c *Client) Lock(ctx context.Context, vehicleKey string) error {
	_, err := c.call(ctx, "/rems/door/lock", map[string]any{}, vehicleKey)
	return err
}

func (c *Client) Unlock(ctx context.Context, vehicleKey string) error {
	_, err := c.call(ctx, "/rems/door/unlock", map[string]any{}, vehicleKey)
	return err
}

// StartClimate issues a remote climate start. Temperature is whole °F.
func (c *Client) StartClimate(ctx context.Context, vehicleKey string, req ClimateRequest) error {
	body := map[string]any{
		"remoteClimate": map[string]any{
			"airCtrl": req.Climate,
			"airTemp": map[string]any{
				"value": fmt.Sprintf("%d", req.TempF),
				"unit":  1,
			},
			"defrost": req.Defrost,
			"heatingAccessory": map[string]int{
				"steeringWheel": boolToInt(req.Heating),
				"sideMirror":    boolToInt(req.Heating),
				"rearWindow":    boolToInt(req.Heating),
			},
		},
	}
	_, err := c.call(ctx, "/rems/start", body, vehicleKey)
	return err
}

func (c *Client) StopClimate(ctx context.Context, vehicleKey string) error {
	_, err := c.call(ctx, "/rems/stop", map[string]any{}, vehicleKey)
	return err
}

// call performs an authenticated request, transparently re-logging in once
// when the session has expired.
func (c *Client) call(ctx context.Context, path string, body any, vinKey string) (*payloadEnvelope, error) {
	c.mu.Lock()
	sid := c.sessionID
	c.mu.Unlock()
	if sid == "" {
		return nil, ErrNotLoggedIn
	}

	resp, payload, err := c.post(ctx, path, body, sid, vinKey)
	if err != nil {
		return nil, err
	}

	if payload.Status.ErrorCode == codeSessionExpired {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		sid = c.sessionID
		c.mu.Unlock()
		resp, payload, err = c.post(ctx, path, body, sid, vinKey)
		if err != nil {
			return nil, err
		}
		// A freshly minted session that is still rejected means the
		// account needs to re-authenticate, not that the call is
		// transient.
		if payload.Status.ErrorCode == codeSessionExpired {
			return nil, ErrAuthentication
		}
	}

	if err := checkStatus(resp.StatusCode, payload.Status, false); err != nil {
		return nil, err
	}
	return &payload.Payload, nil
}

func (c *Client) post(ctx context.Context, path string, body any, sid, vinKey string) (*http.Response, *apiResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, nil, fmt.Errorf("build request %s: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("clientid", clientID)
	req.Header.Set("apptype", appType)
	req.Header.Set("ostype", osType)
	req.Header.Set("from", "SPA")
	req.Header.Set("to", "APIGW")
	req.Header.Set("language", "0")
	req.Header.Set("tokentype", "G")
	req.Header.Set("deviceid", c.deviceID)
	req.Header.Set("date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"))
	if sid != "" {
		req.Header.Set("sid", sid)
	}
	if vinKey != "" {
		req.Header.Set("vinkey", vinKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var payload apiResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
	}
	return resp, &payload, nil
}

func checkStatus(httpStatus int, status apiStatus, login bool) error {
	if httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden {
		return ErrAuthentication
	}
	if status.ErrorCode == codeInvalidCredentials {
		return ErrAuthentication
	}
	if login && httpStatus == http.StatusBadRequest {
		return ErrAuthentication
	}
	if httpStatus >= 300 || status.StatusCode != 0 {
		return &APIError{Status: httpStatus, Code: status.ErrorCode, Message: status.ErrorMessage}
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
