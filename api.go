package telesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// apiClient talks to the remote IoT API. It attaches bearer credentials
// and a request ID to every call and classifies failures into the
// APIError taxonomy. It holds no session state of its own.
type apiClient struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

func newAPIClient(baseURL string, httpClient *http.Client, log *logrus.Logger) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    httpClient,
		log:     log,
	}
}

// login exchanges credentials for a bearer token.
func (a *apiClient) login(ctx context.Context, email, password string) (TokenResponse, error) {
	body := map[string]string{"email": email, "password": password}

	var token TokenResponse
	if err := a.do(ctx, http.MethodPost, "/auth/login", "", body, &token); err != nil {
		return TokenResponse{}, err
	}
	return token, nil
}

// me fetches the profile of the token's owner.
func (a *apiClient) me(ctx context.Context, token string) (User, error) {
	var user User
	if err := a.do(ctx, http.MethodGet, "/auth/me", token, nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (a *apiClient) devices(ctx context.Context, token string) ([]Device, error) {
	var devices []Device
	if err := a.do(ctx, http.MethodGet, "/devices", token, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (a *apiClient) device(ctx context.Context, token string, id int64) (Device, error) {
	var device Device
	path := "/devices/" + strconv.FormatInt(id, 10)
	if err := a.do(ctx, http.MethodGet, path, token, nil, &device); err != nil {
		return Device{}, err
	}
	return device, nil
}

func (a *apiClient) deviceSchema(ctx context.Context, token string, id int64) (DeviceSchema, error) {
	var schema DeviceSchema
	path := "/devices/" + strconv.FormatInt(id, 10) + "/schema"
	if err := a.do(ctx, http.MethodGet, path, token, nil, &schema); err != nil {
		return DeviceSchema{}, err
	}
	return schema, nil
}

// readings fetches telemetry for one device inside an absolute window.
func (a *apiClient) readings(ctx context.Context, token string, deviceID int64, window TimeWindow) ([]SensorReading, error) {
	q := url.Values{}
	q.Set("device_id", strconv.FormatInt(deviceID, 10))
	q.Set("date_from", window.From.UTC().Format(time.RFC3339))
	q.Set("date_to", window.To.UTC().Format(time.RFC3339))

	var readings []SensorReading
	if err := a.do(ctx, http.MethodGet, "/readings?"+q.Encode(), token, nil, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

func (a *apiClient) reading(ctx context.Context, token string, id int64) (SensorReading, error) {
	var reading SensorReading
	path := "/readings/" + strconv.FormatInt(id, 10)
	if err := a.do(ctx, http.MethodGet, path, token, nil, &reading); err != nil {
		return SensorReading{}, err
	}
	return reading, nil
}

func (a *apiClient) createDevice(ctx context.Context, token string, nd NewDevice) (Device, error) {
	var device Device
	if err := a.do(ctx, http.MethodPost, "/devices", token, nd, &device); err != nil {
		return Device{}, err
	}
	return device, nil
}

func (a *apiClient) updateDevice(ctx context.Context, token string, id int64, patch DevicePatch) (Device, error) {
	var device Device
	path := "/devices/" + strconv.FormatInt(id, 10)
	if err := a.do(ctx, http.MethodPatch, path, token, patch, &device); err != nil {
		return Device{}, err
	}
	return device, nil
}

func (a *apiClient) deleteDevice(ctx context.Context, token string, id int64) error {
	path := "/devices/" + strconv.FormatInt(id, 10)
	return a.do(ctx, http.MethodDelete, path, token, nil, nil)
}

// errorBody is the remote API's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// do performs one HTTP round trip. Transport failures map to KindNetwork;
// non-2xx responses are classified by status code.
func (a *apiClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telesync: failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("telesync: failed to build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"method":     method,
			"path":       path,
			"request_id": requestID,
			"error":      err,
		}).Warn("request failed")
		return &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	a.log.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"request_id":  requestID,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("request completed")

	if resp.StatusCode >= 400 {
		return a.responseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &APIError{
				Kind:       KindNetwork,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("failed to decode response: %v", err),
			}
		}
	}

	return nil
}

// responseError builds an APIError from a non-2xx response.
func (a *apiClient) responseError(resp *http.Response) error {
	message := resp.Status

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var envelope errorBody
		if json.Unmarshal(data, &envelope) == nil && envelope.Detail != "" {
			message = envelope.Detail
		}
	}

	return &APIError{
		Kind:       classifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}
