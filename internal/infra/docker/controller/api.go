package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/infra/docker"
	"lifecycle-agent/pkg/log"
)

// API delegates container control to a management API:
//
//	GET  /api/containers/{name}           -> {"name": "...", "state": "running"}
//	POST /api/containers/{name}/stop?t=N
//	POST /api/containers/{name}/start
//	POST /api/containers/{name}/recreate
type API struct {
	baseURL     string
	token       model.Secret
	httpClient  *http.Client
	stopTimeout time.Duration
}

// NewAPI creates a management-API controller.
func NewAPI(baseURL string, token model.Secret, stopTimeout time.Duration) *API {
	return &API{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		stopTimeout: stopTimeout,
		httpClient: &http.Client{
			Timeout: stopTimeout + 30*time.Second,
		},
	}
}

// APIError represents a non-2xx answer of the management API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("management api returned %d: %s", e.StatusCode, e.Body)
}

func (a *API) Mode() model.ControlMode { return model.ControlModeAPI }

type containerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func (a *API) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token.Reveal())
	}
	req.Header.Set("Accept", "application/json")

	log.Debug("[Controller] management api request", "method", method, "path", path)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func containerPath(name string, action string) string {
	p := "/api/containers/" + url.PathEscape(name)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (a *API) state(ctx context.Context, name string) (docker.State, error) {
	var st containerStatus
	if err := a.do(ctx, http.MethodGet, containerPath(name, ""), &st); err != nil {
		return docker.StateUnknown, err
	}
	return docker.MapState(st.State), nil
}

func isNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Stop asks the API to stop every running member.
func (a *API) Stop(ctx context.Context, target model.Target, guard model.Guard) (model.StopResult, error) {
	if !guard.Allow {
		return skippedStop(a.Mode(), guard, target), nil
	}
	res := newStopResult(a.Mode(), guard)
	stopPath := "/stop?t=" + strconv.Itoa(int(a.stopTimeout.Seconds()))

	for _, ref := range target.Members() {
		if err := ctx.Err(); err != nil {
			logStop(res, target)
			return res, err
		}
		state, err := a.state(ctx, ref.Name)
		if err != nil {
			if isNotFound(err) {
				res.AlreadyStopped = append(res.AlreadyStopped, ref)
				continue
			}
			res.Failed[ref.Name] = err
			continue
		}
		if !state.Active() {
			res.AlreadyStopped = append(res.AlreadyStopped, ref)
			continue
		}
		if err := a.do(ctx, http.MethodPost, containerPath(ref.Name, "")+stopPath, nil); err != nil {
			res.Failed[ref.Name] = err
			continue
		}
		res.Stopped = append(res.Stopped, ref)
	}
	logStop(res, target)
	return res, nil
}

// Start asks the API to start every member.
func (a *API) Start(ctx context.Context, target model.Target, guard model.Guard) (model.StartResult, error) {
	if !guard.Allow {
		return skippedStart(a.Mode(), guard, target), nil
	}
	res := newStartResult(a.Mode())
	for _, ref := range target.Members() {
		if err := a.do(ctx, http.MethodPost, containerPath(ref.Name, "start"), nil); err != nil {
			res.Failed[ref.Name] = err
			continue
		}
		res.Started = append(res.Started, ref)
	}
	logStart(res, target)
	return res, nil
}

// Running returns the members the API reports as running.
func (a *API) Running(ctx context.Context, target model.Target) ([]model.ContainerRef, error) {
	var running []model.ContainerRef
	for _, ref := range target.Members() {
		state, err := a.state(ctx, ref.Name)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if state.Active() {
			running = append(running, ref)
		}
	}
	return running, nil
}

// Recreate asks the API to recreate every member from its current image tag.
func (a *API) Recreate(ctx context.Context, target model.Target) error {
	for _, ref := range target.Members() {
		if err := a.do(ctx, http.MethodPost, containerPath(ref.Name, "recreate"), nil); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", ref.Name, err)
		}
	}
	return nil
}
