package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Теги MLflow, через которые задаются имя run и вложенность.
const (
	tagRunName     = "mlflow.runName"
	tagParentRunID = "mlflow.parentRunId"
)

// Коды ошибок MLflow.
const (
	codeResourceDoesNotExist  = "RESOURCE_DOES_NOT_EXIST"
	codeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
)

const searchPageSize = 1000

// APIError — ошибка, возвращённая MLflow tracking server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("mlflow API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("mlflow API error: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// MLflowBackend — backend поверх MLflow REST API.
type MLflowBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewMLflowBackend создаёт backend для tracking server по адресу trackingURI.
func NewMLflowBackend(trackingURI string, timeout time.Duration) *MLflowBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MLflowBackend{
		baseURL: strings.TrimRight(trackingURI, "/") + "/api/2.0/mlflow",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Wire types ---

type mlflowTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type mlflowExperiment struct {
	ExperimentID string `json:"experiment_id"`
	Name         string `json:"name"`
}

type mlflowRunInfo struct {
	RunID        string `json:"run_id"`
	ExperimentID string `json:"experiment_id"`
	RunName      string `json:"run_name"`
	Status       string `json:"status"`
	StartTime    millis `json:"start_time"`
	EndTime      millis `json:"end_time,omitempty"`
}

// millis — время в миллисекундах. MLflow отдаёт int64 как число,
// часть прокси сериализует его строкой; принимаем оба варианта.
type millis int64

func (m *millis) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse millis %q: %w", s, err)
	}
	*m = millis(v)
	return nil
}

type mlflowRunData struct {
	Params []Param     `json:"params"`
	Tags   []mlflowTag `json:"tags"`
}

type mlflowRun struct {
	Info mlflowRunInfo `json:"info"`
	Data mlflowRunData `json:"data"`
}

type createRunRequest struct {
	ExperimentID string      `json:"experiment_id"`
	RunName      string      `json:"run_name,omitempty"`
	StartTime    int64       `json:"start_time"`
	Tags         []mlflowTag `json:"tags,omitempty"`
}

type searchRunsRequest struct {
	ExperimentIDs []string `json:"experiment_ids"`
	MaxResults    int      `json:"max_results"`
	OrderBy       []string `json:"order_by,omitempty"`
	PageToken     string   `json:"page_token,omitempty"`
}

type searchRunsResponse struct {
	Runs          []mlflowRun `json:"runs"`
	NextPageToken string      `json:"next_page_token"`
}

// --- Backend ---

// GetExperimentByName ищет эксперимент по имени.
func (b *MLflowBackend) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	params := url.Values{}
	params.Set("experiment_name", name)

	var resp struct {
		Experiment mlflowExperiment `json:"experiment"`
	}
	err := b.get(ctx, "/experiments/get-by-name?"+params.Encode(), &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) &&
			(apiErr.Code == codeResourceDoesNotExist || apiErr.StatusCode == http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, name)
		}
		return nil, err
	}

	return &Experiment{ID: resp.Experiment.ExperimentID, Name: resp.Experiment.Name}, nil
}

// CreateExperiment создаёт эксперимент.
func (b *MLflowBackend) CreateExperiment(ctx context.Context, name string) (string, error) {
	var resp struct {
		ExperimentID string `json:"experiment_id"`
	}
	err := b.post(ctx, "/experiments/create", map[string]string{"name": name}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeResourceAlreadyExists {
			return "", fmt.Errorf("%w: %s", ErrExperimentExists, name)
		}
		return "", err
	}
	return resp.ExperimentID, nil
}

// CreateRun создаёт run; вложенность задаётся тегом mlflow.parentRunId.
func (b *MLflowBackend) CreateRun(ctx context.Context, req CreateRunRequest) (*RunInfo, error) {
	body := createRunRequest{
		ExperimentID: req.ExperimentID,
		RunName:      req.Name,
		StartTime:    req.StartTime.UnixMilli(),
		Tags:         []mlflowTag{{Key: tagRunName, Value: req.Name}},
	}
	if req.ParentID != "" {
		body.Tags = append(body.Tags, mlflowTag{Key: tagParentRunID, Value: req.ParentID})
	}

	var resp struct {
		Run mlflowRun `json:"run"`
	}
	if err := b.post(ctx, "/runs/create", body, &resp); err != nil {
		return nil, err
	}

	info := runFromMLflow(resp.Run)
	if info.ExperimentID == "" {
		info.ExperimentID = req.ExperimentID
	}
	if info.ParentID == "" {
		info.ParentID = req.ParentID
	}
	if info.Name == "" {
		info.Name = req.Name
	}
	return &info, nil
}

// LogParams записывает параметры одним запросом runs/log-batch.
func (b *MLflowBackend) LogParams(ctx context.Context, runID string, params []Param) error {
	body := map[string]any{
		"run_id": runID,
		"params": params,
	}
	return b.post(ctx, "/runs/log-batch", body, nil)
}

// UpdateRun завершает run.
func (b *MLflowBackend) UpdateRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error {
	body := map[string]any{
		"run_id":   runID,
		"status":   string(status),
		"end_time": endTime.UnixMilli(),
	}
	return b.post(ctx, "/runs/update", body, nil)
}

// ListRuns возвращает runs эксперимента, постранично через runs/search.
func (b *MLflowBackend) ListRuns(ctx context.Context, experimentID string) ([]RunInfo, error) {
	req := searchRunsRequest{
		ExperimentIDs: []string{experimentID},
		MaxResults:    searchPageSize,
		OrderBy:       []string{"attributes.start_time ASC"},
	}

	var out []RunInfo
	for {
		var resp searchRunsResponse
		if err := b.post(ctx, "/runs/search", req, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Runs {
			out = append(out, runFromMLflow(r))
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		req.PageToken = resp.NextPageToken
	}
}

func runFromMLflow(r mlflowRun) RunInfo {
	info := RunInfo{
		ID:           r.Info.RunID,
		ExperimentID: r.Info.ExperimentID,
		Name:         r.Info.RunName,
		Status:       RunStatus(r.Info.Status),
		Params:       r.Data.Params,
	}
	if r.Info.StartTime > 0 {
		info.StartTime = time.UnixMilli(int64(r.Info.StartTime))
	}
	if r.Info.EndTime > 0 {
		info.EndTime = time.UnixMilli(int64(r.Info.EndTime))
	}
	for _, tag := range r.Data.Tags {
		switch tag.Key {
		case tagParentRunID:
			info.ParentID = tag.Value
		case tagRunName:
			if info.Name == "" {
				info.Name = tag.Value
			}
		}
	}
	return info
}

// --- HTTP helpers ---

func (b *MLflowBackend) get(ctx context.Context, path string, result any) error {
	return b.doJSON(ctx, http.MethodGet, path, nil, result)
}

func (b *MLflowBackend) post(ctx context.Context, path string, body any, result any) error {
	return b.doJSON(ctx, http.MethodPost, path, body, result)
}

func (b *MLflowBackend) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var er struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.ErrorCode
		apiErr.Message = er.Message
	}
	return apiErr
}
