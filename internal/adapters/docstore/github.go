package docstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHub хранит документ как файл репозитория через Contents API; токен — sha файла.
type GitHub struct {
	client  *http.Client
	baseURL *url.URL
	repo    string
	path    string
	token   string
}

var _ domain.DocumentBackend = (*GitHub)(nil)

// GitHubConfig описывает подключение к репозиторию.
type GitHubConfig struct {
	BaseURL string
	Repo    string
	Path    string
	Token   string
	Timeout time.Duration
}

// NewGitHub создаёт бэкенд для файла path в репозитории owner/name.
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	if strings.Count(cfg.Repo, "/") != 1 {
		return nil, fmt.Errorf("github repo must look like owner/name, got %q", cfg.Repo)
	}
	if cfg.Path == "" {
		return nil, errors.New("github file path is empty")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultGitHubAPI
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse github url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GitHub{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		repo:    cfg.Repo,
		path:    strings.TrimPrefix(cfg.Path, "/"),
		token:   cfg.Token,
	}, nil
}

type githubContent struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

type githubPutRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type githubPutResponse struct {
	Content githubContent `json:"content"`
}

// Get реализует domain.DocumentBackend.
func (g *GitHub) Get(ctx context.Context) ([]byte, domain.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	g.applyHeaders(req)
	start := time.Now()
	resp, err := g.client.Do(req)
	metrics.ObserveNetworkRequest("github", "get", g.path, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", domain.ErrDocumentNotFound
	case resp.StatusCode >= 300:
		return nil, "", statusError("get", resp)
	}

	var payload githubContent
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("%w: decode response: %v", domain.ErrStoreUnavailable, err)
	}
	body, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode content: %v", domain.ErrStoreUnavailable, err)
	}
	return body, domain.Token(payload.SHA), nil
}

// PutIfMatch реализует domain.DocumentBackend. GitHub сам отклоняет запись с устаревшим sha.
func (g *GitHub) PutIfMatch(ctx context.Context, body []byte, expected domain.Token, message string) (domain.Token, error) {
	payload, err := json.Marshal(githubPutRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(body),
		SHA:     string(expected),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.applyHeaders(req)
	start := time.Now()
	resp, err := g.client.Do(req)
	metrics.ObserveNetworkRequest("github", "put", g.path, start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity, http.StatusPreconditionFailed:
		// 409: sha не совпал, 422: файл уже существует, а sha не передан
		return "", domain.ErrConflict
	default:
		return "", statusError("put", resp)
	}

	var out githubPutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrStoreUnavailable, err)
	}
	return domain.Token(out.Content.SHA), nil
}

func (g *GitHub) endpoint() string {
	u := g.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("%s/repos/%s/contents/%s", g.baseURL.Path, g.repo, g.path)})
	return u.String()
}

func (g *GitHub) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "token "+g.token)
	}
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%w: %s failed: status %d: %s", domain.ErrStoreUnavailable, op, resp.StatusCode, strings.TrimSpace(string(data)))
}
