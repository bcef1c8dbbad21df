package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the credential sent with every API request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token or fine-grained token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("github token is empty")
	}
	return string(s), nil
}

// AppTokenSource authenticates as a GitHub App installation. The installation
// token is cached and refreshed one minute before it expires.
type AppTokenSource struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	baseURL        string
	httpClient     *http.Client

	mu    sync.Mutex
	token string
	expAt time.Time
}

// NewAppTokenSource loads the PEM private key from keyPath. An installationID
// of zero is discovered on first use when the app has exactly one installation.
func NewAppTokenSource(appID, installationID int64, keyPath string, optFns ...func(o *Options)) (*AppTokenSource, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return NewAppTokenSourceFromPEM(appID, installationID, raw, optFns...)
}

// NewAppTokenSourceFromPEM builds an AppTokenSource from PEM encoded key bytes.
func NewAppTokenSourceFromPEM(appID, installationID int64, pemBytes []byte, optFns ...func(o *Options)) (*AppTokenSource, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &AppTokenSource{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
	}, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	pkcs8Key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

// makeJWT signs an RS256 app JWT: issued 60s in the past against clock
// drift, valid for 10 minutes.
func (s *AppTokenSource) makeJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(s.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

type installationTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type installationInfo struct {
	ID int64 `json:"id"`
}

func (s *AppTokenSource) appRequest(ctx context.Context, method, path string) (*http.Response, error) {
	jwtStr, err := s.makeJWT()
	if err != nil {
		return nil, fmt.Errorf("sign JWT: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+jwtStr)
	req.Header.Set("Accept", "application/vnd.github+json")

	return s.httpClient.Do(req)
}

func (s *AppTokenSource) ensureInstallationID(ctx context.Context) error {
	if s.installationID != 0 {
		return nil
	}

	resp, err := s.appRequest(ctx, http.MethodGet, "/app/installations?per_page=100")
	if err != nil {
		return fmt.Errorf("discover installation id: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discover installation id HTTP %d: %s", resp.StatusCode, body)
	}

	var installations []installationInfo
	if err := json.NewDecoder(resp.Body).Decode(&installations); err != nil {
		return fmt.Errorf("decode installations response: %w", err)
	}

	if len(installations) == 0 {
		return fmt.Errorf("no installation found for this GitHub App")
	}
	if len(installations) > 1 {
		return fmt.Errorf("multiple installations found (%d), set GITHUB_INSTALLATION_ID explicitly", len(installations))
	}

	s.installationID = installations[0].ID
	return nil
}

// Token implements TokenSource.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInstallationID(ctx); err != nil {
		return "", err
	}

	if s.token != "" && time.Now().Before(s.expAt.Add(-time.Minute)) {
		return s.token, nil
	}

	resp, err := s.appRequest(ctx, http.MethodPost, fmt.Sprintf("/app/installations/%d/access_tokens", s.installationID))
	if err != nil {
		return "", fmt.Errorf("request installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("installation token HTTP %d: %s", resp.StatusCode, body)
	}

	var tok installationTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	s.token = tok.Token
	s.expAt = tok.ExpiresAt
	return s.token, nil
}
