package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ReadonlyScope = "https://www.googleapis.com/auth/spreadsheets.readonly"

type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// ServiceAccountCredentials is the subset of a Google service-account key
// file this client needs.
type ServiceAccountCredentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

func LoadCredentials(path string) (ServiceAccountCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceAccountCredentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var creds ServiceAccountCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return ServiceAccountCredentials{}, fmt.Errorf("parse credentials file: %w", err)
	}
	if creds.ClientEmail == "" {
		return ServiceAccountCredentials{}, fmt.Errorf("credentials file missing client_email")
	}
	if creds.PrivateKey == "" {
		return ServiceAccountCredentials{}, fmt.Errorf("credentials file missing private_key")
	}
	if creds.TokenURI == "" {
		creds.TokenURI = "https://oauth2.googleapis.com/token"
	}

	return creds, nil
}

// ServiceAccountTokenSource exchanges a signed JWT assertion for a bearer
// token and caches it until shortly before expiry.
type ServiceAccountTokenSource struct {
	Credentials ServiceAccountCredentials
	Scope       string
	HTTPClient  *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (s *ServiceAccountTokenSource) GetAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt.Add(-time.Minute)) {
		return s.token, nil
	}

	token, expiresIn, err := s.exchange(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return s.token, nil
}

func (s *ServiceAccountTokenSource) exchange(ctx context.Context) (string, int64, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.Credentials.PrivateKey))
	if err != nil {
		return "", 0, fmt.Errorf("parse service account private key: %w", err)
	}

	scope := s.Scope
	if scope == "" {
		scope = ReadonlyScope
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.Credentials.ClientEmail,
		"scope": scope,
		"aud":   s.Credentials.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", 0, fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	logRequest(http.MethodPost, s.Credentials.TokenURI)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Credentials.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", 0, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, err
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}

	return payload.AccessToken, payload.ExpiresIn, nil
}
