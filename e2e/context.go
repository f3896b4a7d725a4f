package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Persona is a seeded user the scenarios act as, keyed by first name.
type Persona struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Response is one captured HTTP exchange.
type Response struct {
	Status int
	Body   []byte
}

// TestContext carries HTTP state between steps of one scenario.
type TestContext struct {
	baseURL    string
	signingKey []byte
	issuer     string
	audience   string
	client     *http.Client
	personas   map[string]Persona

	mu    sync.Mutex
	actor string
	last  Response
	saved map[string]string
}

// NewTestContext reads BLOODLINK_E2E_URL, JWT_SIGNING_KEY, JWT_ISSUER and
// JWT_AUDIENCE so tokens match the server under test.
func NewTestContext(seedFile string) (*TestContext, error) {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}
	var seeded []Persona
	if err := json.Unmarshal(raw, &seeded); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}
	personas := make(map[string]Persona, len(seeded))
	for _, p := range seeded {
		first, _, _ := strings.Cut(p.Name, " ")
		personas[first] = p
	}
	return &TestContext{
		baseURL:    getenv("BLOODLINK_E2E_URL", "http://localhost:8080"),
		signingKey: []byte(getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production")),
		issuer:     os.Getenv("JWT_ISSUER"),
		audience:   os.Getenv("JWT_AUDIENCE"),
		client:     &http.Client{Timeout: 10 * time.Second},
		personas:   personas,
	}, nil
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.actor = ""
	tc.last = Response{}
	tc.saved = map[string]string{}
}

// ActAs switches the current actor; an empty name drops authentication.
func (tc *TestContext) ActAs(name string) error {
	if name == "" {
		tc.actor = ""
		return nil
	}
	if _, ok := tc.personas[name]; !ok {
		return fmt.Errorf("unknown persona %q", name)
	}
	tc.actor = name
	return nil
}

func (tc *TestContext) PersonaID(name string) (string, error) {
	p, ok := tc.personas[name]
	if !ok {
		return "", fmt.Errorf("unknown persona %q", name)
	}
	return p.ID, nil
}

// Do sends a request as persona; an empty persona sends no token.
func (tc *TestContext) Do(ctx context.Context, persona, method, path string, body any) (Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.baseURL+path, reader)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if persona != "" {
		token, err := tc.token(persona)
		if err != nil {
			return Response{}, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: resp.StatusCode, Body: payload}, nil
}

// Send is Do as the current actor, recording the response for assertions.
func (tc *TestContext) Send(ctx context.Context, method, path string, body any) error {
	resp, err := tc.Do(ctx, tc.actor, method, path, body)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	tc.last = resp
	tc.mu.Unlock()
	return nil
}

func (tc *TestContext) Last() Response {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.last
}

func (tc *TestContext) LastStatus() int { return tc.Last().Status }

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved under %q", key)
	}
	return v, nil
}

// Field walks a dotted path through the last JSON body.
func (tc *TestContext) Field(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.Last().Body, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		cur, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q missing in %s", path, tc.Last().Body)
		}
	}
	return cur, nil
}

func (tc *TestContext) token(persona string) (string, error) {
	p, ok := tc.personas[persona]
	if !ok {
		return "", fmt.Errorf("unknown persona %q", persona)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   p.ID,
		Issuer:    tc.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        uuid.NewString(),
	}
	if tc.audience != "" {
		claims.Audience = jwt.ClaimStrings{tc.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
