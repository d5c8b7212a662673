package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/util/resiliency"
)

const (
	DefaultPinataAPIURL     = "https://api.pinata.cloud"
	DefaultPinataGatewayURL = "https://gateway.pinata.cloud"
)

type PinataConfig struct {
	APIKey     string
	APISecret  string
	APIURL     string
	GatewayURL string
	Timeout    time.Duration
}

// PinataStore pins documents to IPFS through the Pinata pinning API and
// reads them back through an IPFS gateway. Hashes are CIDs.
type PinataStore struct {
	cfg    PinataConfig
	client *resiliency.EnhancedClient
	logger *slog.Logger
}

func NewPinataStore(cfg PinataConfig) (*PinataStore, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("pinata api key and secret are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultPinataAPIURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultPinataGatewayURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")
	return &PinataStore{
		cfg:    cfg,
		client: resiliency.NewEnhancedClient("pinata", cfg.Timeout),
		logger: slog.Default().With("component", "contentstore.pinata"),
	}, nil
}

// WithClient replaces the HTTP client.
func (s *PinataStore) WithClient(c *resiliency.EnhancedClient) *PinataStore {
	s.client = c
	return s
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (s *PinataStore) Put(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if filename == "" {
		filename = "file"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.APIURL+"/pinning/pinFileToIPFS", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("pinata_api_key", s.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", s.cfg.APISecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pinata upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("pinata upload: decode response: %w", err)
	}
	if err := validCID(out.IpfsHash); err != nil {
		return "", fmt.Errorf("pinata upload: %w", err)
	}

	s.logger.Info("document pinned", "cid", out.IpfsHash, "size", out.PinSize)
	return out.IpfsHash, nil
}

func (s *PinataStore) Get(ctx context.Context, cid string) ([]byte, error) {
	resp, err := s.gateway(ctx, http.MethodGet, cid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("ipfs gateway: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *PinataStore) Exists(ctx context.Context, cid string) (bool, error) {
	resp, err := s.gateway(ctx, http.MethodHead, cid)
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode/100 != 2:
		return false, fmt.Errorf("ipfs gateway: status %d", resp.StatusCode)
	}
	return true, nil
}

func (s *PinataStore) gateway(ctx context.Context, method, cid string) (*http.Response, error) {
	if err := validCID(cid); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.GatewayURL+"/ipfs/"+cid, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs gateway: %w", err)
	}
	return resp, nil
}

// validCID accepts base58 (Qm...) and base32 (bafy...) CIDs.
func validCID(cid string) error {
	if len(cid) < 10 {
		return fmt.Errorf("%w: %q", ErrInvalidHash, cid)
	}
	for _, r := range cid {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: %q", ErrInvalidHash, cid)
		}
	}
	return nil
}
