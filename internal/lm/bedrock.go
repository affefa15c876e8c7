package lm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// bedrockMaxResponseBody caps how much of an InvokeModel response we
// read, the non-streaming analogue of a LimitedWriter cap on a
// streaming response path.
const bedrockMaxResponseBody = 4 << 20

// anthropicRequest is the minimal Bedrock/Anthropic InvokeModel request
// shape needed to send a single-turn prompt.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Bedrock is the default Capability implementation: it SigV4-signs and
// sends a non-streaming InvokeModel request to Amazon Bedrock, stripped
// of any HTTP-proxy/session-logging layer that belongs to a different
// domain than this one.
type Bedrock struct {
	region    string
	credProv  aws.CredentialsProvider
	signer    *v4.Signer
	client    *http.Client
	semaphore chan struct{}
}

// NewBedrock loads AWS credentials for region and returns a ready
// Capability. maxConcurrent bounds in-flight requests, mirroring the
// teacher's bedrockMaxConcurrent semaphore.
func NewBedrock(ctx context.Context, region string, maxConcurrent int) (*Bedrock, error) {
	if region == "" {
		return nil, fmt.Errorf("lm: bedrock region is required")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("lm: load AWS config: %w", err)
	}

	return &Bedrock{
		region:   region,
		credProv: cfg.Credentials,
		signer:   v4.NewSigner(),
		client: &http.Client{
			Transport: &http.Transport{
				DisableCompression: true,
				ForceAttemptHTTP2:  true,
			},
		},
		semaphore: make(chan struct{}, maxConcurrent),
	}, nil
}

// Complete implements Capability.
func (b *Bedrock) Complete(ctx context.Context, prompt, modelID string, opts Options) (string, error) {
	select {
	case b.semaphore <- struct{}{}:
		defer func() { <-b.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	reqBody, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      opts.Temperature,
		Messages:         []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("lm: marshal bedrock request: %w", err)
	}

	upstream := fmt.Sprintf("bedrock-runtime.%s.amazonaws.com", b.region)
	url := fmt.Sprintf("https://%s/model/%s/invoke", upstream, modelID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("lm: build bedrock request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	bodyHash := sha256Hex(reqBody)
	creds, err := b.credProv.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("lm: retrieve AWS credentials: %w", err)
	}
	if err := b.signer.SignHTTP(ctx, creds, httpReq, bodyHash, "bedrock", b.region, time.Now()); err != nil {
		return "", fmt.Errorf("lm: sign bedrock request: %w", err)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("lm: bedrock request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, bedrockMaxResponseBody))
	if err != nil {
		return "", fmt.Errorf("lm: read bedrock response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lm: bedrock returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("lm: parse bedrock response: %w", err)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
