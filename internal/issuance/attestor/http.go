package attestor

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	dErrors "certledger/pkg/domain-errors"
)

// HTTP calls a remote attestation endpoint over JSON.
type HTTP struct {
	client *resty.Client
}

// NewHTTP builds an HTTP attestor against the given base URL. No client-side
// retries: the issuance engine treats a failed attestation as a partial
// result and leaves retrying to an external reconciliation job.
func NewHTTP(baseURL string) *HTTP {
	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0)
	return &HTTP{client: client}
}

type attestResponse struct {
	Ref string `json:"ref"`
}

func (h *HTTP) Attest(ctx context.Context, req Request) (string, error) {
	var out attestResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/attestations")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "attestation call timed out")
		}
		return "", fmt.Errorf("attestation call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("attestation service returned %s", resp.Status())
	}
	if out.Ref == "" {
		return "", errors.New("attestation service returned an empty reference")
	}
	return out.Ref, nil
}
