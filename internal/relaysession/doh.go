package relaysession

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

const dohContentType = "application/dns-message"

// resolveDoH bridges a raw DNS wire-format query to a DNS-over-HTTPS
// resolver, returning the response bytes verbatim (also raw DNS wire
// format). The relay never parses the DNS message itself; it is a pure
// byte-level proxy between the tunnel and the resolver.
func resolveDoH(ctx context.Context, client *http.Client, endpoint string, query []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("relaysession: build DoH request: %w", err)
	}
	req.Header.Set("Content-Type", dohContentType)
	req.Header.Set("Accept", dohContentType)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relaysession: DoH request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relaysession: DoH resolver returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("relaysession: read DoH response: %w", err)
	}
	return body, nil
}
