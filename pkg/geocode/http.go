package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/closest-tornado/internal/resilience"
)

// getJSON issues a GET and decodes a 200 response into target. Transport
// failures and 5xx responses come back as *resilience.TransientError; any
// other status is terminal.
func (b *base) getJSON(ctx context.Context, name, reqURL string, header http.Header, target any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "geocode: %s rate limit", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrapf(err, "geocode: %s build request", name)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "geocode: %s request", name), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsServerErrorStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resilience.NewTransientError(
			eris.Errorf("geocode: %s returned status %d", name, resp.StatusCode),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("geocode: %s returned status %d", name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return eris.Wrapf(err, "geocode: %s parse response", name)
	}
	return nil
}
