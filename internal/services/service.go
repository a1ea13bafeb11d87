// Package services implements the product and order resource services: thin
// CRUD wrappers over the API gateway with client-side filtering and the
// order-creation stock pre-flight.
package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"possync-go/internal/gateway"
)

// NewLocalID generates a correlation id for a record not yet confirmed by
// the server. It is never presented as a durable identity.
func NewLocalID() string {
	rand := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return "local_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + rand
}

// unwrap validates a gateway response and decodes the envelope data into out
// (out may be nil). Authentication failures are wrapped with
// gateway.ErrUnauthorized so callers can route to re-login.
func unwrap(resp *gateway.Response, out interface{}) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", gateway.ErrUnauthorized, resp.ErrorMessage())
	}
	if !resp.OK() {
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, resp.ErrorMessage())
	}

	env, err := resp.Envelope()
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("server reported failure: %s", env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("malformed response data: %w", err)
		}
	}
	return nil
}

// listQuery renders optional limit/offset query parameters.
func listQuery(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	q := "?"
	if limit > 0 {
		q += "limit=" + strconv.Itoa(limit)
	}
	if offset > 0 {
		if limit > 0 {
			q += "&"
		}
		q += "offset=" + strconv.Itoa(offset)
	}
	return q
}
