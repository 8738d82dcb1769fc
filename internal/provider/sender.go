// Package provider delivers provider commands to registered external
// providers over HTTP and normalizes their responses.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"projectplane/internal/model"
)

// Sender posts provider commands to a provider's command endpoint. Retries
// are the caller's concern; a Sender performs exactly one attempt per call.
type Sender struct {
	client *http.Client
	log    *slog.Logger
}

// NewSender builds a sender with the given per-request timeout.
func NewSender(timeout time.Duration, log *slog.Logger) *Sender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sender{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Send delivers the command to the provider and returns its normalized
// result. Transport failures and non-2xx responses come back as errors so
// the activity retry policy can decide what to do with them.
func (s *Sender) Send(ctx context.Context, provider model.Provider, cmd model.ProviderCommand) (*model.ProviderCommandResult, error) {
	endpoint, err := commandURL(provider)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	s.log.Debug("sending provider command",
		"provider_id", provider.ID,
		"command_id", cmd.CommandID,
		"command_type", cmd.Type)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s unreachable: %w", provider.ID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("provider %s response read failed: %w", provider.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider %s returned status %d", provider.ID, resp.StatusCode)
	}

	return parseResult(provider.ID, cmd, payload), nil
}

// commandURL appends the commands path and the provider's auth code.
func commandURL(provider model.Provider) (string, error) {
	u, err := url.Parse(provider.URL)
	if err != nil {
		return "", fmt.Errorf("provider %s has invalid url: %w", provider.ID, err)
	}
	u.Path, err = url.JoinPath(u.Path, "commands")
	if err != nil {
		return "", err
	}
	if provider.AuthCode != "" {
		q := u.Query()
		q.Set("code", provider.AuthCode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// parseResult extracts the fields we care about from a provider response
// without insisting on an exact shape. Providers are external services; a
// missing status on a 2xx response counts as completed.
func parseResult(providerID string, cmd model.ProviderCommand, payload []byte) *model.ProviderCommandResult {
	result := &model.ProviderCommandResult{
		CommandID:     cmd.CommandID,
		ProviderID:    providerID,
		RuntimeStatus: model.RuntimeStatusCompleted,
		Output:        model.ProviderOutput{ProviderID: providerID},
	}

	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return result
	}

	if status := gjson.GetBytes(payload, "runtime_status"); status.Exists() {
		result.RuntimeStatus = model.RuntimeStatus(status.String())
	}

	if props := gjson.GetBytes(payload, "output.properties"); props.IsObject() {
		result.Output.Properties = map[string]string{}
		props.ForEach(func(key, value gjson.Result) bool {
			result.Output.Properties[key.String()] = value.String()
			return true
		})
	}

	gjson.GetBytes(payload, "errors").ForEach(func(_, value gjson.Result) bool {
		result.Errors = append(result.Errors, model.CommandError{
			Kind:    model.ErrorKindProvider,
			Message: value.Get("message").String(),
		})
		return true
	})

	return result
}
