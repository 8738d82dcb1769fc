package activities

import (
	"context"
	"encoding/json"

	"github.com/hashicorp/go-multierror"

	"projectplane/internal/model"
)

// ProviderSendInput delivers one provider command to one provider.
type ProviderSendInput struct {
	Provider model.Provider        `json:"provider"`
	Command  model.ProviderCommand `json:"command"`
}

// providerCommandSend posts the command and normalizes failure: a provider
// that reports a failed result becomes an error carrying the provider's own
// messages, so the retry policy and the orchestration's error collection
// both see it.
func (a *Activities) providerCommandSend(ctx context.Context, input json.RawMessage) (interface{}, error) {
	in, err := decode[ProviderSendInput](input)
	if err != nil {
		return nil, err
	}

	result, err := a.Sender.Send(ctx, in.Provider, in.Command)
	if err != nil {
		return nil, model.NewCommandError(model.ErrorKindProvider, err)
	}

	if result.RuntimeStatus == model.RuntimeStatusFailed {
		var merr *multierror.Error
		for _, ce := range result.Errors {
			merr = multierror.Append(merr, ce)
		}
		failure := merr.ErrorOrNil()
		if failure == nil {
			failure = model.CommandError{Kind: model.ErrorKindProvider, Message: "provider " + in.Provider.ID + " reported failure"}
		}
		return nil, model.NewCommandError(model.ErrorKindProvider, failure)
	}

	return result, nil
}
