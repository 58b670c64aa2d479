package metadata

import "context"

func (a *API) publishEvent(ctx context.Context, subject string, payload map[string]any) {
	if a.store.Bus == nil || subject == "" {
		return
	}
	_ = a.store.Bus.Publish(ctx, subject, payload)
}
