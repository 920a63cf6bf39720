// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/room"
)

// HistoryClient fetches a room's initial message list over HTTP. It
// implements room.HistoryFetcher: a 403 or 410 response is wrapped in
// room.ErrAccessDenied so the room routes it to the access-denied
// callback instead of the generic failed-to-load path.
type HistoryClient struct {
	// BaseURL is the history endpoint root, e.g. https://host/api.
	BaseURL string
	// Client overrides http.DefaultClient when non-nil.
	Client *http.Client
}

// FetchHistory loads the ordered message list for roomID from
// GET {BaseURL}/rooms/{roomID}/messages.
func (h *HistoryClient) FetchHistory(ctx context.Context, roomID string) ([]event.NewMessagePayload, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/messages", h.BaseURL, url.PathEscape(roomID))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: building history request: %w", err)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("transport: fetching history for %s: %w", roomID, err)
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusGone:
		return nil, fmt.Errorf("transport: history for %s: status %d: %w",
			roomID, response.StatusCode, room.ErrAccessDenied)
	default:
		return nil, fmt.Errorf("transport: history for %s: unexpected status %d",
			roomID, response.StatusCode)
	}

	var batch []event.NewMessagePayload
	if err := json.NewDecoder(response.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("transport: decoding history for %s: %w", roomID, err)
	}
	return batch, nil
}
