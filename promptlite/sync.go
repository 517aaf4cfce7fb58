package promptlite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/promptpad/promptsync/promptsync"
)

// kickPull starts one pull unless offline or a pull is already in flight;
// concurrent requests coalesce into the running one.
func (c *Client) kickPull() {
	c.mu.Lock()
	if !c.online || c.pulling {
		c.mu.Unlock()
		return
	}
	c.pulling = true
	c.mu.Unlock()

	go func() {
		err := c.pullAll(context.Background())

		c.mu.Lock()
		c.pulling = false
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("Pull failed", "error", err)
			c.setStatus(func(st *Status) {
				st.State = StateError
				st.LastError = err.Error()
			})
			if c.callbacks.OnSyncError != nil {
				c.callbacks.OnSyncError(err)
			}
			return
		}
		c.setStatus(func(st *Status) {
			st.State = StateIdle
			st.LastError = ""
		})
	}()
}

// pullAll fetches delta pages until the server reports no more, applying
// each packet atomically to store and view.
func (c *Client) pullAll(ctx context.Context) error {
	c.setStatus(func(st *Status) { st.State = StateSyncing })

	for {
		cursor := c.view.Status().LastSyncID
		packet, err := c.fetchSync(ctx, cursor, c.config.PullLimit)
		if err != nil {
			return err
		}

		if err := c.view.ApplyServerChanges(ctx, packet); err != nil {
			return fmt.Errorf("failed to apply delta packet: %w", err)
		}
		if c.callbacks.OnSyncComplete != nil {
			c.callbacks.OnSyncComplete(packet)
		}
		if !packet.HasMore {
			return nil
		}
	}
}

// fetchSync issues POST /sync with the current cursor.
func (c *Client) fetchSync(ctx context.Context, lastSyncID int64, limit int) (*promptsync.SyncResponse, error) {
	reqBody, err := json.Marshal(&promptsync.SyncRequest{LastSyncID: lastSyncID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/sync", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach sync endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sync endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var packet promptsync.SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&packet); err != nil {
		return nil, fmt.Errorf("failed to decode sync response: %w", err)
	}
	return &packet, nil
}

// kickPush starts one push unless offline or a push is already in flight.
func (c *Client) kickPush() {
	c.mu.Lock()
	if !c.online || c.pushing {
		c.mu.Unlock()
		return
	}
	c.pushing = true
	c.mu.Unlock()

	go func() {
		c.pushOnce(context.Background())
		c.mu.Lock()
		c.pushing = false
		c.mu.Unlock()
	}()
}

// pushOnce drains one batch from the pending queue. Transport failures leave
// every retry counter untouched and re-arm the push timer at the retry
// delay; per-mutation rejections are counted against the retry budget.
func (c *Client) pushOnce(ctx context.Context) {
	batch, err := c.store.PendingOrdered(ctx, c.config.PushBatchSize)
	if err != nil {
		c.logger.Error("Failed to read pending queue", "error", err)
		c.setStatus(func(st *Status) {
			st.State = StateError
			st.LastError = err.Error()
		})
		c.reschedulePush(c.config.InitialRetryDelay)
		return
	}
	if len(batch) == 0 {
		c.reschedulePush(c.config.PollInterval)
		return
	}

	c.setStatus(func(st *Status) { st.State = StatePushing })

	mutations := make([]promptsync.Mutation, len(batch))
	byID := make(map[string]*PendingMutation, len(batch))
	for i := range batch {
		mutations[i] = batch[i].Mutation
		byID[batch[i].ID] = &batch[i]
	}

	resp, err := c.postMutations(ctx, mutations)
	if err != nil {
		// Transport-level failure: the whole batch is retried later and no
		// per-mutation retry counter moves.
		c.logger.Warn("Push failed", "error", err, "batch", len(batch))
		c.setStatus(func(st *Status) {
			st.State = StateError
			st.LastError = err.Error()
		})
		if c.callbacks.OnSyncError != nil {
			c.callbacks.OnSyncError(err)
		}
		c.reschedulePush(c.config.InitialRetryDelay)
		return
	}

	pushed := 0
	for _, result := range resp.Results {
		m, ok := byID[result.MutationID]
		if !ok {
			c.logger.Warn("Server acknowledged unknown mutation", "mutation_id", result.MutationID)
			continue
		}

		if result.Success {
			pushed++
			if err := c.view.RemovePendingMutation(ctx, m.ID); err != nil {
				c.logger.Error("Failed to dequeue acked mutation", "mutation_id", m.ID, "error", err)
			}
			continue
		}

		retryCount := m.RetryCount + 1
		if retryCount >= c.config.MaxRetries {
			c.logger.Warn("Dropping mutation after exhausting retries",
				"mutation_id", m.ID, "entity", m.EntityID, "error", result.Error)
			if err := c.view.RemovePendingMutation(ctx, m.ID); err != nil {
				c.logger.Error("Failed to dequeue failed mutation", "mutation_id", m.ID, "error", err)
			}
			if c.callbacks.OnMutationFailed != nil {
				c.callbacks.OnMutationFailed(m.Mutation, result.Error)
			}
			continue
		}
		if err := c.store.UpdateMutation(ctx, m.ID, retryCount, result.Error); err != nil {
			c.logger.Error("Failed to record mutation retry", "mutation_id", m.ID, "error", err)
		}
	}

	// The response cursor is only remembered as a floor; the pull path owns
	// cursor advancement.
	c.mu.Lock()
	if resp.SyncID > c.pushedSyncID {
		c.pushedSyncID = resp.SyncID
	}
	c.mu.Unlock()

	if c.callbacks.OnMutationsPushed != nil && pushed > 0 {
		c.callbacks.OnMutationsPushed(pushed)
	}

	c.setStatus(func(st *Status) {
		st.State = StateIdle
		st.LastError = ""
	})

	remaining, err := c.store.PendingCount(ctx)
	if err != nil {
		c.logger.Error("Failed to count pending queue", "error", err)
		remaining = 0
	}
	if remaining > 0 {
		c.reschedulePush(pushShortDelay)
	} else {
		c.reschedulePush(c.config.PollInterval)
	}
}

// postMutations issues POST /mutations with one batch.
func (c *Client) postMutations(ctx context.Context, mutations []promptsync.Mutation) (*promptsync.MutationsResponse, error) {
	reqBody, err := json.Marshal(&promptsync.MutationsRequest{
		ClientID:  c.clientID,
		Mutations: mutations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mutations request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/mutations", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create mutations request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach mutations endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mutations endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var out promptsync.MutationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode mutations response: %w", err)
	}
	return &out, nil
}

// reschedulePush re-arms the push timer. When a re-arm is already queued and
// not yet consumed, this request is dropped and the queued one stands.
func (c *Client) reschedulePush(d time.Duration) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}
	select {
	case c.pushWake <- d:
	default:
		// A reschedule is already queued; the pending one is close enough.
	}
}
