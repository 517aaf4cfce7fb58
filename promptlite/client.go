package promptlite

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/promptpad/promptsync/promptsync"
)

// Config holds configuration for the sync client.
type Config struct {
	APIBaseURL        string        // base URL for the sync and mutations endpoints
	PollInterval      time.Duration // time between pull ticks
	MaxRetries        int           // per-mutation retry budget before permanent failure
	RetryBackoff      int           // reserved for an exponential backoff multiplier
	InitialRetryDelay time.Duration // delay before the first retry after transport failure
	ClientID          string        // overrides the persisted device identity
	PullLimit         int           // delta page size requested per pull
	PushBatchSize     int           // max mutations per push batch
	HTTPTimeout       time.Duration // transport timeout per request
}

// DefaultConfig returns the stock client configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:        "http://localhost:3001/api",
		PollInterval:      5 * time.Second,
		MaxRetries:        5,
		RetryBackoff:      2,
		InitialRetryDelay: 1 * time.Second,
		PullLimit:         100,
		PushBatchSize:     10,
		HTTPTimeout:       30 * time.Second,
	}
}

// pushShortDelay is the re-arm delay when a push completes with work left.
const pushShortDelay = 100 * time.Millisecond

// Callbacks are optional host hooks. Nil members are skipped.
type Callbacks struct {
	OnStatusChange    func(Status)
	OnSyncComplete    func(*promptsync.SyncResponse)
	OnSyncError       func(error)
	OnMutationsPushed func(count int)
	OnMutationFailed  func(m promptsync.Mutation, errMsg string)
	OnOnlineChange    func(isOnline bool)
}

// Client is the background sync engine: it pulls delta packets on a schedule,
// drains the pending mutation queue in batches, and keeps the view's status
// record current. One instance per store; re-initialization must destroy the
// previous instance first.
type Client struct {
	store     *Store
	view      *View
	config    *Config
	callbacks Callbacks
	http      *http.Client
	logger    *slog.Logger

	clientID string

	mu        sync.Mutex
	pulling   bool
	pushing   bool
	online    bool
	started   bool
	destroyed bool
	stopCh    chan struct{}

	pullWake chan struct{}
	pushWake chan time.Duration

	// Highest cursor observed on the push path. Never installed as the
	// cursor; the pull path owns cursor advancement.
	pushedSyncID int64
}

// NewClient creates a sync client over the given store and view. config and
// logger may be nil.
func NewClient(store *Store, view *View, config *Config, callbacks Callbacks, logger *slog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.PullLimit <= 0 {
		config.PullLimit = 100
	}
	if config.PushBatchSize <= 0 {
		config.PushBatchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:     store,
		view:      view,
		config:    config,
		callbacks: callbacks,
		http:      &http.Client{Timeout: config.HTTPTimeout},
		logger:    logger,
		online:    true,
		pullWake:  make(chan struct{}, 1),
		pushWake:  make(chan time.Duration, 1),
	}
}

// Init loads or mints the client identity and sets the initial status.
func (c *Client) Init(ctx context.Context) error {
	clientID, err := c.store.EnsureClientID(ctx, c.config.ClientID)
	if err != nil {
		return err
	}
	c.clientID = clientID

	c.mu.Lock()
	online := c.online
	c.mu.Unlock()

	state := StateIdle
	if !online {
		state = StateOffline
	}
	c.setStatus(func(st *Status) {
		st.State = state
		st.IsOnline = online
	})
	return nil
}

// ClientID returns the per-device identity established by Init.
func (c *Client) ClientID() string {
	return c.clientID
}

// Start begins the pull and push schedules and triggers an initial pull.
// Idempotent while running.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	go c.run(stopCh)
	c.kickPull()
}

// run owns the timers. The push timer first fires one poll interval after
// start; completions re-arm it through pushWake.
func (c *Client) run(stopCh chan struct{}) {
	pullTicker := time.NewTicker(c.config.PollInterval)
	defer pullTicker.Stop()
	pushTimer := time.NewTimer(c.config.PollInterval)
	defer pushTimer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-pullTicker.C:
			c.kickPull()
		case <-c.pullWake:
			c.kickPull()
		case <-pushTimer.C:
			c.kickPush()
		case d := <-c.pushWake:
			if !pushTimer.Stop() {
				select {
				case <-pushTimer.C:
				default:
				}
			}
			pushTimer.Reset(d)
		}
	}
}

// Stop cancels the schedules. In-flight requests finish on their own; the
// queue is left intact.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	close(c.stopCh)
}

// Destroy stops the engine permanently. Safe to call multiple times.
func (c *Client) Destroy() {
	c.Stop()
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
}

// SetOnline feeds the external connectivity signal. Coming back online
// resumes the schedule and immediately triggers one pull and one push.
func (c *Client) SetOnline(isOnline bool) {
	c.mu.Lock()
	if c.online == isOnline {
		c.mu.Unlock()
		return
	}
	c.online = isOnline
	c.mu.Unlock()

	if isOnline {
		c.setStatus(func(st *Status) {
			st.State = StateIdle
			st.IsOnline = true
		})
		c.kickPull()
		c.kickPush()
	} else {
		c.setStatus(func(st *Status) {
			st.State = StateOffline
			st.IsOnline = false
		})
	}

	if c.callbacks.OnOnlineChange != nil {
		c.callbacks.OnOnlineChange(isOnline)
	}
}

// Online reports the last connectivity signal.
func (c *Client) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// ForceSync bypasses the schedule and begins one pull immediately, subject
// to the single-in-flight constraint.
func (c *Client) ForceSync() {
	c.kickPull()
}

// ForcePush bypasses the schedule and begins one push immediately, subject
// to the single-in-flight constraint.
func (c *Client) ForcePush() {
	c.kickPush()
}

// setStatus merges a change into the view's status record and fans it out to
// the host callback.
func (c *Client) setStatus(apply func(*Status)) {
	c.view.updateStatus(apply)
	if c.callbacks.OnStatusChange != nil {
		c.callbacks.OnStatusChange(c.view.Status())
	}
}
