package appliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/appliance-link/internal/infrastructure/config"
	"github.com/nerrad567/appliance-link/internal/infrastructure/transport"
	"github.com/nerrad567/appliance-link/internal/watchdog"
)

// eventBuffer bounds the coordinator's inbound event queue. Transport
// callbacks block when it is full, which applies backpressure instead of
// dropping messages.
const eventBuffer = 16

// eventKind discriminates coordinator loop events.
type eventKind int

const (
	evConnect eventKind = iota
	evClose
	evMessage
	evGraceExpired
	evSetInitialised
	evPollStatus
)

// event is one input to the coordinator's single-threaded loop.
type event struct {
	kind eventKind

	err         error           // evClose
	topic       string          // evMessage
	payload     []byte          // evMessage
	seq         uint64          // evGraceExpired
	initialised bool            // evSetInitialised
	pollStatus  watchdog.Status // evPollStatus
}

// EventRecorder journals link events (reachability transitions,
// subscription grants, commands). Implementations must tolerate being
// called from the coordinator's event loop and return quickly.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event string, details map[string]any) error
}

// MetricsSink receives link telemetry. Writes must be non-blocking.
type MetricsSink interface {
	WriteLinkEvent(serial, event string)
	WriteMessage(serial string, kind string)
}

// CoordinatorOptions holds configuration for creating a coordinator.
type CoordinatorOptions struct {
	// Device is the appliance identity (required).
	Device config.DeviceConfig

	// Subscriptions is the topic template configuration (required).
	Subscriptions config.SubscriptionsConfig

	// Cloud marks a cloud-routed broker (affects wildcard mode).
	Cloud bool

	// Transport is the publish/subscribe transport (required).
	Transport transport.Conn

	// Grace is the reachability grace period. Default 5s.
	Grace time.Duration

	// PollInterval is how often to request current state. Default 60s.
	PollInterval time.Duration

	// PollTimeout is the poll watchdog timeout. Default 300s.
	PollTimeout time.Duration

	// Logger is the structured logger (required).
	Logger Logger

	// Recorder is an optional link event journal.
	Recorder EventRecorder

	// Metrics is an optional telemetry sink.
	Metrics MetricsSink

	// OnMessage receives typed, validated, non-duplicate messages.
	OnMessage func(*Message)

	// OnStatus receives a snapshot after reachability or initialisation
	// changes, and after every novel message (so external state mirrors
	// refresh even when the message carries no status field).
	OnStatus func(Status)

	// OnSubscribed fires each time subscriptions are established.
	OnSubscribed func()

	// OnError receives all locally unrecoverable failures. The
	// coordinator never panics out of an event callback; faults in
	// processing one message surface here instead.
	OnError func(error)
}

// Default timing constants.
const (
	defaultGrace        = 5 * time.Second
	defaultPollInterval = 60 * time.Second
	defaultPollTimeout  = 300 * time.Second
)

// Coordinator fuses the connection, subscription manager, filter, and
// poll watchdog into one per-device reachability state machine with a
// typed publish/receive API.
//
// All state mutation happens on one event loop goroutine; transport
// events are processed strictly in arrival order, and the receive
// pipeline for one message completes before the next is looked at.
// External readers only observe Status snapshots.
type Coordinator struct {
	serial string

	conn   *Connection
	subs   *SubscriptionManager
	filter *Filter
	poll   *watchdog.Watchdog
	grace  time.Duration

	state  reachabilityState
	status Status

	// statusMu guards status and the statusChanged broadcast channel,
	// which is closed and replaced on every status event.
	statusMu      sync.RWMutex
	statusChanged chan struct{}

	// graceSeq invalidates stale grace timers: every cancel or re-arm
	// bumps it, and an expiry event carrying an old seq is ignored.
	graceSeq   uint64
	graceTimer *time.Timer

	events   chan event
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	onMessage    func(*Message)
	onStatus     func(Status)
	onSubscribed func()
	onError      func(error)

	recorder EventRecorder
	metrics  MetricsSink
	logger   Logger
}

// NewCoordinator creates a coordinator. Call Start to begin operation.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Device.RootTopic == "" || opts.Device.SerialNumber == "" {
		return nil, fmt.Errorf("device identity is required")
	}
	if len(opts.Subscriptions.Subscribe) == 0 {
		return nil, fmt.Errorf("at least one subscribe topic is required")
	}

	grace := opts.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	c := &Coordinator{
		serial:        opts.Device.SerialNumber,
		grace:         grace,
		state:         stateUnreachable,
		statusChanged: make(chan struct{}),
		events:        make(chan event, eventBuffer),
		done:          make(chan struct{}),
		filter:        NewFilter(),
		onMessage:     opts.OnMessage,
		onStatus:      opts.OnStatus,
		onSubscribed:  opts.OnSubscribed,
		onError:       opts.OnError,
		recorder:      opts.Recorder,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}

	c.conn = NewConnection(opts.Transport, opts.Logger)
	c.subs = NewSubscriptionManager(opts.Device, opts.Subscriptions, opts.Cloud, opts.Transport, opts.Logger)

	c.poll = watchdog.New(watchdog.Config{
		Name:     "state-poll-" + opts.Device.SerialNumber,
		Interval: pollInterval,
		Timeout:  pollTimeout,
		Operation: func(ctx context.Context) error {
			return c.requestCurrentState(ctx)
		},
		OnStatusChange: func(s watchdog.Status) {
			c.post(event{kind: evPollStatus, pollStatus: s})
		},
		Logger: opts.Logger,
	})

	return c, nil
}

// Start wires the transport callbacks, starts the event loop and the
// poll watchdog, and begins connecting.
//
// Parameters:
//   - ctx: Cancellation context for the poll watchdog's operations
//
// Returns:
//   - error: If the initial connection attempt fails (the transport
//     keeps retrying internally even then once connected once)
func (c *Coordinator) Start(ctx context.Context) error {
	c.conn.SetOnConnect(func() {
		c.post(event{kind: evConnect})
	})
	c.conn.SetOnClose(func(err error) {
		c.post(event{kind: evClose, err: err})
	})
	c.conn.SetOnMessage(func(topic string, payload []byte) {
		c.post(event{kind: evMessage, topic: topic, payload: payload})
	})

	c.wg.Add(1)
	go c.run()

	c.poll.Start(ctx)

	if err := c.conn.Start(); err != nil {
		return err
	}

	c.logger.Info("coordinator started",
		"serial", c.serial,
		"command_topic", c.subs.CommandTopic(),
	)
	return nil
}

// Stop shuts the coordinator down: the poll watchdog finishes any
// in-flight operation, the event loop drains, and the transport
// disconnects gracefully. Idempotent; no background work continues
// after Stop returns.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.poll.Stop()
		close(c.done)
		c.wg.Wait()

		if c.graceTimer != nil {
			c.graceTimer.Stop()
		}

		if err := c.conn.Stop(); err != nil {
			c.logger.Warn("transport disconnect failed", "error", err)
		}

		c.logger.Info("coordinator stopped", "serial", c.serial)
	})
}

// Status returns a snapshot of the current link status.
func (c *Coordinator) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// SetInitialised records whether the owning application has observed
// the full initial state it requires. The flag may flip back to false;
// WaitUntilInitialised callers then re-suspend.
func (c *Coordinator) SetInitialised(initialised bool) {
	c.post(event{kind: evSetInitialised, initialised: initialised})
}

// WaitUntilInitialised suspends the caller until the device is both
// reachable and initialised at the same moment, re-checking on every
// status change.
//
// Returns:
//   - error: Only the context's error if it is cancelled first
func (c *Coordinator) WaitUntilInitialised(ctx context.Context) error {
	for {
		c.statusMu.RLock()
		ready := c.status.Reachable && c.status.Initialised
		changed := c.statusChanged
		c.statusMu.RUnlock()

		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrStopped
		case <-changed:
		}
	}
}

// Publish stamps, serializes, and sends a command to the device's
// command topic at QoS 1, non-retained. The caller's params map is
// never mutated. Publish does not wait for device acknowledgement
// beyond transport-level confirmation.
//
// Parameters:
//   - kind: An outbound command kind
//   - params: Kind-specific parameters (may be nil)
//
// Returns:
//   - error: Validation or transport failure
func (c *Coordinator) Publish(kind Kind, params map[string]any) error {
	payload, err := EncodeCommand(kind, params, time.Now())
	if err != nil {
		return err
	}

	if err := c.conn.Publish(c.subs.CommandTopic(), payload, qosAtLeastOnce, false); err != nil {
		return fmt.Errorf("publishing %s: %w", kind, err)
	}

	c.logger.Debug("command published",
		"serial", c.serial,
		"kind", string(kind),
	)
	if c.metrics != nil {
		c.metrics.WriteMessage(c.serial, "out:"+string(kind))
	}
	c.record("command_published", map[string]any{"kind": string(kind)})

	return nil
}

// requestCurrentState is the poll watchdog's periodic operation.
func (c *Coordinator) requestCurrentState(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !c.conn.IsConnected() {
		return nil
	}
	return c.Publish(KindRequestCurrentState, nil)
}

// post delivers an event to the loop, giving up once the coordinator
// is stopping.
func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// run is the single event loop. All reachability, filter, and status
// mutation happens here, so transitions never race each other.
func (c *Coordinator) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return

		case ev := <-c.events:
			switch ev.kind {
			case evConnect:
				c.handleConnect()
			case evClose:
				c.handleClose(ev.err)
			case evMessage:
				c.handleMessage(ev.topic, ev.payload)
			case evGraceExpired:
				c.handleGraceExpired(ev.seq)
			case evSetInitialised:
				c.handleSetInitialised(ev.initialised)
			case evPollStatus:
				c.handlePollStatus(ev.pollStatus)
			}
		}
	}
}

// handleConnect re-subscribes after every session establishment.
// Subscriptions do not survive reconnection.
func (c *Coordinator) handleConnect() {
	c.logger.Debug("transport session established", "serial", c.serial)

	if err := c.subs.Subscribe(); err != nil {
		// Total failure is fatal to this attempt; the transport's next
		// reconnect retries it.
		c.emitError(err)
		return
	}

	c.handleSubscribed()
}

// handleSubscribed cancels any grace timer and marks the device
// reachable.
func (c *Coordinator) handleSubscribed() {
	c.cancelGraceTimer()

	transition := c.state != stateReachable
	c.state = stateReachable

	if transition {
		c.setReachable(true)
		c.record("reachable", nil)
		if c.metrics != nil {
			c.metrics.WriteLinkEvent(c.serial, "reachable")
		}
	}

	if c.onSubscribed != nil {
		c.safely("subscribed", c.onSubscribed)
	}
}

// handleClose starts the grace period. Fast reconnect cycles complete
// inside it, so the externally visible reachable flag never flickers.
func (c *Coordinator) handleClose(err error) {
	c.logger.Debug("transport session lost",
		"serial", c.serial,
		"error", err,
	)

	if c.state != stateReachable {
		return
	}

	c.state = statePendingUnreachable
	c.graceSeq++
	seq := c.graceSeq
	c.graceTimer = time.AfterFunc(c.grace, func() {
		c.post(event{kind: evGraceExpired, seq: seq})
	})
}

// handleGraceExpired confirms unreachability when no resubscription
// arrived within the grace period.
func (c *Coordinator) handleGraceExpired(seq uint64) {
	if seq != c.graceSeq || c.state != statePendingUnreachable {
		// A subscribed event (or a newer close) won the race.
		return
	}

	c.state = stateUnreachable
	c.setReachable(false)

	// Loss of a previously working device is operationally significant,
	// unlike the reconnection blips the grace period absorbs.
	c.logger.Error("appliance unreachable",
		"serial", c.serial,
		"grace", c.grace.String(),
	)
	c.record("unreachable", nil)
	if c.metrics != nil {
		c.metrics.WriteLinkEvent(c.serial, "unreachable")
	}
}

// cancelGraceTimer stops a pending grace timer and invalidates any
// expiry already in flight.
func (c *Coordinator) cancelGraceTimer() {
	c.graceSeq++
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}

// handleMessage runs the receive pipeline for one inbound message:
// classify, normalize, filter, dispatch. It completes synchronously
// before the next event is read.
func (c *Coordinator) handleMessage(topic string, payload []byte) {
	class := c.subs.Classify(topic)

	switch class {
	case TopicUnexpected:
		// Classify already logged the diagnosis.
		return

	case TopicCommand:
		// Echo of our own publish; recognised, never dispatched.
		kind, err := ParseCommandEcho(payload)
		if err != nil {
			c.logger.Debug("undecodable command echo", "serial", c.serial)
			return
		}
		c.logger.Debug("command echo",
			"serial", c.serial,
			"kind", string(kind),
		)
		return
	}

	msg, err := ParseStatusMessage(topic, payload)
	if err != nil {
		// A bad payload drops that single message, never the link.
		c.emitError(fmt.Errorf("message on %s: %w", topic, err))
		return
	}

	if c.filter.Check(msg) == FilterDuplicate {
		c.logger.Debug("duplicate suppressed",
			"serial", c.serial,
			"kind", string(msg.Kind),
			"topic", topic,
		)
		return
	}

	// Any novel, valid status traffic is evidence the device is alive.
	c.poll.Up()

	if class != TopicSubscribed {
		// Informational topic: observed, logged, not dispatched.
		c.logger.Debug("informational message",
			"serial", c.serial,
			"kind", string(msg.Kind),
			"topic", topic,
		)
		return
	}

	if c.metrics != nil {
		c.metrics.WriteMessage(c.serial, string(msg.Kind))
	}

	if c.onMessage != nil {
		c.safely("message", func() { c.onMessage(msg) })
	}

	// External state mirrors refresh on every novel message, even when
	// its content denotes no status field.
	c.broadcastStatus()
}

// handleSetInitialised updates the initialisation flag.
func (c *Coordinator) handleSetInitialised(initialised bool) {
	c.statusMu.Lock()
	changed := c.status.Initialised != initialised
	c.status.Initialised = initialised
	c.statusMu.Unlock()

	if changed {
		c.logger.Info("initialisation flag changed",
			"serial", c.serial,
			"initialised", initialised,
		)
		c.broadcastStatus()
	}
}

// handlePollStatus reacts to poll watchdog transitions. The poll
// watchdog is a health signal, not the reachability authority: only the
// subscribe/close hysteresis moves the reachable flag.
func (c *Coordinator) handlePollStatus(s watchdog.Status) {
	switch s {
	case watchdog.StatusDown:
		c.logger.Warn("no status traffic within poll timeout",
			"serial", c.serial,
		)
		if c.metrics != nil {
			c.metrics.WriteLinkEvent(c.serial, "poll_down")
		}
	case watchdog.StatusUp:
		c.logger.Debug("status traffic resumed", "serial", c.serial)
		if c.metrics != nil {
			c.metrics.WriteLinkEvent(c.serial, "poll_up")
		}
	case watchdog.StatusStopped:
		// Shutdown; nothing to report.
	}
}

// setReachable flips the external flag and broadcasts.
func (c *Coordinator) setReachable(reachable bool) {
	c.statusMu.Lock()
	c.status.Reachable = reachable
	c.statusMu.Unlock()

	c.logger.Info("reachability changed",
		"serial", c.serial,
		"reachable", reachable,
	)
	c.broadcastStatus()
}

// broadcastStatus wakes WaitUntilInitialised callers and fires the
// status callback with a snapshot.
func (c *Coordinator) broadcastStatus() {
	c.statusMu.Lock()
	snapshot := c.status
	changed := c.statusChanged
	c.statusChanged = make(chan struct{})
	c.statusMu.Unlock()
	close(changed)

	if c.onStatus != nil {
		c.safely("status", func() { c.onStatus(snapshot) })
	}
}

// emitError logs a coordinator-level error and forwards it to the error
// callback.
func (c *Coordinator) emitError(err error) {
	c.logger.Error("link error",
		"serial", c.serial,
		"error", err,
	)
	if c.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("error callback panicked",
				"serial", c.serial,
				"panic", r,
			)
		}
	}()
	c.onError(err)
}

// safely invokes an event callback, converting a panic into a
// coordinator-level error so a fault in one consumer cannot crash the
// owning process.
func (c *Coordinator) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.emitError(fmt.Errorf("%s callback panicked: %v", name, r))
		}
	}()
	fn()
}

// record journals a link event when a recorder is configured.
// Journal failures are logged, never propagated.
func (c *Coordinator) record(eventName string, details map[string]any) {
	if c.recorder == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["serial"] = c.serial

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.recorder.RecordEvent(ctx, eventName, details); err != nil {
		c.logger.Warn("recording link event failed",
			"event", eventName,
			"error", err,
		)
	}
}
