// Package mavlink implements the request/response surface: a Connection
// wires together the schema registry, a transport.Stream, the framer
// reader loop, and the dispatch engine, and exposes the parameter,
// command, and message-interval operations spec.md §4.6 describes.
//
// Shaped after the teacher's cmd/rttd/main.go wiring of transport →
// protocol registry → engine.Hub, collapsed into a single owning type
// since here one connection talks to exactly one vehicle.
package mavlink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mavgo/pkg/dispatch"
	"mavgo/pkg/framer"
	"mavgo/pkg/schema"
	"mavgo/pkg/transport"
	"mavgo/pkg/wire"
)

const (
	paramRequestRead = "PARAM_REQUEST_READ"
	paramSet         = "PARAM_SET"
	paramRequestList = "PARAM_REQUEST_LIST"
	paramValue       = "PARAM_VALUE"
	commandLong      = "COMMAND_LONG"
	commandAck       = "COMMAND_ACK"

	mavResultAccepted = int64(0)

	mavCmdSetMessageInterval = int64(511)
	mavCmdGetMessageInterval = int64(510)
)

// DefaultWaitTimeout is used when Options.WaitTimeout is zero, matching
// spec.md §5's "default 10s" guidance.
const DefaultWaitTimeout = 10 * time.Second

// Options configures a Connection. The zero value selects sysid/compid 1/1,
// v1 framing, and the default 10s wait timeout, per spec.md §6.
type Options struct {
	SysID, CompID             byte
	TargetSysID, TargetCompID byte
	UseV2                     bool
	IncompatFlags             byte
	CompatFlags               byte
	WaitTimeout               time.Duration
}

func (o Options) normalize() Options {
	if o.SysID == 0 {
		o.SysID = 1
	}
	if o.CompID == 0 {
		o.CompID = 1
	}
	if o.TargetSysID == 0 {
		o.TargetSysID = 1
	}
	if o.TargetCompID == 0 {
		o.TargetCompID = 1
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	return o
}

// Connection owns one transport and the single reader goroutine draining
// it. All exported methods are safe to call concurrently from multiple
// goroutines, per spec.md §5.
type Connection struct {
	registry *schema.Registry
	stream   transport.Stream
	engine   *dispatch.Engine
	opts     Options
	onPacket func(framer.Packet)

	seq uint32

	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	fatalErr error
}

// ConnOption configures optional Connection behavior not covered by Options.
type ConnOption func(*Connection)

// WithPacketObserver registers fn to be called with every decoded packet, in
// addition to the dispatch engine's own bookkeeping. This is how an external
// collaborator like pkg/monitor.Hub taps the feed without owning the
// transport itself; fn is called synchronously from the reader goroutine and
// must not block for long.
func WithPacketObserver(fn func(framer.Packet)) ConnOption {
	return func(c *Connection) { c.onPacket = fn }
}

// Open constructs a Connection over stream using registry for encoding and
// decoding, and starts the reader goroutine. The Connection takes ownership
// of stream: the caller must eventually call Close, which closes it.
func Open(stream transport.Stream, registry *schema.Registry, opts Options, connOpts ...ConnOption) *Connection {
	opts = opts.normalize()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		registry: registry,
		stream:   stream,
		engine:   dispatch.New(),
		opts:     opts,
		cancel:   cancel,
	}
	for _, o := range connOpts {
		o(c)
	}

	r := framer.NewReader(stream, registry, c.dispatch)
	go func() {
		err := r.Run(ctx)
		c.mu.Lock()
		c.fatalErr = err
		c.closed = true
		c.mu.Unlock()
		c.engine.Reset()
	}()

	return c
}

func (c *Connection) dispatch(pkt framer.Packet) {
	c.engine.Dispatch(pkt)
	if c.onPacket != nil {
		c.onPacket(pkt)
	}
}

// Close stops the reader goroutine and fails every outstanding wait with
// ErrClosed.
func (c *Connection) Close() error {
	c.cancel()
	return c.stream.Close()
}

func (c *Connection) nextSeq() byte {
	return byte(atomic.AddUint32(&c.seq, 1) - 1)
}

// Send encodes and writes a single message by name with the connection's
// configured sysid/compid and frame version. values follows the
// EncodePayloadValues contract: every field in the message must be present.
func (c *Connection) Send(name string, values map[string]any) error {
	msg, ok := c.registry.MessageByName(name)
	if !ok {
		return &schema.Error{Source: name, Msg: "unknown message"}
	}

	seq := c.nextSeq()
	var frame []byte
	var err error
	if c.opts.UseV2 {
		frame, err = wire.EncodeV2(msg, seq, c.opts.SysID, c.opts.CompID, c.opts.IncompatFlags, c.opts.CompatFlags, values)
	} else {
		frame, err = wire.EncodeV1(msg, seq, c.opts.SysID, c.opts.CompID, values)
	}
	if err != nil {
		return err
	}

	_, err = c.stream.Write(frame)
	return err
}

// SendAndWait registers a wait-condition for inName/predicate, clears any
// stale recv-pool entry, sends outName/outValues, and blocks for the
// content of the first matching packet, per spec.md §4.6.
func (c *Connection) SendAndWait(ctx context.Context, outName string, outValues map[string]any, inName string, predicate map[string]any) (map[string]any, error) {
	handle := c.engine.RegisterWait(inName, predicate)
	c.engine.Clear(inName)

	if err := c.Send(outName, outValues); err != nil {
		return nil, err
	}

	pkt, err := handle.Block(ctx, c.opts.WaitTimeout)
	if err != nil {
		return nil, translateWaitErr(err)
	}
	return pkt.Content, nil
}

func translateWaitErr(err error) error {
	switch err {
	case dispatch.ErrTimeout:
		return ErrTimeout
	case dispatch.ErrClosed:
		return ErrClosed
	default:
		return err
	}
}

func emptyParamID(name string) map[string]any {
	return map[string]any{
		"target_system":    int64(0),
		"target_component": int64(0),
		"param_id":         name,
		"param_index":      int64(-1),
	}
}

// ParamValue requests a single parameter by name and returns the decoded
// content of its PARAM_VALUE response.
func (c *Connection) ParamValue(ctx context.Context, name string) (map[string]any, error) {
	content, err := c.SendAndWait(ctx, paramRequestRead, emptyParamID(name), paramValue, map[string]any{"param_id": name})
	if err != nil {
		return nil, &FailedToGetParam{Name: name, Cause: err}
	}
	return content, nil
}

// SetParam sets a parameter by name, fetching and caching its MAV_PARAM_TYPE
// first if not already known. The PARAM_VALUE echoed back may legitimately
// differ from the requested value due to rounding; the caller decides
// whether that matters.
func (c *Connection) SetParam(ctx context.Context, name string, value any) (map[string]any, error) {
	paramType, ok := c.engine.ParamType(name)
	if !ok {
		if _, err := c.ParamValue(ctx, name); err != nil {
			return nil, &FailedToSetParam{Name: name, Cause: err}
		}
		paramType, ok = c.engine.ParamType(name)
		if !ok {
			return nil, &FailedToSetParam{Name: name, Cause: ErrTimeout}
		}
	}

	outValues := map[string]any{
		"target_system":    int64(0),
		"target_component": int64(0),
		"param_id":         name,
		"param_value":      value,
		"param_type":       paramType,
	}

	content, err := c.SendAndWait(ctx, paramSet, outValues, paramValue, map[string]any{"param_id": name})
	if err != nil {
		return nil, &FailedToSetParam{Name: name, Cause: err}
	}
	return content, nil
}

// RequestParams fetches the full onboard parameter set. It enables keep-all
// accumulation on PARAM_VALUE, issues PARAM_REQUEST_LIST, waits until the
// first PARAM_VALUE reveals param_count, then waits until that many
// distinct parameter names have been observed.
func (c *Connection) RequestParams(ctx context.Context) (map[string]any, error) {
	c.engine.SetKeepAll(paramValue, true)
	defer c.engine.SetKeepAll(paramValue, false)
	defer c.engine.ResetKept(paramValue)

	first, err := c.SendAndWait(ctx, paramRequestList, map[string]any{
		"target_system":    int64(0),
		"target_component": int64(0),
	}, paramValue, nil)
	if err != nil {
		return nil, err
	}

	count, err := toInt(first["param_count"])
	if err != nil {
		return nil, err
	}

	result := make(map[string]any)
	deadline := time.Now().Add(c.opts.WaitTimeout)
	for {
		seen := map[string]bool{}
		for _, pkt := range c.engine.Kept(paramValue) {
			id, _ := pkt.Content["param_id"].(string)
			if id == "" {
				continue
			}
			seen[id] = true
			result[id] = pkt.Content["param_value"]
		}
		if int64(len(seen)) >= count {
			return result, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case int8:
		return int64(n), nil
	default:
		return 0, ErrTimeout
	}
}

// CommandLong issues a COMMAND_LONG for cmd with up to 7 float parameters
// (missing ones right-padded with zero) and waits for a matching
// COMMAND_ACK, failing with CommandError if the result is not
// MAV_RESULT_ACCEPTED.
func (c *Connection) CommandLong(ctx context.Context, cmd int64, params ...float64) (map[string]any, error) {
	var padded [7]float64
	copy(padded[:], params)

	outValues := map[string]any{
		"target_system":    int64(c.opts.TargetSysID),
		"target_component": int64(c.opts.TargetCompID),
		"command":          cmd,
		"confirmation":     int64(0),
		"param1":           padded[0],
		"param2":           padded[1],
		"param3":           padded[2],
		"param4":           padded[3],
		"param5":           padded[4],
		"param6":           padded[5],
		"param7":           padded[6],
	}

	content, err := c.SendAndWait(ctx, commandLong, outValues, commandAck, map[string]any{"command": cmd})
	if err != nil {
		return nil, err
	}

	result, _ := toInt(content["result"])
	if result != mavResultAccepted {
		return content, &CommandError{Command: cmd, Result: result}
	}
	return content, nil
}

// SetMessageInterval requests that msgID be streamed at periodUS
// microseconds, via MAV_CMD_SET_MESSAGE_INTERVAL.
func (c *Connection) SetMessageInterval(ctx context.Context, msgID int64, periodUS float64) error {
	_, err := c.CommandLong(ctx, mavCmdSetMessageInterval, float64(msgID), periodUS)
	return err
}

// MessageInterval queries the current streaming interval for msgID, via
// MAV_CMD_GET_MESSAGE_INTERVAL.
func (c *Connection) MessageInterval(ctx context.Context, msgID int64) (map[string]any, error) {
	return c.CommandLong(ctx, mavCmdGetMessageInterval, float64(msgID))
}

// Err returns the fatal error that terminated the reader goroutine, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}
