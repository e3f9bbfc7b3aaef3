// Package bridge talks to the MT5 upstream venue through a long-lived
// subprocess that speaks line-delimited JSON RPC over stdin/stdout. This
// repo never links an MT5 client library directly — the bridge command
// (an external sidecar, out of scope per spec.md §1) owns the MetaTrader5
// session; this package only owns the pipe to it.
//
// The connection-owning-goroutine plus pending-request map shape is
// generalized from the teacher's internal/exchange/ws.go WSFeed, which owns
// a single websocket connection, reconnects with exponential backoff, and
// routes inbound frames to typed channels under a mutex. Here the frames are
// request/response pairs correlated by requestId instead of a push feed, so
// the dispatch loop resolves a waiting caller's channel instead of fanning
// out to a subscriber channel.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/internal/apperr"
	"goldbroker/pkg/types"
)

// Retcodes from the MT5 trade server (spec.md §6).
const (
	RetcodeDone             = 10009
	RetcodeRequoteRetryable = 10020 // price moved — renewed quote
	RetcodeFrozenRetryable  = 10021 // trade context busy, retryable
	RetcodeInvalidVolume    = 10013
	RetcodeInvalidPrice     = 10018
	RetcodeNoMoney          = 10019
	RetcodeTradeDisabled    = 10017
	RetcodeNoConnection     = 10022
	RetcodePositionNotFound = 10027
)

func retryable(retcode int) bool {
	return retcode == RetcodeRequoteRetryable || retcode == RetcodeFrozenRetryable
}

const (
	maxReconnectWait      = 30 * time.Second
	callTimeout           = 10 * time.Second
	maxDeviationWidenings = 3
	requoteBackoff        = time.Second
	deviationWidenStep    = 10
)

type rpcRequest struct {
	RequestID string `json:"requestId"`
	Method    string `json:"method"`
	Params    any    `json:"params"`
}

type rpcResponse struct {
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
}

// Bridge owns the subprocess and the pending-request correlation map.
type Bridge struct {
	command string
	args    []string

	mu      sync.Mutex // protects cmd/stdin/pending during restarts
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending map[string]chan rpcResponse

	logger *slog.Logger
}

// New creates a Bridge that will launch command with args when Connect runs.
func New(command string, args []string, logger *slog.Logger) *Bridge {
	return &Bridge{
		command: command,
		args:    args,
		pending: make(map[string]chan rpcResponse),
		logger:  logger.With("component", "mt5_bridge"),
	}
}

// Connect launches the subprocess and starts the reader goroutine. Run
// should be called afterward (in its own goroutine) to keep the subprocess
// alive across crashes for the lifetime of ctx.
func (b *Bridge) Connect(ctx context.Context) error {
	return b.spawn(ctx)
}

func (b *Bridge) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.command, b.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("bridge stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("bridge stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("bridge start: %w", err)
	}

	b.mu.Lock()
	b.cmd = cmd
	b.stdin = stdin
	b.mu.Unlock()

	go b.readLoop(stdout)

	return nil
}

// Run keeps the subprocess alive, respawning with exponential backoff if it
// exits while ctx is still live. Mirrors WSFeed.Run's reconnect loop.
func (b *Bridge) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		b.mu.Lock()
		cmd := b.cmd
		b.mu.Unlock()

		if cmd != nil {
			err := cmd.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("mt5 bridge subprocess exited, restarting", "error", err, "backoff", backoff)
			b.failPending(fmt.Errorf("bridge subprocess exited: %w", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := b.spawn(ctx); err != nil {
			b.logger.Error("mt5 bridge respawn failed", "error", err)
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (b *Bridge) failPending(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.pending {
		ch <- rpcResponse{RequestID: id, Error: err.Error()}
		delete(b.pending, id)
	}
}

func (b *Bridge) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			b.logger.Debug("ignoring non-json bridge line", "line", string(line))
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[resp.RequestID]
		if ok {
			delete(b.pending, resp.RequestID)
		}
		b.mu.Unlock()

		if !ok {
			b.logger.Warn("bridge response with no matching request", "requestId", resp.RequestID)
			continue
		}
		ch <- resp
	}
}

// Disconnect terminates the subprocess.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (b *Bridge) call(ctx context.Context, method string, params, result any) error {
	reqID := strconv.FormatUint(requestSeq.Add(1), 10)
	respCh := make(chan rpcResponse, 1)

	b.mu.Lock()
	stdin := b.stdin
	if stdin == nil {
		b.mu.Unlock()
		return apperr.Upstreamf(RetcodeNoConnection, "mt5 bridge not connected")
	}
	b.pending[reqID] = respCh
	b.mu.Unlock()

	req := rpcRequest{RequestID: reqID, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal bridge request: %w", err)
	}
	payload = append(payload, '\n')

	b.mu.Lock()
	_, writeErr := b.stdin.Write(payload)
	b.mu.Unlock()
	if writeErr != nil {
		return apperr.Upstreamf(RetcodeNoConnection, "write bridge request: %v", writeErr)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, reqID)
		b.mu.Unlock()
		return apperr.Upstreamf(RetcodeNoConnection, "bridge call %s timed out", method)
	case resp := <-respCh:
		if resp.Error != "" {
			return apperr.Upstreamf(RetcodeNoConnection, "bridge error: %s", resp.Error)
		}
		if result == nil {
			return nil
		}
		return json.Unmarshal(resp.Result, result)
	}
}

// GetPrice fetches the current bid/ask for symbol.
func (b *Bridge) GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	var out struct {
		Bid  decimal.Decimal `json:"bid"`
		Ask  decimal.Decimal `json:"ask"`
		Time int64           `json:"time"`
	}
	if err := b.call(ctx, "get_price", map[string]string{"symbol": symbol}, &out); err != nil {
		return types.PriceQuote{}, err
	}
	return types.PriceQuote{
		Symbol:     symbol,
		Bid:        out.Bid,
		Ask:        out.Ask,
		Spread:     out.Ask.Sub(out.Bid),
		LastUpdate: time.Unix(out.Time, 0),
	}, nil
}

// GetSymbolInfo fetches volume/price constraints for symbol.
func (b *Bridge) GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	var out types.SymbolInfo
	if err := b.call(ctx, "get_symbol_info", map[string]string{"symbol": symbol}, &out); err != nil {
		return types.SymbolInfo{}, err
	}
	out.Symbol = symbol
	return out, nil
}

// PlaceTrade opens a position, widening the price deviation and retrying on
// requote/frozen-context retcodes up to maxDeviationWidenings times before
// giving up, per spec.md §6's retry guidance.
func (b *Bridge) PlaceTrade(ctx context.Context, req types.PlaceTradeRequest) (types.PlaceTradeResult, error) {
	attempt := req
	for i := 0; i <= maxDeviationWidenings; i++ {
		var out types.PlaceTradeResult
		err := b.call(ctx, "place_trade", attempt, &out)
		if err == nil && out.Retcode == RetcodeDone {
			return out, nil
		}

		retcode := out.Retcode
		if err != nil {
			if appErr, ok := err.(*apperr.Error); ok {
				retcode = appErr.Retcode
			} else {
				return types.PlaceTradeResult{}, err
			}
		}

		if !retryable(retcode) || i == maxDeviationWidenings {
			return out, apperr.Upstreamf(retcode, "place_trade failed after %d attempt(s)", i+1)
		}

		b.logger.Warn("place_trade retrying with widened deviation", "retcode", retcode, "attempt", i+1)
		select {
		case <-ctx.Done():
			return types.PlaceTradeResult{}, ctx.Err()
		case <-time.After(requoteBackoff):
		}
		attempt.Deviation += deviationWidenStep
	}
	return types.PlaceTradeResult{}, apperr.Upstreamf(RetcodeNoConnection, "place_trade exhausted retries")
}

// GetPositions lists open positions on the upstream venue.
func (b *Bridge) GetPositions(ctx context.Context) ([]types.Position, error) {
	var out []types.Position
	if err := b.call(ctx, "get_positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseTrade closes an upstream position. If the position is already gone
// (retcode 10027, or a bridge error reading "Position not found"), this is
// reported as LikelyClosed rather than an error —
// spec.md §6 treats a missing position as a non-fatal reconciliation signal,
// since the position may have already been closed by a prior retry.
func (b *Bridge) CloseTrade(ctx context.Context, req types.CloseTradeRequest) (types.CloseTradeResult, error) {
	var out types.CloseTradeResult
	err := b.call(ctx, "close_trade", req, &out)
	if err == nil {
		return out, nil
	}

	appErr, ok := err.(*apperr.Error)
	if ok && (appErr.Retcode == RetcodePositionNotFound || strings.Contains(appErr.Message, "Position not found")) {
		return types.CloseTradeResult{LikelyClosed: true}, nil
	}
	return types.CloseTradeResult{}, err
}

var requestSeq atomic.Uint64

// NextClientTag generates a short, monotonically-distinguishable comment tag
// for correlating MT5 tickets back to this broker's orders in logs.
func NextClientTag(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, requestSeq.Add(1))
}
