package connection

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// revertErrorCode is the JSON-RPC error code geth-compatible nodes return for
// a reverted call.
const revertErrorCode = 3

const maxUnboundedDelay = time.Minute

// RetryPolicy bounds every remote call with a per-attempt timeout and retries
// transient failures with exponential backoff.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	Timeout  time.Duration

	// MaxElapsed bounds the whole call including waits. Zero keeps the
	// library default.
	MaxElapsed time.Duration
}

// PolicyFromConfig builds the retry policy from chain configuration
func PolicyFromConfig(cfg *config.ChainConfig) RetryPolicy {
	return RetryPolicy{
		Attempts:   cfg.RetryAttempts,
		Delay:      cfg.RetryDelay,
		MaxDelay:   cfg.MaxRetryDelay,
		Timeout:    cfg.RequestTimeout,
		MaxElapsed: time.Duration(max(cfg.RetryAttempts, 1)) * (cfg.RequestTimeout + cfg.MaxRetryDelay),
	}
}

// NewBackOff returns the exponential schedule between attempts: Delay first,
// doubling up to MaxDelay.
func (p RetryPolicy) NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = maxUnboundedDelay
	}
	b.Reset()
	return b
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// onRetry, when set, is called before each retry.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry func(retry int, err error)) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	retries := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.NewBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, _ time.Duration) {
			retries++
			if onRetry != nil {
				onRetry(retries, err)
			}
		}),
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.attempt(ctx, op)
		if IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func (p RetryPolicy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(attemptCtx)
}

// IsPermanent reports whether retrying err cannot help: a missing object, a
// reverted call or a cancelled context.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	return IsRevert(err)
}

// IsRevert reports whether err is an EVM execution revert
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}

// IsConnectionError reports whether err came from the transport rather than
// from a node answering the request. Such errors warrant a reconnect.
func IsConnectionError(err error) bool {
	if err == nil || IsPermanent(err) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if utils.IsCode(err, utils.ErrCodeConnection) {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED)
}
