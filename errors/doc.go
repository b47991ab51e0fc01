// Package errors provides standardized error handling patterns for the
// Message Director's subsystems.
//
// # Overview
//
// The errors package implements a three-class error classification system
// designed for a channel-routing daemon: Transient (temporary, retryable),
// Invalid (bad input, non-retryable), and Fatal (unrecoverable, stop
// processing).
//
// This classification enables intelligent error handling strategies
// throughout the daemon, allowing subsystems to make informed decisions
// about retries, graceful degradation, and failure recovery without
// hardcoded error string matching.
//
// # Error Classification
//
// Errors are automatically classified based on their type or content:
//
//   - Transient: connection timeouts, rate limiting (retry recommended)
//   - Invalid: malformed datagrams, unknown control codes, bad PROXY preambles (do not retry)
//   - Fatal: listener bind failures, upstream link loss, missing configuration, resource exhaustion (stop processing)
//
// The classification system integrates seamlessly with Go's standard error
// handling patterns, supporting errors.Is(), errors.As(), and error
// wrapping chains.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	// Return standard error for known conditions
//	if !upstreamConnected {
//	    return errors.ErrUpstreamLost
//	}
//
// Wrap errors with context for debugging:
//
//	// Wrap third-party errors with subsystem context
//	if err := listener.Accept(); err != nil {
//	    return errors.Wrap(err, "netendpoint", "Accept", "accept connection")
//	}
//
// Check classification for retry logic:
//
//	// Make retry decisions based on error class
//	if err := link.Connect(ctx); err != nil {
//	    if errors.IsTransient(err) {
//	        // Retry with exponential backoff
//	        config := errors.DefaultRetryConfig()
//	        if config.ShouldRetry(err, attempt) {
//	            time.Sleep(config.BackoffDelay(attempt))
//	            // retry operation
//	        }
//	    } else if errors.IsFatal(err) {
//	        // Stop processing, escalate to operator
//	        log.Fatalf("unrecoverable error: %v", err)
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing, debugging, and operational
// monitoring across the daemon. The Wrap family of functions automatically
// applies this pattern while preserving error classification through the
// chain.
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")  // Preserves original class
//
// # Standard Error Variables
//
// The package provides pre-defined error variables for common conditions,
// organized by category:
//
//   - Subsystem lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyStopped, ErrShuttingDown
//   - Wire and transport: ErrProtocolError, ErrNoBufferSpace, ErrTimedOut, ErrConnectionLost
//   - Datagram decode: ErrTruncatedDatagram, ErrZeroLengthFrame, ErrUnknownControl, ErrBadProxyPreamble
//   - Configuration: ErrInvalidConfig, ErrMissingConfig, ErrConfigNotFound
//   - Resource limits: ErrResourceExhausted, ErrRateLimited, ErrQueueFull
//   - Topology: ErrBindFailed, ErrUpstreamLost, ErrUpstreamRefused
//
// Use these variables instead of creating custom error messages for
// consistency:
//
//	// Good - uses standard variable
//	if queueFull {
//	    return errors.ErrQueueFull
//	}
//
//	// Avoid - custom error message
//	if queueFull {
//	    return errors.New("queue full")
//	}
//
// # Retry Configuration
//
// The package includes built-in retry support with exponential backoff:
//
//	config := errors.DefaultRetryConfig()
//
//	for attempt := 0; attempt < config.MaxRetries; attempt++ {
//	    if err := operation(); err != nil {
//	        if !config.ShouldRetry(err, attempt) {
//	            return err  // Non-retryable or max attempts reached
//	        }
//	        delay := config.BackoffDelay(attempt)
//	        time.Sleep(delay)
//	        continue
//	    }
//	    return nil  // Success
//	}
//
// The retry configuration converts into pkg/retry's Config for callers that
// need the full backoff loop rather than a manual attempt counter:
//
//	retryConfig := errorConfig.ToRetryConfig()
//	err := retry.Do(ctx, retryConfig, operation)
//
// # Migration from fmt.Errorf
//
// Replace manual error wrapping with classification-aware wrappers:
//
//	// Before
//	return fmt.Errorf("component: operation failed: %w", err)
//
//	// After - preserves classification
//	return errors.Wrap(err, "Component", "method", "operation")
//
//	// After - sets classification
//	return errors.WrapTransient(err, "Component", "method", "operation")
//
// Replace string-based error inspection with classification checks:
//
//	// Before
//	if strings.Contains(err.Error(), "timeout") {
//	    // retry logic
//	}
//
//	// After
//	if errors.IsTransient(err) {
//	    // retry logic with proper backoff
//	}
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection:
//
//	// Check error classification
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
//	// Check for specific standard errors
//	if errors.Is(err, errors.ErrUpstreamLost) {
//	    // Handle upstream disconnect specifically
//	}
//
//	// Classification is preserved through error chains
//	wrapped := errors.Wrap(errors.ErrTimedOut, "upstream", "Connect", "dial")
//	if errors.IsTransient(wrapped) {  // true - classification preserved
//	    // Retry logic
//	}
//
// # Context Cancellation
//
// Context errors (context.DeadlineExceeded, context.Canceled) are
// automatically classified as Transient, enabling consistent handling of
// context-based timeouts:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	if err := link.Connect(ctx); err != nil {
//	    if errors.IsTransient(err) {
//	        // Handles both network timeouts AND context timeouts
//	        log.Printf("transient error (retry recommended): %v", err)
//	    }
//	}
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error
// variables are immutable constants safe for concurrent access. The
// ClassifiedError type is safe to share across goroutines after creation.
//
// # Architecture Integration
//
// The errors package integrates with other Message Director subsystems:
//
//   - routing: the routing engine classifies delivery failures for retry decisions
//   - netendpoint: connection handling wraps net.Error timeouts as ErrTimedOut
//   - upstream: the parent MD link classifies dial failures for its retry loop
//   - pkg/retry: retry.Config is derived from RetryConfig for backoff loops
//
// # Design Philosophy
//
// The errors package follows these design principles:
//
//   - Classification over string matching: errors are classified by type, not content
//   - Wrapping over replacement: preserve original errors, add context via wrapping
//   - Standards over invention: use Go's error handling idioms (Is/As/Unwrap)
//   - Simplicity over completeness: three classes cover the daemon's failure modes
//
// # Examples
//
// Complete subsystem integration example:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "time"
//
//	    "github.com/mghost99/astron-md/errors"
//	)
//
//	type Link struct {
//	    connected bool
//	}
//
//	func (l *Link) Connect() error {
//	    if l.connected {
//	        return errors.ErrAlreadyStarted
//	    }
//
//	    if err := l.dial(); err != nil {
//	        return errors.WrapTransient(err, "Link", "Connect", "dial")
//	    }
//
//	    l.connected = true
//	    return nil
//	}
//
//	func (l *Link) dial() error {
//	    // Simulate connection attempt
//	    return errors.ErrTimedOut
//	}
//
//	func (l *Link) Route(ctx context.Context, body []byte) error {
//	    if !l.connected {
//	        return errors.ErrNotStarted
//	    }
//
//	    if len(body) == 0 {
//	        return errors.WrapInvalid(
//	            errors.ErrZeroLengthFrame,
//	            "Link", "Route", "empty datagram")
//	    }
//
//	    // Route with context timeout
//	    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
//	    defer cancel()
//
//	    select {
//	    case <-ctx.Done():
//	        return errors.WrapTransient(ctx.Err(), "Link", "Route", "delivery")
//	    case <-time.After(100 * time.Millisecond):
//	        return nil
//	    }
//	}
//
//	func main() {
//	    link := &Link{}
//
//	    // Retry connection with backoff
//	    config := errors.DefaultRetryConfig()
//	    for attempt := 0; attempt < config.MaxRetries; attempt++ {
//	        if err := link.Connect(); err != nil {
//	            if errors.IsTransient(err) && config.ShouldRetry(err, attempt) {
//	                log.Printf("connection attempt %d failed, retrying...", attempt+1)
//	                time.Sleep(config.BackoffDelay(attempt))
//	                continue
//	            }
//	            log.Fatalf("connection failed: %v", err)
//	        }
//	        break
//	    }
//
//	    // Route a datagram with error handling
//	    ctx := context.Background()
//	    if err := link.Route(ctx, []byte("payload")); err != nil {
//	        if errors.IsInvalid(err) {
//	            log.Printf("invalid input (do not retry): %v", err)
//	        } else if errors.IsTransient(err) {
//	            log.Printf("transient error (retry recommended): %v", err)
//	        } else if errors.IsFatal(err) {
//	            log.Fatalf("fatal error (stop processing): %v", err)
//	        }
//	    }
//	}
//
// For more examples, see errors_test.go.
package errors
