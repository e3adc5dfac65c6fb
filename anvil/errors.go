package anvil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrConfiguration is matched by startup failures where the node exited before
	// becoming ready, which is how an invalid flag or value shows up.
	ErrConfiguration = errors.New("invalid node configuration")

	ErrStartupFailure      = errors.New("node startup failed")
	ErrTransport           = errors.New("rpc transport failure")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrConfirmationTimeout = errors.New("timed out waiting for transaction receipt")
	ErrDeploymentFailed    = errors.New("contract deployment failed")

	// ErrInvalidState is returned when Start is called on a manager that is not in
	// the Configured state.
	ErrInvalidState = errors.New("invalid manager state")
)

// StartupError is returned by Manager.Start.
type StartupError struct {
	Reason string
	Output []string // last lines of node output
	Err    error
	exited bool
}

func (e *StartupError) Error() string {
	var b strings.Builder
	b.WriteString("anvil startup failed: ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Output) > 0 {
		b.WriteString("\nlast output:\n")
		b.WriteString(strings.Join(e.Output, "\n"))
	}
	return b.String()
}

func (e *StartupError) Unwrap() error { return e.Err }

func (e *StartupError) Is(target error) bool {
	return target == ErrStartupFailure || (target == ErrConfiguration && e.exited)
}

// TransportError wraps a failure to reach the node.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RejectedError is returned when the node refuses a transaction at submission.
type RejectedError struct {
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction rejected (code %d): %s", e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool { return target == ErrTransactionRejected }

// DeploymentError is returned by DeployContract when the creation transaction was
// mined but reverted.
type DeploymentError struct {
	Receipt *Receipt
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("contract creation %s reverted in block %v", e.Receipt.TxHash, e.Receipt.BlockNumber)
}

func (e *DeploymentError) Is(target error) bool { return target == ErrDeploymentFailed }

// callError classifies an RPC failure. Errors reported by the node itself become
// a *RejectedError when reject is set, everything else is a transport failure.
func callError(op string, err error, reject bool) error {
	var rpcErr rpc.Error
	if reject && errors.As(err, &rpcErr) {
		return &RejectedError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &TransportError{Op: op, Err: err}
}
