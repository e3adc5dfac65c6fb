package anvil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"
	"gopkg.in/inconshreveable/log15.v2"
)

// DefaultPollInterval is the receipt polling interval.
const DefaultPollInterval = 250 * time.Millisecond

// Client is the set of chain operations available on a node.
//
// Transactions are not confirmed until a block is mined. Callers that need a receipt
// must call Mine after submitting and before AwaitReceipt.
type Client interface {
	// BlockNumber returns the number of the most recent block.
	BlockNumber(ctx context.Context) (uint64, error)
	// Block returns a block by number, or the latest block if number is nil.
	Block(ctx context.Context, number *big.Int) (*types.Block, error)
	// Addresses returns the dev accounts of the node.
	Addresses(ctx context.Context) ([]common.Address, error)
	// Balance returns the balance of an account in wei.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	// Balances returns the balances of several accounts, in order.
	Balances(ctx context.Context, addrs []common.Address) ([]*big.Int, error)
	// SendValue submits a transfer of amount ether and returns the transaction hash.
	SendValue(ctx context.Context, from, to common.Address, amount string) (common.Hash, error)
	// Mine produces the given number of blocks.
	Mine(ctx context.Context, blocks uint64) error
	// AwaitReceipt waits until the transaction has been mined.
	AwaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	// DeployContract creates a contract from account, mines one block and waits for
	// the creation receipt.
	DeployContract(ctx context.Context, contractABI abi.ABI, bytecode []byte, account common.Address, args ...interface{}) (*Receipt, error)
	// Close closes the connection.
	Close()
}

var _ Client = (*RPCClient)(nil)

// Receipt is a transaction receipt as reported by the node.
type Receipt struct {
	*types.Receipt
	From common.Address
	To   *common.Address // nil for contract creations
}

// UnmarshalJSON decodes a receipt including its sender and recipient.
func (r *Receipt) UnmarshalJSON(input []byte) error {
	inner := new(types.Receipt)
	if err := json.Unmarshal(input, inner); err != nil {
		return err
	}
	var addrs struct {
		From common.Address  `json:"from"`
		To   *common.Address `json:"to"`
	}
	if err := json.Unmarshal(input, &addrs); err != nil {
		return err
	}
	r.Receipt, r.From, r.To = inner, addrs.From, addrs.To
	return nil
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// ClientOption configures an RPCClient.
type ClientOption interface {
	apply(c *RPCClient)
}

type clientOptionFunc func(c *RPCClient)

func (fn clientOptionFunc) apply(c *RPCClient) { fn(c) }

// WithClientLogger sets the client logger.
func WithClientLogger(l log15.Logger) ClientOption {
	return clientOptionFunc(func(c *RPCClient) { c.logger = l })
}

// WithPollInterval sets the receipt polling interval.
func WithPollInterval(d time.Duration) ClientOption {
	return clientOptionFunc(func(c *RPCClient) { c.pollInterval = d })
}

// WithReceiptTimeout bounds AwaitReceipt. Non-positive values keep the default.
func WithReceiptTimeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(c *RPCClient) {
		if d > 0 {
			c.receiptTimeout = d
		}
	})
}

// RPCClient implements Client over a JSON-RPC connection.
type RPCClient struct {
	rpc *rpc.Client
	eth *ethclient.Client

	receiptTimeout time.Duration
	pollInterval   time.Duration
	logger         log15.Logger
}

// Dial connects to the node at the given URL.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, &TransportError{Op: "dial " + url, Err: err}
	}
	return NewClient(c, opts...), nil
}

// NewClient wraps an existing RPC connection.
func NewClient(c *rpc.Client, opts ...ClientOption) *RPCClient {
	client := &RPCClient{
		rpc:            c,
		eth:            ethclient.NewClient(c),
		receiptTimeout: DefaultReceiptTimeout,
		pollInterval:   DefaultPollInterval,
		logger:         log15.Root(),
	}
	for _, opt := range opts {
		opt.apply(client)
	}
	return client
}

// RPC returns the underlying connection for calls the façade doesn't cover.
func (c *RPCClient) RPC() *rpc.Client {
	return c.rpc
}

// Close closes the connection.
func (c *RPCClient) Close() {
	c.rpc.Close()
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, callError("eth_blockNumber", err, false)
	}
	return n, nil
}

func (c *RPCClient) Block(ctx context.Context, number *big.Int) (*types.Block, error) {
	b, err := c.eth.BlockByNumber(ctx, number)
	if err != nil {
		return nil, callError("eth_getBlockByNumber", err, false)
	}
	return b, nil
}

func (c *RPCClient) Addresses(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, callError("eth_accounts", err, false)
	}
	return accounts, nil
}

func (c *RPCClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	b, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, callError("eth_getBalance", err, false)
	}
	return b, nil
}

func (c *RPCClient) Balances(ctx context.Context, addrs []common.Address) ([]*big.Int, error) {
	balances := make([]*big.Int, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range addrs {
		i := i
		g.Go(func() error {
			b, err := c.Balance(gctx, addrs[i])
			balances[i] = b
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return balances, nil
}

// sendArgs are the parameters of eth_sendTransaction. The node fills in gas, fees and
// nonce, and signs on behalf of impersonated senders.
type sendArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

func (c *RPCClient) sendTransaction(ctx context.Context, args sendArgs) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, callError("eth_sendTransaction", err, true)
	}
	return hash, nil
}

func (c *RPCClient) SendValue(ctx context.Context, from, to common.Address, amount string) (common.Hash, error) {
	wei, err := ParseEther(amount)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := c.sendTransaction(ctx, sendArgs{From: from, To: &to, Value: (*hexutil.Big)(wei)})
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Debug("value transfer submitted", "from", from, "to", to, "ether", amount, "tx", hash)
	return hash, nil
}

func (c *RPCClient) Mine(ctx context.Context, blocks uint64) error {
	if err := c.rpc.CallContext(ctx, nil, "anvil_mine", hexutil.Uint64(blocks), hexutil.Uint64(0)); err != nil {
		return callError("anvil_mine", err, false)
	}
	c.logger.Debug("mined blocks", "count", blocks)
	return nil
}

var errReceiptPending = errors.New("receipt not available")

// AwaitReceipt polls for the receipt of a transaction. It gives up with
// ErrConfirmationTimeout when the receipt timeout or the deadline of ctx passes.
func (c *RPCClient) AwaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	var receipt *Receipt
	poll := func() error {
		var r *Receipt
		err := c.rpc.CallContext(ctx, &r, "eth_getTransactionReceipt", hash)
		switch {
		case err != nil && ctx.Err() != nil:
			return err
		case err != nil:
			return backoff.Permanent(callError("eth_getTransactionReceipt", err, false))
		case r == nil:
			return errReceiptPending
		}
		receipt = r
		return nil
	}
	err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), ctx))
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, hash)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, err
}

// DeployContract submits a contract creation with the given constructor arguments,
// mines a block and returns the receipt. The contract may confirm in a later block if
// other callers mine concurrently.
func (c *RPCClient) DeployContract(ctx context.Context, contractABI abi.ABI, bytecode []byte, account common.Address, args ...interface{}) (*Receipt, error) {
	input, err := contractABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("can't pack constructor arguments: %w", err)
	}
	data := append(append([]byte(nil), bytecode...), input...)

	hash, err := c.sendTransaction(ctx, sendArgs{From: account, Data: data})
	if err != nil {
		return nil, err
	}
	if err := c.Mine(ctx, 1); err != nil {
		return nil, err
	}
	receipt, err := c.AwaitReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !receipt.Succeeded() {
		return receipt, &DeploymentError{Receipt: receipt}
	}
	c.logger.Info("contract deployed", "address", receipt.ContractAddress, "tx", hash, "block", receipt.BlockNumber)
	return receipt, nil
}
