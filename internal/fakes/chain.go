package fakes

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http/httptest"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	transferGas  = 21000
	blockGas     = 30_000_000
	fakeChainID  = 31337
	initialFunds = 10000 // ether per dev account
)

// Chain is an in-memory stand-in for the JSON-RPC API of an Anvil node with
// auto-mining disabled. Transactions stay pending until anvil_mine is called.
//
// Contract creations whose code starts with the INVALID opcode (0xfe) are mined
// with a failed status.
type Chain struct {
	mu       sync.Mutex
	accounts []common.Address
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	headers  []*types.Header
	pending  []*pendingTx
	receipts map[common.Hash]map[string]interface{}

	server *rpc.Server
}

type pendingTx struct {
	hash  common.Hash
	from  common.Address
	to    *common.Address
	value *big.Int
	data  []byte
	nonce uint64
}

// NewChain creates a chain with the given number of funded accounts and a genesis block.
func NewChain(accounts int) *Chain {
	c := &Chain{
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]map[string]interface{}),
	}
	for i := 0; i < accounts; i++ {
		key := crypto.Keccak256([]byte(fmt.Sprintf("dev account %d", i)))
		addr := common.BytesToAddress(key[12:])
		c.accounts = append(c.accounts, addr)
		c.balances[addr] = new(big.Int).Mul(big.NewInt(initialFunds), big.NewInt(params.Ether))
	}
	c.headers = append(c.headers, c.newHeader(common.Hash{}, 0))

	c.server = rpc.NewServer()
	if err := c.server.RegisterName("eth", &ethAPI{c}); err != nil {
		panic(err)
	}
	if err := c.server.RegisterName("anvil", &anvilAPI{c}); err != nil {
		panic(err)
	}
	return c
}

// Server returns the RPC server of the chain.
func (c *Chain) Server() *rpc.Server {
	return c.server
}

// NewHTTPServer serves the chain over HTTP. The caller must close the server.
func (c *Chain) NewHTTPServer() *httptest.Server {
	return httptest.NewServer(c.server)
}

// Accounts returns the dev accounts.
func (c *Chain) Accounts() []common.Address {
	return append([]common.Address(nil), c.accounts...)
}

// Head returns the number of the latest block.
func (c *Chain) Head() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.headers) - 1)
}

// Pending returns the number of transactions waiting to be mined.
func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Chain) newHeader(parent common.Hash, number uint64) *types.Header {
	return &types.Header{
		ParentHash:  parent,
		UncleHash:   types.EmptyUncleHash,
		Root:        types.EmptyRootHash,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int).SetUint64(number),
		GasLimit:    blockGas,
		Time:        1700000000 + number,
		Extra:       []byte{},
	}
}

func (c *Chain) submit(args sendArgs) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	balance, ok := c.balances[args.From]
	if !ok {
		balance = new(big.Int)
	}
	if balance.Cmp(value) < 0 {
		return common.Hash{}, errors.New("insufficient funds for transfer")
	}
	var data []byte
	switch {
	case args.Input != nil:
		data = *args.Input
	case args.Data != nil:
		data = *args.Data
	}
	if args.To == nil && len(data) == 0 {
		return common.Hash{}, errors.New("contract creation without any data provided")
	}

	nonce := c.nonces[args.From]
	c.nonces[args.From] = nonce + 1
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], nonce)
	hash := crypto.Keccak256Hash(args.From.Bytes(), enc[:], value.Bytes(), data)
	c.pending = append(c.pending, &pendingTx{hash: hash, from: args.From, to: args.To, value: value, data: data, nonce: nonce})
	return hash, nil
}

func (c *Chain) mine(blocks uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := uint64(0); i < blocks; i++ {
		parent := c.headers[len(c.headers)-1]
		header := c.newHeader(parent.Hash(), parent.Number.Uint64()+1)
		txs := c.pending
		c.pending = nil
		header.GasUsed = uint64(len(txs)) * transferGas
		hash := header.Hash()
		for index, tx := range txs {
			c.receipts[tx.hash] = c.execute(tx, header, hash, index)
		}
		c.headers = append(c.headers, header)
	}
}

// execute applies a transaction and returns its JSON receipt.
func (c *Chain) execute(tx *pendingTx, header *types.Header, blockHash common.Hash, index int) map[string]interface{} {
	r := &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: uint64(index+1) * transferGas,
		Logs:              []*types.Log{},
		TxHash:            tx.hash,
		GasUsed:           transferGas,
		EffectiveGasPrice: big.NewInt(1),
		BlockHash:         blockHash,
		BlockNumber:       new(big.Int).Set(header.Number),
		TransactionIndex:  uint(index),
	}
	switch {
	case tx.to == nil && len(tx.data) > 0 && tx.data[0] == 0xfe:
		r.Status = types.ReceiptStatusFailed
	case tx.to == nil:
		r.ContractAddress = crypto.CreateAddress(tx.from, tx.nonce)
	default:
		c.balances[tx.from] = new(big.Int).Sub(c.balances[tx.from], tx.value)
		if _, ok := c.balances[*tx.to]; !ok {
			c.balances[*tx.to] = new(big.Int)
		}
		c.balances[*tx.to] = new(big.Int).Add(c.balances[*tx.to], tx.value)
	}

	enc, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(enc, &fields); err != nil {
		panic(err)
	}
	fields["from"] = tx.from
	fields["to"] = tx.to
	if tx.to != nil {
		fields["contractAddress"] = nil
	}
	return fields
}

func (c *Chain) header(number string) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch number {
	case "latest", "pending", "safe", "finalized":
		return c.headers[len(c.headers)-1], nil
	case "earliest":
		return c.headers[0], nil
	}
	n, err := hexutil.DecodeUint64(number)
	if err != nil {
		return nil, fmt.Errorf("invalid block number %q: %v", number, err)
	}
	if n >= uint64(len(c.headers)) {
		return nil, nil
	}
	return c.headers[n], nil
}

// sendArgs are the eth_sendTransaction parameters understood by the fake.
type sendArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

type ethAPI struct{ c *Chain }

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(fakeChainID))
}

func (api *ethAPI) Accounts() []common.Address {
	return api.c.Accounts()
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.c.Head())
}

func (api *ethAPI) GetBalance(addr common.Address, block string) (*hexutil.Big, error) {
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	b, ok := api.c.balances[addr]
	if !ok {
		b = new(big.Int)
	}
	return (*hexutil.Big)(new(big.Int).Set(b)), nil
}

func (api *ethAPI) GetBlockByNumber(number string, full bool) (map[string]interface{}, error) {
	h, err := api.c.header(number)
	if err != nil || h == nil {
		return nil, err
	}
	enc, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(enc, &fields); err != nil {
		return nil, err
	}
	fields["transactions"] = []interface{}{}
	fields["uncles"] = []common.Hash{}
	return fields, nil
}

func (api *ethAPI) SendTransaction(args sendArgs) (common.Hash, error) {
	return api.c.submit(args)
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (map[string]interface{}, error) {
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	return api.c.receipts[hash], nil
}

type anvilAPI struct{ c *Chain }

// Mine implements anvil_mine. Both parameters are optional; the interval is ignored.
func (api *anvilAPI) Mine(blocks *hexutil.Uint64, interval *hexutil.Uint64) error {
	n := uint64(1)
	if blocks != nil {
		n = uint64(*blocks)
	}
	api.c.mine(n)
	return nil
}
