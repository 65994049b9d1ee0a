package node

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"auctionhouse/common/utils"
	"auctionhouse/service"
)

var NotFound = fmt.Errorf("not found")

// Contract ABI surface of the auction house.
var (
	auctionsSelector = hexutil.Encode(utils.MethodSelector("auctions(uint256)"))
	bidPlacedTopic   = utils.EventTopic("BidPlaced(uint256,address,uint256,uint256)")
)

// auctions(uint256) return layout: seller, startingBid, minIncrement,
// highestBid, highestBidder, startTime, endTime, extensions, state.
const auctionWords = 9

// Client is the read-only auction house contract client. It implements
// service.ChainReader.
type Client struct {
	*RPC
	contract string
}

// Dial connects a client to the given node URL for the given auction house
// contract address.
func Dial(rawurl, contract string) (*Client, error) {
	rpc, err := NewRPC(rawurl)
	if err != nil {
		return nil, err
	}
	return &Client{RPC: rpc, contract: strings.ToLower(contract)}, nil
}

// ChainId returns the chain id of the connected node.
func (c *Client) ChainId(ctx context.Context) (*big.Int, error) {
	var hex string
	if err := c.CallContext(ctx, &hex, "eth_chainId"); err != nil {
		return nil, err
	}
	return hexutil.DecodeBig(hex)
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.CallContext(ctx, &hex, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(hex)
}

// AuctionAt reads the contract's auction struct for the given index.
func (c *Client) AuctionAt(ctx context.Context, index uint64) (*service.ChainAuction, error) {
	data := auctionsSelector + indexWord(index)
	msg := map[string]interface{}{"to": c.contract, "data": data}
	var ret string
	if err := c.CallContext(ctx, &ret, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}
	words, err := decodeWords(ret, auctionWords)
	if err != nil {
		return nil, err
	}
	seller := wordToAddress(words[0])
	if seller == "" {
		return nil, NotFound
	}
	return &service.ChainAuction{
		Index:         index,
		Seller:        seller,
		StartingBid:   new(big.Int).SetBytes(words[1]),
		MinIncrement:  new(big.Int).SetBytes(words[2]),
		HighestBid:    new(big.Int).SetBytes(words[3]),
		HighestBidder: wordToAddress(words[4]),
		StartTime:     new(big.Int).SetBytes(words[5]).Uint64(),
		EndTime:       new(big.Int).SetBytes(words[6]).Uint64(),
		Extensions:    new(big.Int).SetBytes(words[7]).Uint64(),
		State:         uint8(new(big.Int).SetBytes(words[8]).Uint64()),
	}, nil
}

type rpcLog struct {
	Data            string   `json:"data"`
	Topics          []string `json:"topics"`
	TransactionHash string   `json:"transactionHash"`
}

// AuctionBids reads the BidPlaced event history for the given auction index.
// The transaction hash of each log is the idempotency key for the mirrored
// bid row.
func (c *Client) AuctionBids(ctx context.Context, index uint64) ([]service.ChainBid, error) {
	filter := map[string]interface{}{
		"address":   c.contract,
		"fromBlock": "0x0",
		"toBlock":   "latest",
		"topics":    []interface{}{bidPlacedTopic, "0x" + indexWord(index)},
	}
	var logs []rpcLog
	if err := c.CallContext(ctx, &logs, "eth_getLogs", filter); err != nil {
		return nil, err
	}

	bids := make([]service.ChainBid, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		bidder, err := decodeWords(l.Topics[2], 1)
		if err != nil {
			return nil, err
		}
		data, err := decodeWords(l.Data, 2)
		if err != nil {
			return nil, err
		}
		bids = append(bids, service.ChainBid{
			TxHash: l.TransactionHash,
			Bidder: wordToAddress(bidder[0]),
			Amount: new(big.Int).SetBytes(data[0]),
			Time:   new(big.Int).SetBytes(data[1]).Uint64(),
		})
	}
	return bids, nil
}

// indexWord encodes a uint256 argument as a 32-byte hex word without prefix.
func indexWord(index uint64) string {
	word := common.LeftPadBytes(new(big.Int).SetUint64(index).Bytes(), 32)
	return common.Bytes2Hex(word)
}

// decodeWords splits hex return data into n 32-byte words.
func decodeWords(hex string, n int) ([][]byte, error) {
	raw, err := hexutil.Decode(hex)
	if err != nil {
		return nil, err
	}
	if len(raw) < n*32 {
		return nil, fmt.Errorf("return data too short: %d bytes, want %d words", len(raw), n)
	}
	words := make([][]byte, n)
	for i := 0; i < n; i++ {
		words[i] = raw[i*32 : (i+1)*32]
	}
	return words, nil
}

// wordToAddress extracts the address from a 32-byte word, empty for the zero
// address.
func wordToAddress(word []byte) string {
	addr := common.BytesToAddress(word)
	if addr == (common.Address{}) {
		return ""
	}
	return strings.ToLower(addr.Hex())
}
