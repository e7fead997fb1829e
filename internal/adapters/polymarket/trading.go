package polymarket

// trading.go — Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderExecutor using AuthClient for L1/L2 auth. Orders go
// out as FOK taker BUYs: for a window that resolves in minutes a resting
// maker order is worthless, either it fills now or the cycle is skipped.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

const usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client
}

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain balance checks.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{auth: auth, rpcClient: rpc}, nil
}

// PlaceOrder signs and submits a FOK taker BUY order to the CLOB.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: creds: %w", err)
	}

	signed, err := tc.auth.signOrder(req)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "FOK",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("%w: %s", domain.ErrOrderRejected, resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		CLOBOrderID: resp.OrderID,
		Status:      resp.Status,
		TakenAmount: parseUSDC(resp.TakingAmount),
		MadeAmount:  parseUSDC(resp.MakingAmount),
	}, nil
}

// GetBalance returns the on-chain USDC.e balance of the wallet.
func (tc *TradingClient) GetBalance(ctx context.Context) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("get balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("get balance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("get balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetFloat64(1e6)).Float64()
	return bal, nil
}

// parseUSDC converts a micro-USDC string (e.g., "1000000") to USDC float.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n := new(big.Int)
	n.SetString(s, 10)
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}
