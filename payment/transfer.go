package payment

import (
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// OpJettonTransfer is the TEP-74 jetton transfer op code.
const OpJettonTransfer = 0x0f8a7ea5

// CommentCell builds a text comment body: a zero 32-bit tag followed by the UTF-8 text.
func CommentCell(text string) (*cell.Cell, error) {
	b := cell.BeginCell().MustStoreUInt(0, 32)
	if err := b.StoreStringSnake(text); err != nil {
		return nil, fmt.Errorf("failed to store comment: %w", err)
	}

	return b.EndCell(), nil
}

// TransferParams are the fields of a jetton transfer message.
type TransferParams struct {
	QueryID             uint64
	Amount              tlb.Coins
	Destination         *address.Address
	ResponseDestination *address.Address
	ForwardAmount       tlb.Coins
	ForwardPayload      *cell.Cell
}

// TransferBody builds the body of a jetton transfer sent to the payer's jetton wallet.
//
//	transfer#0f8a7ea5 query_id:uint64 amount:(VarUInteger 16) destination:MsgAddress
//	  response_destination:MsgAddress custom_payload:(Maybe ^Cell)
//	  forward_ton_amount:(VarUInteger 16) forward_payload:(Either Cell ^Cell)
func TransferBody(p TransferParams) *cell.Cell {
	b := cell.BeginCell().
		MustStoreUInt(OpJettonTransfer, 32).
		MustStoreUInt(p.QueryID, 64).
		MustStoreBigCoins(p.Amount.Nano()).
		MustStoreAddr(p.Destination).
		MustStoreAddr(p.ResponseDestination).
		MustStoreBoolBit(false).
		MustStoreBigCoins(p.ForwardAmount.Nano())

	if p.ForwardPayload == nil {
		return b.MustStoreBoolBit(false).EndCell()
	}

	return b.MustStoreBoolBit(true).MustStoreRef(p.ForwardPayload).EndCell()
}
