package payment

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/kartacom/tonpay/wallet"
)

// SendArgs is a single internal message to be signed by the connected wallet.
type SendArgs struct {
	To    *address.Address
	Value tlb.Coins
	Body  *cell.Cell
}

// Sender submits messages on behalf of the connected wallet.
type Sender interface {
	Address() *address.Address
	Send(ctx context.Context, args SendArgs) (*wallet.SendResult, error)
}

var _ Sender = (*sessionSender)(nil)

// sessionSender sends one message per transaction through the wallet session.
type sessionSender struct {
	session    Session
	from       *address.Address
	network    string
	validUntil func() int64
}

func (s *sessionSender) Address() *address.Address {
	return s.from
}

func (s *sessionSender) Send(ctx context.Context, args SendArgs) (*wallet.SendResult, error) {
	if args.To == nil {
		return nil, errors.New("destination address is required")
	}

	msg := wallet.Message{
		Address: args.To.String(),
		Amount:  args.Value.Nano().String(),
	}
	if args.Body != nil {
		msg.Payload = base64.StdEncoding.EncodeToString(args.Body.ToBOC())
	}

	return s.session.SendTransaction(ctx, wallet.Transaction{
		ValidUntil: s.validUntil(),
		Network:    s.network,
		From:       s.from.String(),
		Messages:   []wallet.Message{msg},
	})
}
