package ton

import (
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// ParseAddress parses a TON address in either user-friendly (base64) or raw ("wc:hex") form.
// Wallets report the account address in raw form, invoices are usually configured in
// user-friendly form.
func ParseAddress(addressStr string) (*address.Address, error) {
	var (
		addr *address.Address
		err  error
	)
	if strings.Contains(addressStr, ":") {
		addr, err = address.ParseRawAddr(addressStr)
	} else {
		addr, err = address.ParseAddr(addressStr)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid TON address format: %s, error: %w", addressStr, err)
	}

	return addr, nil
}

// AddressToBytes converts a TON address string to bytes.
// TON addresses can be in various formats but are normalized to 32 bytes.
func AddressToBytes(addressStr string) ([]byte, error) {
	addr, err := ParseAddress(addressStr)
	if err != nil {
		return nil, err
	}

	return addr.Data(), nil
}

// ExplorerURL returns the tonviewer page of an address.
func ExplorerURL(addr *address.Address, network Network) string {
	if network == Testnet {
		return "https://testnet.tonviewer.com/" + addr.String()
	}

	return "https://tonviewer.com/" + addr.String()
}
