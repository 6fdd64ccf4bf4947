package services

import (
	"fmt"
	"strings"

	"ecoproof-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateAddress checks a payout address and returns its checksummed form
func ValidateAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", models.ErrInvalidAddress.WithCause(fmt.Errorf("%q is not a hex address", address))
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return "", models.ErrInvalidAddress.WithCause(fmt.Errorf("zero address"))
	}
	return addr.Hex(), nil
}
