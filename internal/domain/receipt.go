package domain

import "github.com/shopspring/decimal"

// Receipt is what the wallet gateway returns for an executed transfer.
type Receipt struct {
	Reference string           // on-chain tx hash or provider reference
	Savings   *decimal.Decimal // fee saved versus a reference provider, when known
}

// Contact holds the delivery addresses known for a wallet owner. Any field
// may be empty.
type Contact struct {
	Phone          string
	TelegramChatID int64
	Email          string
}

func (c Contact) Empty() bool {
	return c.Phone == "" && c.TelegramChatID == 0 && c.Email == ""
}
