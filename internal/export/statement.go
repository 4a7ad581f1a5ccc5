// Package export renders a filtered transaction history as a statement
// document consumable by reporting tools. The row field order is fixed:
// type, category, amount, date.
package export

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"bankledger/internal/models"
)

// Statement builds an XML statement for the account from an already
// filtered, newest-first transaction sequence and returns the encoded
// document.
func Statement(accountNumber string, transactions []models.Transaction) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("statement")
	root.CreateAttr("account", accountNumber)
	root.CreateAttr("generated", time.Now().Format(time.RFC3339))

	list := root.CreateElement("transactions")
	for _, t := range transactions {
		row := list.CreateElement("transaction")
		row.CreateElement("type").SetText(string(t.Type))
		row.CreateElement("category").SetText(string(t.Category))
		row.CreateElement("amount").SetText(FormatAmount(t.Amount))
		row.CreateElement("date").SetText(t.CreatedAt.Format("2006-01-02"))
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode statement: %w", err)
	}
	return out, nil
}

// FormatAmount renders a signed amount as currency, e.g. "$-30.00".
func FormatAmount(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}
