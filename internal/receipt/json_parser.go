package receipt

import "encoding/json"

// JSONParser parses the simulated store's JSON receipt format.
type JSONParser struct{}

func NewJSONParser() JSONParser { return JSONParser{} }

type jsonReceipt struct {
	ProductIDs []string `json:"product_ids"`
}

func (JSONParser) ContainsTransactions(receipt []byte) bool {
	var r jsonReceipt
	if err := json.Unmarshal(receipt, &r); err != nil {
		return false
	}
	return len(r.ProductIDs) > 0
}

func (JSONParser) ContainsProduct(receipt []byte, productID string) bool {
	var r jsonReceipt
	if err := json.Unmarshal(receipt, &r); err != nil {
		return false
	}
	for _, id := range r.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}
