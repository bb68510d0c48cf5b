package order

// QueryOrdersModel represents filter parameters for querying orders.
type QueryOrdersModel struct {
	Ids           []string `json:"ids,omitempty"`
	CustomerIds   []int64  `json:"customerIds,omitempty"`
	Status        string   `json:"status,omitempty"`
	PaymentStatus string   `json:"paymentStatus,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Offset        int      `json:"offset,omitempty"`
}
