package branches

// Branch is an operating unit of one company.
type Branch struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Company string `json:"company" db:"company"`
}
