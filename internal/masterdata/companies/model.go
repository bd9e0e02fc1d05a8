package companies

import "errors"

// ErrCompanyNotFound is returned when a company name is unknown.
var ErrCompanyNotFound = errors.New("company not found")

// Company is a node in the group structure. Lft and Rgt bound the nested
// interval of its subtree.
type Company struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	ParentCompany         string `json:"parent_company,omitempty"`
	Lft                   int    `json:"lft"`
	Rgt                   int    `json:"rgt"`
	IsGroup               bool   `json:"is_group"`
	DefaultCurrency       string `json:"default_currency"`
	ExceptionApproverRole string `json:"exception_approver_role,omitempty"`
}

// Contains reports whether other lies inside c's interval, c included.
func (c Company) Contains(other Company) bool {
	return c.Lft <= other.Lft && other.Rgt <= c.Rgt
}
