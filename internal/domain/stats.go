package domain

// Stats holds aggregate totals shown on the admin dashboard.
type Stats struct {
	TotalAccounts int64 `db:"total_accounts" json:"total_accounts"`
	TotalMapos    int64 `db:"total_mapos" json:"total_mapos"`
}
