package model

// Balance is the unified account balance snapshot returned by the venue.
// Values stay as decimal strings; nothing in the core does arithmetic on
// them, they are only reported and journaled.
type Balance struct {
	IsolatedBalance string `json:"isolated_balance"`
	IsolatedUpnl    string `json:"isolated_upnl"`
	CrossBalance    string `json:"cross_balance"`
	CrossMargin     string `json:"cross_margin"`
	CrossUpnl       string `json:"cross_upnl"`
	Locked          string `json:"locked"`
	CrossAvailable  string `json:"cross_available"`
	Balance         string `json:"balance"`
	Upnl            string `json:"upnl"`
	Equity          string `json:"equity"`
	PnlFreeze       string `json:"pnl_freeze"`
}

// ZeroBalance is the snapshot reported for accounts with no balance record
// yet. The venue answers 404 for those; callers substitute this value.
func ZeroBalance() Balance {
	return Balance{
		IsolatedBalance: "0",
		IsolatedUpnl:    "0",
		CrossBalance:    "0",
		CrossMargin:     "0",
		CrossUpnl:       "0",
		Locked:          "0",
		CrossAvailable:  "0",
		Balance:         "0",
		Upnl:            "0",
		Equity:          "0",
		PnlFreeze:       "0",
	}
}
