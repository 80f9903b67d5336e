package domain

// Tab is a checkout wizard step.
type Tab int

const (
	TabSummary Tab = iota
	TabAddress
	TabPayment
	TabConfirm
)

// TabCount is the number of wizard tabs.
const TabCount = 4

var tabNames = [TabCount]string{"summary", "address", "payment", "confirm"}

func (t Tab) String() string {
	if t < 0 || int(t) >= TabCount {
		return "unknown"
	}
	return tabNames[t]
}

// ClampTab bounds i to the valid tab range.
func ClampTab(i int) Tab {
	switch {
	case i < 0:
		return TabSummary
	case i >= TabCount:
		return TabConfirm
	default:
		return Tab(i)
	}
}
