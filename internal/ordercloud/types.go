package ordercloud

import "time"

// Order statuses this job cares about. The platform defines more; only
// AwaitingApproval is ever queried here.
const (
	StatusAwaitingApproval = "AwaitingApproval"
	StatusPending          = "Pending"
)

// Reminder-flag values stored on order extended properties. The flag is the
// only cross-run state the job has: "no" means the approvers have not been
// reminded yet, "yes" means a reminder went out on some previous run.
const (
	ReminderNotSent = "no"
	ReminderSent    = "yes"
)

// Meta carries the pagination envelope every list endpoint returns.
type Meta struct {
	Page       int `json:"Page"`
	PageSize   int `json:"PageSize"`
	TotalCount int `json:"TotalCount"`
	TotalPages int `json:"TotalPages"`
}

// OrderXP is the extended-property bag on an order. Only the reminder flag
// is read or written by this job.
type OrderXP struct {
	Over48 string `json:"Over48,omitempty"`
}

// OrderUser identifies the user who submitted an order.
type OrderUser struct {
	ID        string `json:"ID"`
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
}

// Order is the subset of the platform order record the job reads.
type Order struct {
	ID            string     `json:"ID"`
	Status        string     `json:"Status"`
	DateSubmitted time.Time  `json:"DateSubmitted"`
	FromCompanyID string     `json:"FromCompanyID"`
	FromUserID    string     `json:"FromUserID"`
	FromUser      *OrderUser `json:"FromUser,omitempty"`
	XP            OrderXP    `json:"xp"`
}

// OrderPage is one page of an order list response.
type OrderPage struct {
	Meta  Meta    `json:"Meta"`
	Items []Order `json:"Items"`
}

// Approval is a pending approval request on an order. Read-only here.
type Approval struct {
	ApprovalRuleID   string `json:"ApprovalRuleID"`
	ApprovingGroupID string `json:"ApprovingGroupID"`
	Status           string `json:"Status"`
}

// ApprovalPage is one page of an order approval list response.
type ApprovalPage struct {
	Meta  Meta       `json:"Meta"`
	Items []Approval `json:"Items"`
}

// User is a buyer-side user; members of approving groups are users.
type User struct {
	ID       string `json:"ID"`
	Username string `json:"Username"`
	Email    string `json:"Email"`
}

// UserPage is one page of a user list response.
type UserPage struct {
	Meta  Meta   `json:"Meta"`
	Items []User `json:"Items"`
}

// OrderPatch is the partial order document sent by PatchOrder. Only the
// extended-property bag is ever patched by this job.
type OrderPatch struct {
	XP OrderXP `json:"xp"`
}
