package email

// Template names a file under templates/.
type Template string

const (
	TemplateWelcome           Template = "welcome"
	TemplateApprovalRequested Template = "approval_requested"
	TemplateApprovalDecided   Template = "approval_decided"
)

type WelcomeData struct {
	FullName string
	Email    string
	Role     string
}

type ApprovalRequestedData struct {
	Title       string
	Kind        string
	RequestedBy string
	RequestID   string
}

type ApprovalDecidedData struct {
	Title     string
	Kind      string
	Outcome   string
	Comment   string
	RequestID string
}

// PreviewData holds sample values for every template.
var PreviewData = map[Template]any{
	TemplateWelcome: WelcomeData{FullName: "Jane Doe", Email: "jane@example.com", Role: "hr"},
	TemplateApprovalRequested: ApprovalRequestedData{
		Title:       "Publish policy HR-001 v2",
		Kind:        "policy_publication",
		RequestedBy: "john@example.com",
		RequestID:   "00000000-0000-0000-0000-000000000000",
	},
	TemplateApprovalDecided: ApprovalDecidedData{
		Title:     "Assign Laptop 14 to Jane Doe",
		Kind:      "resource_assignment",
		Outcome:   "rejected",
		Comment:   "No spare laptops this quarter",
		RequestID: "00000000-0000-0000-0000-000000000000",
	},
}
