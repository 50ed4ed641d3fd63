package email

import "fmt"

func (c *Client) SendWelcomeEmail(to string, data WelcomeData) error {
	return c.SendEmail([]string{to}, "Your ERM account is ready", TemplateWelcome, data)
}

func (c *Client) SendApprovalRequestedEmail(to []string, data ApprovalRequestedData) error {
	return c.SendEmail(to, fmt.Sprintf("Approval needed: %s", data.Title), TemplateApprovalRequested, data)
}

func (c *Client) SendApprovalDecidedEmail(to string, data ApprovalDecidedData) error {
	return c.SendEmail([]string{to}, fmt.Sprintf("Request %s: %s", data.Outcome, data.Title), TemplateApprovalDecided, data)
}
