package models

// EmailTemplate is a per-locale override of a built-in email. Subject and
// Body are text/template sources.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string `bson:"template_id" json:"template_id"` // e.g. "welcome", "password_changed"
	Locale     string `bson:"locale" json:"locale"`           // e.g. "is-IS"
	Subject    string `bson:"subject" json:"subject"`
	Body       string `bson:"body" json:"body"` // plain text
}
