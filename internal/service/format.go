package service

import "strings"

// DefaultTemplate is used when a subscription has no custom message.
const DefaultTemplate = "{role} {user} is now live on {service}! {title} — {url}"

// AnnouncementContext carries the values substituted into a template.
type AnnouncementContext struct {
	Role    string
	User    string
	Service string
	Title   string
	URL     string
}

// FormatAnnouncement replaces {role} {user} {service} {title} and {url} in
// template. Substitution is a single pass: values are never re-scanned and
// unknown tokens are left as they are.
func FormatAnnouncement(template string, c AnnouncementContext) string {
	if template == "" {
		template = DefaultTemplate
	}
	r := strings.NewReplacer(
		"{role}", c.Role,
		"{user}", c.User,
		"{service}", c.Service,
		"{title}", c.Title,
		"{url}", c.URL,
	)
	return r.Replace(template)
}

// MentionRole renders a role mention, or an empty string when roleID is empty.
func MentionRole(roleID string) string {
	if roleID == "" {
		return ""
	}
	return "<@&" + roleID + ">"
}
