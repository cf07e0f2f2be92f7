package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// MagicLinkData feeds the sign-in email template.
type MagicLinkData struct {
	MagicLinkURL   string
	RestaurantName string
}

var magicLinkHTML = template.Must(template.New("magic-link").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, 'Segoe UI', sans-serif; color: #1a202c; margin: 0; padding: 24px;">
  <div style="max-width: 480px; margin: 0 auto;">
    <h2 style="margin: 0 0 12px;">Sign in to MenuShield</h2>
    <p style="margin: 0 0 20px; color: #334155;">Click the button below to sign in to your dashboard. This link works once and expires in 15 minutes.</p>
    <p style="margin: 0 0 24px;">
      <a href="{{.MagicLinkURL}}" style="background: #0f766e; color: #ffffff; padding: 12px 20px; border-radius: 8px; text-decoration: none; font-weight: 600;">Sign In</a>
    </p>
    <p style="font-size: 12px; color: #64748b;">If you didn't request this email you can safely ignore it.</p>
  </div>
</body>
</html>
`))

// RenderMagicLinkEmail renders the HTML and plain-text bodies for a sign-in link.
func RenderMagicLinkEmail(data MagicLinkData) (htmlBody, textBody string, err error) {
	var buf bytes.Buffer
	if err := magicLinkHTML.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render magic link email: %w", err)
	}
	text := fmt.Sprintf("Sign in to MenuShield:\n\n%s\n\nThis link works once and expires in 15 minutes.\nIf you didn't request this email you can safely ignore it.\n", data.MagicLinkURL)
	return buf.String(), text, nil
}
