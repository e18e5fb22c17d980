package mail

import (
	"fmt"
	"net/url"
)

func Welcome(appName, email string) Message {
	return Message{
		To:      email,
		Subject: "Welcome to " + appName,
		Body:    "Thank you for registering!",
	}
}

// PasswordReset links to the frontend reset form with token and email.
func PasswordReset(appName, frontendURL, email, token string) Message {
	link := fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		frontendURL, url.QueryEscape(token), url.QueryEscape(email))
	return Message{
		To:      email,
		Subject: "Password Reset Request - " + appName,
		Body: fmt.Sprintf(`<h2>Password Reset Request</h2>
<p>You requested to reset your password. Click the link below to reset it:</p>
<p><a href="%[1]s">%[1]s</a></p>
<p>If you didn't request this, please ignore this email.</p>
<p>Best regards,<br>%[2]s</p>`, link, appName),
	}
}

func PasswordResetDone(appName, email string) Message {
	return Message{
		To:      email,
		Subject: "Password Reset Successful - " + appName,
		Body: fmt.Sprintf(`<h2>Password Reset Successful</h2>
<p>Your password has been successfully reset.</p>
<p>If you didn't make this change, please contact us immediately.</p>
<p>Best regards,<br>%s</p>`, appName),
	}
}
