package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v3"

	"github.com/kimlik-auth/kimlik"
)

// ResendNotifier sends verification and password-reset mail via Resend.
type ResendNotifier struct {
	client    *resend.Client
	fromName  string
	fromEmail string
}

var _ kimlik.Notifier = (*ResendNotifier)(nil)

// NewResend builds a notifier. fromEmail must belong to a domain verified in
// the Resend dashboard; fromName is the display name shown to recipients.
func NewResend(apiKey, fromName, fromEmail string) *ResendNotifier {
	return &ResendNotifier{
		client:    resend.NewClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (n *ResendNotifier) SendVerificationEmail(ctx context.Context, email, displayName, code, link string) error {
	body := mailBody(displayName,
		"E-posta Adresinizi Doğrulayın",
		"Hesabınızı kullanmaya başlamak için e-posta adresinizi doğrulamanız gerekiyor. Bağlantı 24 saat geçerlidir.",
		"E-postamı Doğrula", link)
	return n.send(ctx, email, "E-posta Adresinizi Doğrulayın", body)
}

func (n *ResendNotifier) SendPasswordResetEmail(ctx context.Context, email, displayName, link string) error {
	body := mailBody(displayName,
		"Şifre Sıfırlama Talebi",
		"Şifrenizi sıfırlamak için bir talep aldık. Bağlantı 1 saat geçerlidir. Bu talebi siz yapmadıysanız bu e-postayı yok sayabilirsiniz.",
		"Şifremi Sıfırla", link)
	return n.send(ctx, email, "Şifre Sıfırlama Talebi", body)
}

func (n *ResendNotifier) SendPasswordResetSuccessEmail(ctx context.Context, email, displayName string) error {
	body := mailBody(displayName,
		"Şifreniz Güncellendi",
		"Hesabınızın şifresi az önce değiştirildi ve tüm oturumlarınız kapatıldı. Bu işlemi siz yapmadıysanız hemen destek ekibiyle iletişime geçin.",
		"", "")
	return n.send(ctx, email, "Şifreniz Güncellendi", body)
}

func (n *ResendNotifier) send(ctx context.Context, to, subject, htmlBody string) error {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail),
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}
	if _, err := n.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send %q mail: %w", subject, err)
	}
	return nil
}

// mailBody renders the shared template. An empty buttonLink produces a
// notification-only mail without the action button.
func mailBody(displayName, heading, message, buttonLabel, buttonLink string) string {
	button := ""
	if buttonLink != "" {
		button = fmt.Sprintf(`
              <table cellpadding="0" cellspacing="0" style="margin:0 0 24px 0;">
                <tr>
                  <td style="background-color:#6366f1;border-radius:6px;padding:12px 32px;">
                    <a href="%s" style="color:#ffffff;text-decoration:none;font-size:15px;font-weight:600;">%s</a>
                  </td>
                </tr>
              </table>
              <p style="color:#475569;font-size:13px;line-height:1.6;margin:0;word-break:break-all;">
                Buton çalışmazsa bu bağlantıyı kopyalayın:<br>
                <a href="%s" style="color:#6366f1;">%s</a>
              </p>`,
			buttonLink, html.EscapeString(buttonLabel), buttonLink, buttonLink)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin:0;padding:0;background-color:#1a1a2e;font-family:Arial,Helvetica,sans-serif;">
  <table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#1a1a2e;padding:40px 0;">
    <tr>
      <td align="center">
        <table width="480" cellpadding="0" cellspacing="0" style="background-color:#16213e;border-radius:8px;padding:40px;">
          <tr>
            <td>
              <h2 style="color:#e2e8f0;font-size:18px;margin:0 0 24px 0;">%s</h2>
              <p style="color:#94a3b8;font-size:15px;line-height:1.6;margin:0 0 24px 0;">
                Merhaba %s,
              </p>
              <p style="color:#94a3b8;font-size:15px;line-height:1.6;margin:0 0 24px 0;">
                %s
              </p>%s
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`,
		html.EscapeString(heading), html.EscapeString(displayName), html.EscapeString(message), button)
}
