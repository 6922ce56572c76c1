package esp

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/service/sending"
)

// newMessageID returns a Message-ID (without angle brackets) in the sender's
// domain.
func newMessageID(fromEmail string) string {
	host := "localhost"
	if at := strings.LastIndex(fromEmail, "@"); at >= 0 && at < len(fromEmail)-1 {
		host = fromEmail[at+1:]
	}
	return uuid.New().String() + "@" + host
}

func isHTML(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "<html") || strings.Contains(b, "<p>") || strings.Contains(b, "<br")
}

// buildMessage renders msg as an RFC 5322 message with a quoted-printable
// UTF-8 body.
func buildMessage(msg *sending.Message, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	from := mail.Address{Name: msg.FromName, Address: msg.FromEmail}
	ctype := "text/plain"
	if isHTML(msg.Body) {
		ctype = "text/html"
	}

	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s>\r\n", messageID)

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, mime.QEncoding.Encode("utf-8", msg.Headers[k]))
	}

	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s; charset=utf-8\r\n", ctype)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}
