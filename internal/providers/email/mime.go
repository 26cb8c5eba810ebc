package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"sort"
	"strings"
	"time"
)

const base64LineLen = 76

// build renders msg as multipart/mixed with a multipart/alternative body.
func build(from string, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	headers := map[string]string{
		"From":         from,
		"To":           sanitizeHeader(strings.Join(msg.To, ", ")),
		"Subject":      mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject)),
		"Date":         now.Format(time.RFC1123Z),
		"MIME-Version": "1.0",
	}
	for k, v := range msg.Headers {
		headers[textproto.CanonicalMIMEHeaderKey(k)] = sanitizeHeader(v)
	}

	mixed := multipart.NewWriter(&buf)
	headers["Content-Type"] = "multipart/mixed; boundary=" + mixed.Boundary()
	writeHeaders(&buf, headers)

	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)
	if err := writeAlternative(alt, msg); err != nil {
		return nil, err
	}
	altPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + alt.Boundary()},
	})
	if err != nil {
		return nil, err
	}
	if _, err := altPart.Write(altBuf.Bytes()); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", fmt.Sprintf("%s; name=%q", ct, a.Filename))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
		h.Set("Content-Transfer-Encoding", "base64")
		part, err := mixed.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, a.Data); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAlternative(alt *multipart.Writer, msg Message) error {
	bodies := []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, b := range bodies {
		if b.body == "" {
			continue
		}
		part, err := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {b.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return err
		}
		if err := writeQuotedPrintable(part, b.body); err != nil {
			return err
		}
	}
	return alt.Close()
}

func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > base64LineLen {
		if _, err := io.WriteString(w, encoded[:base64LineLen]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[base64LineLen:]
	}
	_, err := io.WriteString(w, encoded+"\r\n")
	return err
}

func writeQuotedPrintable(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, s); err != nil {
		return err
	}
	return qp.Close()
}

func writeHeaders(w io.Writer, headers map[string]string) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\r\n", k, headers[k])
	}
	io.WriteString(w, "\r\n")
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
