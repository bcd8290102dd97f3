package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"math"
	texttemplate "text/template"
	"time"
)

const VerificationSubject = "Your MedAI verification code"

var verificationText = texttemplate.Must(texttemplate.New("verification.txt").Parse(
	`Your verification code is {{.Code}}. It expires in {{.Minutes}} minutes.`,
))

var verificationHTML = htmltemplate.Must(htmltemplate.New("verification.html").Parse(`<div style="font-family: Arial, sans-serif; line-height: 1.5;">
  <h2>Verify your MedAI account</h2>
  <p>Your verification code is:</p>
  <div style="font-size: 24px; font-weight: bold; letter-spacing: 2px;">{{.Code}}</div>
  <p>This code expires in {{.Minutes}} minutes.</p>
</div>
`))

// Message is a rendered email ready for a transport.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type verificationData struct {
	Code    string
	Minutes int
}

// ExpiryMinutes rounds a code lifetime up to whole minutes, at least one.
func ExpiryMinutes(ttl time.Duration) int {
	m := int(math.Ceil(ttl.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

func RenderVerification(to, code string, minutes int) (Message, error) {
	data := verificationData{Code: code, Minutes: minutes}

	var text, html bytes.Buffer
	if err := verificationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := verificationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	return Message{To: to, Subject: VerificationSubject, Text: text.String(), HTML: html.String()}, nil
}
