package email

import (
	"context"
	"net"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	permanent := classify(&textproto.Error{Code: 550, Msg: "no such user"})
	assert.ErrorIs(t, permanent, ErrPermanent)

	greylisted := classify(&textproto.Error{Code: 451, Msg: "try again later"})
	assert.ErrorIs(t, greylisted, ErrTransient)

	network := classify(&net.OpError{Op: "dial", Err: assert.AnError})
	assert.ErrorIs(t, network, ErrTransient)
}

func TestSend_MalformedRecipientIsPermanent(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 2525, From: "billing@acme.test"})

	err := p.Send(context.Background(), []string{"not-an-address"}, "subject", "<p>hi</p>")
	assert.ErrorIs(t, err, ErrPermanent)

	err = p.Send(context.Background(), nil, "subject", "<p>hi</p>")
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestBuildMessage_PlainHTML(t *testing.T) {
	msg, err := buildMessage("billing@acme.test", []string{"ravi@example.test"}, "Invoice", "<p>hello</p>", nil)
	require.NoError(t, err)

	body := string(msg)
	assert.Contains(t, body, "From: billing@acme.test")
	assert.Contains(t, body, "To: ravi@example.test")
	assert.Contains(t, body, "Subject: Invoice")
	assert.Contains(t, body, "text/html")
	assert.Contains(t, body, "<p>hello</p>")
}

func TestBuildMessage_WithAttachment(t *testing.T) {
	att := Attachment{
		Filename:    "invoice.html",
		ContentType: "text/html; charset=utf-8",
		Data:        []byte("<html></html>"),
	}
	msg, err := buildMessage("billing@acme.test", []string{"ravi@example.test"}, "Invoice", "<p>hello</p>", []Attachment{att})
	require.NoError(t, err)

	body := string(msg)
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, `attachment; filename="invoice.html"`)
	assert.Contains(t, body, "base64")
}
