package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	out, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, "ord_9", 42)
	assert.NoError(t, err)
	assert.Equal(t, "INV-20260831-ord_9-42", out)
}

func TestFormatInvoiceNumber_PaddedSequence(t *testing.T) {
	issued := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	out, err := FormatInvoiceNumber("{YY}{MM}-{SEQ6}", issued, "", 7)
	assert.NoError(t, err)
	assert.Equal(t, "2601-000007", out)
}

func TestFormatInvoiceNumber_Deterministic(t *testing.T) {
	issued := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	a, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, "ord_1", 100)
	assert.NoError(t, err)
	b, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, "ord_1", 100)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFormatInvoiceNumber_Errors(t *testing.T) {
	issued := time.Now().UTC()

	_, err := FormatInvoiceNumber("", issued, "ord_1", 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, "ord_1", 0)
	assert.Error(t, err)

	// {ORDER} with no order id
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, "", 1)
	assert.Error(t, err)

	// unresolved token
	_, err = FormatInvoiceNumber("INV-{NOPE}", issued, "ord_1", 1)
	assert.Error(t, err)
}
