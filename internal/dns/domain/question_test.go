package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuestion(t *testing.T) {
	q, err := NewQuestion(42, "example.com.", RRTypeA, RRClassIN)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), q.ID)

	_, err = NewQuestion(1, "", RRTypeA, RRClassIN)
	assert.Error(t, err)
	_, err = NewQuestion(1, "example.com", 0, RRClassIN)
	assert.Error(t, err)
	_, err = NewQuestion(1, "example.com", RRTypeA, 0)
	assert.Error(t, err)
}

func TestQuestion_SameAs(t *testing.T) {
	base := Question{ID: 1, Name: "Example.com.", Type: RRTypeA, Class: RRClassIN}

	assert.True(t, base.SameAs(Question{ID: 99, Name: "example.COM", Type: RRTypeA, Class: RRClassIN}))
	assert.False(t, base.SameAs(Question{Name: "example.com", Type: RRTypeAAAA, Class: RRClassIN}))
	assert.False(t, base.SameAs(Question{Name: "example.org", Type: RRTypeA, Class: RRClassIN}))
	assert.False(t, base.SameAs(Question{Name: "example.com", Type: RRTypeA, Class: RRClassCH}))
}

func TestRRType_String(t *testing.T) {
	assert.Equal(t, "AAAA", RRTypeAAAA.String())
	assert.Equal(t, "TYPE65", RRType(65).String())
	assert.Equal(t, RRTypeCNAME, RRTypeFromString("CNAME"))
	assert.Equal(t, RRType(0), RRTypeFromString("BOGUS"))
	assert.True(t, RRTypeCNAME.IsCacheable())
	assert.False(t, RRTypeSOA.IsCacheable())
	assert.True(t, RRTypeAAAA.IsAddress())
	assert.False(t, RRTypeCNAME.IsAddress())
}

func TestRCodeAndClass_String(t *testing.T) {
	assert.Equal(t, "NXDOMAIN", RCodeNXDomain.String())
	assert.Equal(t, "RCODE9", RCode(9).String())
	assert.Equal(t, "IN", RRClassIN.String())
	assert.Equal(t, "UNKNOWN", RRClass(77).String())
}
