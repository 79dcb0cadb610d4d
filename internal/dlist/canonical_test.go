package dlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	v := NewKVList("MAILBOX",
		NewAtom("MBOXNAME", "user.anne"),
		NewAtom("UNIQUEID", "5f1c"),
		NewNil("QUOTAROOT"),
		NewList("FLAGS", NewAtom("", `\Seen`), NewString("", "<b>")),
		NewFile("MSG", "default", "1a2b", []byte("hello")),
	)

	got, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t,
		`{"FLAGS":["\\Seen","<b>"],"MBOXNAME":"user.anne","MSG":{"guid":"1a2b","partition":"default","size":5},"QUOTAROOT":null,"UNIQUEID":"5f1c"}`,
		string(got))
}

func TestMarshalCanonicalOrderIndependent(t *testing.T) {
	a := NewKVList("M", NewAtom("B", "2"), NewAtom("A", "1"))
	b := NewKVList("M", NewAtom("A", "1"), NewAtom("B", "2"))

	ja, err := MarshalCanonical(a)
	require.NoError(t, err)
	jb, err := MarshalCanonical(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestMarshalCanonicalBinary(t *testing.T) {
	got, err := MarshalCanonical(NewLiteral("", []byte{0xff, 0xfe}))
	require.NoError(t, err)
	assert.Equal(t, `{"base64":"//4="}`, string(got))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute normalizes to a single code point
	got, err := MarshalCanonical(NewString("", "cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(got))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	got, err := MarshalCanonical(NewString("", "a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	got, err = MarshalCanonical(NewString("", `a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestIdentity(t *testing.T) {
	a, err := Identity(NewAtom("UNMAILBOX", "user.anne"))
	require.NoError(t, err)
	b, err := Identity(NewAtom("UNMAILBOX", "user.anne"))
	require.NoError(t, err)
	c, err := Identity(NewAtom("UNMAILBOX", "user.bob"))
	require.NoError(t, err)
	d, err := Identity(NewAtom("RENAME", "user.anne"))
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d, "name is part of the identity")
}
