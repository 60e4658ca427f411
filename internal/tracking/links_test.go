package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("secret")
	data, sig := s.Encode("client-1", "camp-1", "a@example.com", "https://example.com/x?a=1|b")

	parts, err := s.Decode(data, sig, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1", "camp-1", "a@example.com", "https://example.com/x?a=1|b"}, parts)
}

func TestSigner_RejectsTampering(t *testing.T) {
	s := NewSigner("secret")
	data, sig := s.Encode("client-1", "camp-1", "a@example.com")

	_, err := s.Decode(data, sig+"x", 3)
	assert.ErrorIs(t, err, ErrBadLink)

	other, _ := s.Encode("client-1", "camp-2", "a@example.com")
	_, err = s.Decode(other, sig, 3)
	assert.ErrorIs(t, err, ErrBadLink)

	_, err = NewSigner("other").Decode(data, sig, 3)
	assert.ErrorIs(t, err, ErrBadLink)
}

func TestSigner_TooFewFields(t *testing.T) {
	s := NewSigner("secret")
	data, sig := s.Encode("client-1", "camp-1", "a@example.com")
	_, err := s.Decode(data, sig, 4)
	assert.ErrorIs(t, err, ErrBadLink)
}

func TestSigner_Unsigned(t *testing.T) {
	s := NewSigner("")
	data, sig := s.Encode("c", "camp", "a@example.com")
	assert.Equal(t, "-", sig)

	parts, err := s.Decode(data, "anything", 3)
	require.NoError(t, err)
	assert.Equal(t, "camp", parts[1])

	_, err = s.Decode("%%%", "-", 3)
	assert.ErrorIs(t, err, ErrBadLink)
}

func TestSigner_LinkURL(t *testing.T) {
	s := NewSigner("k")
	data, sig := s.Encode("c", "camp", "a@example.com")
	assert.Equal(t, "https://t.example.com/track/open/"+data+"/"+sig,
		s.LinkURL("https://t.example.com/", "open", "c", "camp", "a@example.com"))
}
