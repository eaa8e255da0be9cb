package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnouncementDraftValidation(t *testing.T) {
	ok := AnnouncementDraft{Title: "Exams", Body: "Next week", Grades: []int{9, 12}}
	require.NoError(t, Validate(ok))

	cases := map[string]AnnouncementDraft{
		"empty title": {Body: "b", Grades: []int{9}},
		"long title":  {Title: strings.Repeat("t", 76), Body: "b", Grades: []int{9}},
		"long body":   {Title: "t", Body: strings.Repeat("b", 751), Grades: []int{9}},
		"no grades":   {Title: "t", Body: "b"},
		"grade range": {Title: "t", Body: "b", Grades: []int{8}},
		"bad url":     {Title: "t", Body: "b", Grades: []int{9}, Attachments: "not a url"},
	}
	for name, draft := range cases {
		err := Validate(draft)
		require.Error(t, err, name)
		require.True(t, errors.Is(err, ErrInvalidInput), name)
	}
}

func TestValidateMessage(t *testing.T) {
	require.NoError(t, ValidateMessage(MessageInput{Kind: MessageKindText, Content: "hello"}))
	require.NoError(t, ValidateMessage(MessageInput{Kind: MessageKindPhoto, Content: "https://cdn.example.com/a.jpg"}))
	require.NoError(t, ValidateMessage(MessageInput{Kind: MessageKindLocation, Content: "37.33, -122.03"}))
	require.NoError(t, ValidateMessage(MessageInput{Kind: MessageKindEmoji}))

	require.ErrorIs(t, ValidateMessage(MessageInput{Kind: MessageKindText, Content: "  "}), ErrInvalidInput)
	require.ErrorIs(t, ValidateMessage(MessageInput{Kind: MessageKindVideo, Content: "clip.mov"}), ErrInvalidInput)
	require.ErrorIs(t, ValidateMessage(MessageInput{Kind: MessageKindLocation, Content: "north"}), ErrInvalidInput)
	require.ErrorIs(t, ValidateMessage(MessageInput{Kind: "sticker", Content: "x"}), ErrInvalidInput)
	require.ErrorIs(t, ValidateMessage(MessageInput{Content: "x"}), ErrInvalidInput)
	require.ErrorIs(t, ValidateMessage(MessageInput{ID: "m1/messages/0", Kind: MessageKindText, Content: "x"}), ErrInvalidInput)
	require.ErrorIs(t, ValidateMessage(MessageInput{ID: " ", Kind: MessageKindText, Content: "x"}), ErrInvalidInput)
}

func TestSessionLatch(t *testing.T) {
	s := NewSession("a@b.com")
	_, ok := s.Token()
	require.False(t, ok)
	require.True(t, s.Provide("AAAA1111"))
	require.False(t, s.Provide("BBBB2222"))
	token, ok := s.Token()
	require.True(t, ok)
	require.Equal(t, "AAAA1111", token)
	s.End()
	require.False(t, s.Provided())
	require.True(t, s.Provide("CCCC3333"))
}

func TestProvideWithIssuesOnce(t *testing.T) {
	s := NewSession("a@b.com")
	calls := 0
	issue := func() (string, error) {
		calls++
		return "AAAA1111", nil
	}
	ok, err := s.ProvideWith(issue)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.ProvideWith(issue)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, calls)

	fresh := NewSession("a@b.com")
	ok, err = fresh.ProvideWith(func() (string, error) { return "", errors.New("store down") })
	require.Error(t, err)
	require.False(t, ok)
	require.False(t, fresh.Provided())
}

func TestFieldErrorsUseJSONNames(t *testing.T) {
	err := Validate(Registration{Email: "nope", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidInput)
	fields := FieldErrors(err)
	require.Equal(t, "email", fields["email"])
	require.Equal(t, "min", fields["password"])
	require.Equal(t, "required", fields["first_name"])
	require.Nil(t, FieldErrors(ErrInvalidInput))
}
