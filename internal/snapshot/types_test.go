package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testSaveID  = "018f3b1a-7e44-7cc1-9f6e-0242ac120002"
	testSpaceID = "018f3b1a-7e44-7cc1-9f6e-0242ac120003"
)

func TestJobValidate(t *testing.T) {
	t.Parallel()

	valid := Job{SaveID: testSaveID, SpaceID: testSpaceID, URL: "https://example.com/a", Attempt: 1}
	require.NoError(t, valid.Validate(3))

	cases := map[string]Job{
		"bad save id":    {SaveID: "nope", SpaceID: testSpaceID, URL: "https://example.com", Attempt: 1},
		"bad space id":   {SaveID: testSaveID, SpaceID: "nope", URL: "https://example.com", Attempt: 1},
		"relative url":   {SaveID: testSaveID, SpaceID: testSpaceID, URL: "/a/b", Attempt: 1},
		"ftp url":        {SaveID: testSaveID, SpaceID: testSpaceID, URL: "ftp://example.com", Attempt: 1},
		"attempt zero":   {SaveID: testSaveID, SpaceID: testSpaceID, URL: "https://example.com", Attempt: 0},
		"attempt beyond": {SaveID: testSaveID, SpaceID: testSpaceID, URL: "https://example.com", Attempt: 4},
	}
	for name, job := range cases {
		require.Error(t, job.Validate(3), name)
	}
}

func TestJobDomain(t *testing.T) {
	t.Parallel()

	job := Job{URL: "https://News.Example.com:8443/story/1"}
	domain, err := job.Domain()
	require.NoError(t, err)
	require.Equal(t, "news.example.com", domain)
}

func TestReasonClassification(t *testing.T) {
	t.Parallel()

	for _, r := range []Reason{ReasonTimeout, ReasonFetchError, ReasonStorageError} {
		require.True(t, r.Retriable(), r)
	}
	for _, r := range []Reason{
		ReasonNoArchive, ReasonForbidden, ReasonNotHTML, ReasonTooLarge,
		ReasonInvalidURL, ReasonParseFailed, ReasonSSRFBlocked,
	} {
		require.False(t, r.Retriable(), r)
	}

	require.Equal(t, StatusBlocked, ReasonNoArchive.TerminalStatus())
	require.Equal(t, StatusFailed, ReasonForbidden.TerminalStatus())
	require.Equal(t, StatusFailed, ReasonFetchError.TerminalStatus())
}
