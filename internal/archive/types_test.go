package archive

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutcomeResolve(t *testing.T) {
	t.Parallel()

	final, err := url.Parse("https://example.com/final")
	require.NoError(t, err)

	tests := []struct {
		name      string
		outcome   Outcome
		wantValid bool
		wantOK    bool
	}{
		{name: "valid", outcome: Valid(final), wantValid: true, wantOK: true},
		{name: "redirected", outcome: Redirected(final), wantValid: true, wantOK: true},
		{name: "dead", outcome: Dead(final), wantValid: false, wantOK: true},
		{name: "failed", outcome: Failed(errors.New("boom")), wantValid: false, wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resolved, valid, ok := tc.outcome.Resolve()
			require.Equal(t, tc.wantValid, valid)
			require.Equal(t, tc.wantOK, ok)
			if ok {
				require.Equal(t, final, resolved)
			} else {
				require.Nil(t, resolved)
			}
		})
	}
}

func TestWebsiteIsStale(t *testing.T) {
	t.Parallel()

	w := Website{ID: "1", URL: "https://example.com", IsValid: true}
	require.False(t, w.IsStale(true))
	require.True(t, w.IsStale(false))
}

func TestReportAdd(t *testing.T) {
	t.Parallel()

	var r Report
	r.Add(JobResult{WebsiteID: "a", State: JobArchived})
	r.Add(JobResult{WebsiteID: "b", State: JobDead})
	r.Add(JobResult{WebsiteID: "c", State: JobFailed, Err: errors.New("x")})
	r.Add(JobResult{WebsiteID: "d", State: JobArchived})

	require.Equal(t, 2, r.Archived)
	require.Equal(t, 1, r.Dead)
	require.Equal(t, 1, r.Failed)
	require.Equal(t, 4, r.Total())
	require.Equal(t, "x", r.Results[2].Error())
	require.Empty(t, r.Results[0].Error())
}

func TestExitStatusSuccess(t *testing.T) {
	t.Parallel()

	require.True(t, ExitStatus{Code: 0}.Success())
	require.False(t, ExitStatus{Code: 1}.Success())
	require.False(t, ExitStatus{Code: 0, Killed: true}.Success())
	require.Equal(t, "redirected", StatusRedirected.String())
	require.Equal(t, "failed", StatusFailed.String())
}
