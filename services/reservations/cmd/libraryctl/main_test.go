package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/library-reservations/pkg/auth"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCreate(t *testing.T) {
	out, err := run(t, `{"bookId":"b-1","pickupDate":"2025-03-12","returnDate":"2025-03-20"}`,
		"validate", "create", "--now", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	out, err = run(t, `{"bookId":"b-1","pickupDate":"2025-03-10","returnDate":"2025-03-09"}`,
		"validate", "create", "--now", "2025-03-10")
	assert.ErrorIs(t, err, errInvalid)
	assert.Equal(t,
		"pickupDate: Pickup date must be at least 1 day from now\n"+
			"returnDate: Return date must be after pickup date\n", out)
}

func TestValidateCreate_PolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_pickup_days: 0\n"), 0o644))

	out, err := run(t, `{"bookId":"b-1","pickupDate":"2025-03-10","returnDate":"2025-03-15"}`,
		"validate", "create", "--now", "2025-03-10", "--policy", path)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = run(t, `{}`, "validate", "create", "--policy", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errInvalid)
}

func TestValidateUpdate_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"status":"completed"}`), 0o644))

	out, err := run(t, "", "validate", "update", "-f", path)
	assert.ErrorIs(t, err, errInvalid)
	assert.Contains(t, out, "status: Return date is required to complete a reservation")
}

func TestWaitlistEstimate(t *testing.T) {
	out, err := run(t, "", "waitlist", "estimate", "--now", "2025-03-10", "--position", "3", "--avg-days", "7")
	require.NoError(t, err)
	assert.Equal(t, "position 3: about 21 days, around 2025-03-31T00:00:00.000Z\n", out)

	_, err = run(t, "", "waitlist", "estimate", "--position", "0")
	assert.Error(t, err)
}

func TestRecurrenceExpand(t *testing.T) {
	out, err := run(t, "", "recurrence", "expand",
		"--pickup", "2025-03-12", "--return", "2025-03-19", "--pattern", "weekly", "--end", "2025-03-26")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "3\t2025-03-26T00:00:00.000Z\t2025-04-02T00:00:00.000Z", lines[2])

	_, err = run(t, "", "recurrence", "expand",
		"--pickup", "2025-03-12", "--return", "2025-03-19", "--pattern", "daily", "--end", "2025-03-26")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := run(t, "", "token", "--user", "m-1", "--role", auth.RoleLibrarian, "--secret", "s3cret")
	require.NoError(t, err)

	claims, err := auth.Parse(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "m-1", claims.UserID())
	assert.True(t, claims.IsLibrarian())
}

func TestReservationsList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/reservations", r.URL.Path)
		assert.Equal(t, "overdue", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":"r-1","status":"overdue"}],"meta":{"total":1,"waitlisted":0,"overdue":1}}`))
	}))
	defer srv.Close()

	out, err := run(t, "", "reservations", "list", "--api", srv.URL+"/v1", "--token", "tok", "--status", "overdue")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "r-1"`)
	assert.Contains(t, out, `"overdue": 1`)
}
