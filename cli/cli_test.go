package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/cli"
	"github.com/jrsteele09/go-auth-console/internal/backendfake"
	cerrors "github.com/jrsteele09/go-auth-console/internal/errors"
)

type cliFixture struct {
	backend   *backendfake.Backend
	url       string
	tokenFile string

	mu  sync.Mutex
	now time.Time

	root   authapi.UserProfile
	tenant authapi.UserProfile
	member authapi.UserProfile
}

func (f *cliFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *cliFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func setupCLI(t *testing.T) *cliFixture {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	f := &cliFixture{now: time.Now(), tokenFile: filepath.Join(t.TempDir(), "tokens.json")}
	f.backend = backendfake.New(backendfake.WithClock(f.clock), backendfake.WithRefreshTTL(time.Hour))
	f.url = f.backend.Start()
	t.Cleanup(f.backend.Close)

	f.root = f.backend.AddUser(authapi.UserProfile{
		Username: "root", Email: "root@example.com", IsActive: true, IsSuperuser: true, CompanyID: backendfake.RootCompanyID,
	}, "root-pass1")
	f.tenant = f.backend.AddUser(authapi.UserProfile{
		Username: "tenant", Email: "tenant@example.com", IsActive: true, IsSuperuser: true, CompanyID: 2,
	}, "tenant-pass1")
	f.member = f.backend.AddUser(authapi.UserProfile{
		Username: "member", Email: "member@example.com", FullName: "Mia Member", IsActive: true, CompanyID: 2,
	}, "member-pass1")
	return f
}

type result struct {
	stdout string
	stderr string
	err    error
}

func (f *cliFixture) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	cmd := cli.NewRootCommand()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api-url", f.url, "--token-file", f.tokenFile, "--no-color"}, args...))
	err := cmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func (f *cliFixture) login(t *testing.T, username, password string) {
	t.Helper()
	res := f.run(t, "", "login", "-u", username, "-p", password)
	require.NoError(t, res.err)
}

func TestLogin(t *testing.T) {
	t.Run("stores tokens for later runs", func(t *testing.T) {
		f := setupCLI(t)
		res := f.run(t, "", "login", "-u", "member", "-p", "member-pass1")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Signed in as Mia Member")
		require.FileExists(t, f.tokenFile)

		res = f.run(t, "", "whoami")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "member@example.com")
		require.Contains(t, res.stdout, "member")
		require.Equal(t, 1, f.backend.Calls("POST /auth/login"))
	})

	t.Run("prompts for the password", func(t *testing.T) {
		f := setupCLI(t)
		res := f.run(t, "root-pass1\n", "login", "-u", "root")
		require.NoError(t, res.err)
		require.Contains(t, res.stderr, "Password: ")
		require.Contains(t, res.stdout, "Signed in as root")
	})

	t.Run("bad credentials leave nothing stored", func(t *testing.T) {
		f := setupCLI(t)
		res := f.run(t, "", "login", "-u", "member", "-p", "nope")
		require.EqualError(t, res.err, "Incorrect username or password")

		res = f.run(t, "", "whoami")
		require.ErrorIs(t, res.err, cerrors.ErrNotAuthenticated)
	})

	t.Run("username is required", func(t *testing.T) {
		f := setupCLI(t)
		res := f.run(t, "", "login", "-p", "x")
		require.Error(t, res.err)
		require.Zero(t, f.backend.Calls("POST /auth/login"))
	})
}

func TestLogout(t *testing.T) {
	f := setupCLI(t)
	f.login(t, "member", "member-pass1")
	require.Equal(t, 1, f.backend.SessionCount())

	res := f.run(t, "", "logout")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "Signed out.")
	require.Zero(t, f.backend.SessionCount())

	res = f.run(t, "", "logout")
	require.NoError(t, res.err)
	require.Contains(t, res.stderr, "Not signed in.")
}

func TestWhoamiRoles(t *testing.T) {
	tests := []struct {
		username string
		password string
		role     string
	}{
		{"root", "root-pass1", "root administrator"},
		{"tenant", "tenant-pass1", "administrator"},
		{"member", "member-pass1", "member"},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			f := setupCLI(t)
			f.login(t, tt.username, tt.password)
			res := f.run(t, "", "whoami")
			require.NoError(t, res.err)
			require.Regexp(t, `Role:\s+`+tt.role+`\n`, res.stdout)
		})
	}
}

func TestAdminCommandsAreGuarded(t *testing.T) {
	f := setupCLI(t)
	f.backend.Seed(authapi.PathCompanies, map[string]any{"name": "Acme", "domain": "acme.test", "is_active": true})

	t.Run("member", func(t *testing.T) {
		f.login(t, "member", "member-pass1")
		for _, args := range [][]string{{"users"}, {"companies"}, {"stats"}, {"sessions", "--all"}} {
			res := f.run(t, "", args...)
			require.ErrorIs(t, res.err, cerrors.ErrForbidden, args)
		}
		require.Zero(t, f.backend.Calls("GET /users"))
	})

	t.Run("tenant administrator", func(t *testing.T) {
		f.login(t, "tenant", "tenant-pass1")
		res := f.run(t, "", "users")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "member@example.com")

		res = f.run(t, "", "companies")
		require.ErrorIs(t, res.err, cerrors.ErrForbidden)

		res = f.run(t, "", "stats")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Active sessions:")
	})

	t.Run("root administrator", func(t *testing.T) {
		f.login(t, "root", "root-pass1")
		res := f.run(t, "", "companies")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Acme")
		require.Contains(t, res.stdout, "acme.test")
	})
}

func TestSessions(t *testing.T) {
	f := setupCLI(t)
	f.login(t, "member", "member-pass1")
	_, err := f.backend.IssueTokens(f.member.ID)
	require.NoError(t, err)

	res := f.run(t, "", "sessions")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "(this session)")

	var other string
	for _, line := range strings.Split(res.stdout, "\n") {
		if strings.Contains(line, "backendfake") {
			other = strings.Fields(line)[0]
		}
	}
	require.NotEmpty(t, other)

	res = f.run(t, "", "sessions", "revoke", other)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "Session "+other+" revoked.")
	require.Equal(t, 1, f.backend.SessionCount())

	res = f.run(t, "", "sessions", "revoke", "abc")
	require.EqualError(t, res.err, `invalid session id "abc"`)
}

func TestStoredSessionRefreshes(t *testing.T) {
	f := setupCLI(t)
	f.login(t, "member", "member-pass1")
	before, err := os.ReadFile(f.tokenFile)
	require.NoError(t, err)

	f.advance(backendfake.DefaultAccessTTL + time.Minute)
	res := f.run(t, "", "whoami")
	require.NoError(t, res.err)
	require.Equal(t, 1, f.backend.Calls("POST /auth/refresh"))

	after, err := os.ReadFile(f.tokenFile)
	require.NoError(t, err)
	require.NotEqual(t, string(before), string(after))

	f.advance(2 * time.Hour)
	res = f.run(t, "", "whoami")
	require.ErrorIs(t, res.err, cerrors.ErrNotAuthenticated)
}

func TestConfigFile(t *testing.T) {
	f := setupCLI(t)
	cfgFile := filepath.Join(t.TempDir(), "consolectl.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("api:\n  url: "+f.url+"\ntoken_file: "+f.tokenFile+"\n"), 0o600))

	cmd := cli.NewRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config", cfgFile, "login", "-u", "member", "-p", "member-pass1"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "Signed in as Mia Member")

	cmd = cli.NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "whoami"})
	require.ErrorContains(t, cmd.Execute(), "reading config")
}
