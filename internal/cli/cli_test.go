package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-rag-backend/internal/app"
	"github.com/tbourn/go-rag-backend/internal/config"
)

// setEnv points the configuration at a throwaway database.
func setEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	for k, v := range map[string]string{
		"CONFIG_FILE":        "",
		"DB_PATH":            dbPath,
		"INDEX_BACKEND":      "memory",
		"EMBEDDING_PROVIDER": "hashing",
		"LLM_DEFAULT_MODEL":  "llama3.1",
		"OPENAI_API_KEY":     "",
		"AUTH_BCRYPT_COST":   "4",
		"INGEST_MODE":        "direct",
		"ADMIN_USER_IDS":     "",
		"LOG_LEVEL":          "error",
	} {
		t.Setenv(k, v)
	}
	return dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newUser(t *testing.T, email string) string {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := app.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	u, err := a.Auth.Register(context.Background(), email, "correct horse battery")
	require.NoError(t, err)
	return u.ID
}

func TestVersionCmd(t *testing.T) {
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, err := run(t, "version")

	assert.NoError(t, err)
	assert.Contains(t, out, "ragd version test-version-1.0.0")
}

func TestMigrateCmd_CreatesSchema(t *testing.T) {
	dbPath := setEnv(t)

	out, err := run(t, "migrate")

	require.NoError(t, err)
	assert.Contains(t, out, "Schema up to date")
	_, statErr := os.Stat(dbPath)
	assert.NoError(t, statErr)
}

func TestIngestCmd_UploadsFilesAndReportsFailures(t *testing.T) {
	setEnv(t)
	uid := newUser(t, "ada@example.com")

	dir := t.TempDir()
	good := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(good, []byte("Paris is the capital of France."), 0o600))
	bad := filepath.Join(dir, "tool.exe")
	require.NoError(t, os.WriteFile(bad, []byte("MZ"), 0o600))

	out, err := run(t, "ingest", "--user", uid, good, bad)

	assert.Error(t, err)
	assert.Contains(t, out, "notes.txt (1 chunks)")
	assert.Contains(t, out, "failed      "+bad)
}

func TestIngestCmd_RequiresUser(t *testing.T) {
	setEnv(t)
	ingestUser = ""
	ingestCmd.Flags().Lookup("user").Changed = false

	_, err := run(t, "ingest", "whatever.txt")

	assert.Error(t, err)
}

func TestClearCmd(t *testing.T) {
	setEnv(t)
	uid := newUser(t, "root@example.com")
	defer func() { clearYes = false }()

	out, err := run(t, "clear", "--user", uid)
	require.NoError(t, err)
	assert.Contains(t, out, "Refusing")

	_, err = run(t, "clear", "--user", uid, "--yes")
	assert.Error(t, err, "caller is not on the admin list")

	t.Setenv("ADMIN_USER_IDS", uid)
	out, err = run(t, "clear", "--user", uid, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
}
