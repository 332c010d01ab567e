package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KiritoRJ/assistenciatecnica/internal/cache"
	"github.com/KiritoRJ/assistenciatecnica/internal/config"
	"github.com/KiritoRJ/assistenciatecnica/internal/httpapi"
	"github.com/KiritoRJ/assistenciatecnica/internal/service"
	"github.com/KiritoRJ/assistenciatecnica/internal/store/memory"
	"github.com/KiritoRJ/assistenciatecnica/internal/tenant"
)

const operatorSecret = "operator-secret-1"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")

	superHash, err := tenant.HashPassword(operatorSecret)
	require.NoError(t, err)

	repo := memory.NewSeeded()
	dir := tenant.NewDirectory(repo, "wandev", superHash)
	svc := service.New(repo, dir, cache.NoopBucketCache{}, time.Minute)
	api := httpapi.New(svc, dir, httpapi.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour), "*")

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, serverURL string) config.ClientConfig {
	t.Helper()
	return config.ClientConfig{
		RemoteURL:      serverURL,
		LocalDBPath:    filepath.Join(t.TempDir(), "assist.db"),
		Username:       "loja1",
		Password:       "admin123",
		SellerName:     "Balcão",
		RequestTimeout: 5 * time.Second,
		DrainInterval:  time.Second,
		BackoffMin:     time.Second,
		BackoffMax:     5 * time.Second,
		LogLevel:       "error",
	}
}

// run executes the CLI and returns stdout and the command error.
func run(t *testing.T, cfg config.ClientConfig, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(cfg)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, cfg config.ClientConfig, args ...string) map[string]any {
	t.Helper()
	out, err := run(t, cfg, append([]string{"--format", "json"}, args...)...)
	require.NoError(t, err, out)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestStatusFirstLoginHasDefaultSettings(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	data := runJSON(t, cfg, "status")

	assert.Equal(t, "loja1", data["tenantId"])
	settings := data["settings"].(map[string]any)
	assert.Equal(t, true, settings["isConfigured"])
	assert.Equal(t, float64(0), settings["users"])
	syncState := data["sync"].(map[string]any)
	assert.Equal(t, float64(0), syncState["pending"])
}

func TestSellScenarioSyncsToAnotherDevice(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	runJSON(t, cfg, "stock", "add", "--id", "A", "--name", "Tela", "--cost", "10", "--price", "15", "--qty", "2")

	_, err := run(t, cfg, "sell", "--item", "A:3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "insufficient stock")

	receipt := runJSON(t, cfg, "sell", "--item", "A:2", "--method", "Dinheiro", "--received", "50")
	assert.Equal(t, float64(30), receipt["total"])
	assert.Equal(t, float64(20), receipt["changeDue"])
	assert.Equal(t, "Balcão", receipt["sellerName"])
	assert.Len(t, receipt["transactionId"], 6)

	// A second device starts from an empty local store and pulls the result.
	other := cfg
	other.LocalDBPath = filepath.Join(t.TempDir(), "other.db")
	stock := runJSON(t, other, "stock", "list")
	products := stock["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, float64(0), products[0].(map[string]any)["quantity"])

	sales := runJSON(t, other, "sales", "list", "--period", "all")
	require.Len(t, sales["sales"].([]any), 1)
}

func TestCancelSaleRequiresAdminPassword(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	runJSON(t, cfg, "stock", "add", "--id", "B", "--name", "Bateria", "--cost", "20", "--price", "35", "--qty", "5")
	receipt := runJSON(t, cfg, "sell", "--item", "B", "--method", "PIX")
	saleID := receipt["sales"].([]any)[0].(map[string]any)["id"].(string)

	_, err := run(t, cfg, "sales", "cancel", saleID, "--admin-password", "wrong")
	require.Error(t, err)
	assert.Equal(t, ExitAuth, GetExitCode(err))

	runJSON(t, cfg, "sales", "cancel", saleID, "--admin-password", "admin123")
	stock := runJSON(t, cfg, "stock", "list")
	products := stock["products"].([]any)
	assert.Equal(t, float64(5), products[0].(map[string]any)["quantity"])
}

func TestOrdersAndFinance(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	order := runJSON(t, cfg, "orders", "add", "--customer", "Maria", "--parts", "40", "--service", "100",
		"--finished-photo", "a.jpg", "--finished-photo", "b.jpg")
	id := order["id"].(string)
	runJSON(t, cfg, "orders", "status", id, "Entregue")
	runJSON(t, cfg, "finance", "add", "--type", "saida", "--description", "Aluguel", "--amount", "30")

	summary := runJSON(t, cfg, "finance", "summary")
	assert.Equal(t, float64(100), summary["serviceRevenue"])
	assert.Equal(t, float64(70), summary["netProfit"])

	_, err := run(t, cfg, "orders", "status", id, "Cancelado")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestTenantsRequireOperator(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	_, err := run(t, cfg, "tenants", "list")
	require.Error(t, err)
	assert.Equal(t, ExitAuth, GetExitCode(err))

	operator := cfg
	operator.Username = "wandev"
	operator.Password = operatorSecret

	created := runJSON(t, operator, "tenants", "create", "--store", "Loja Dois", "--admin-username", "loja2", "--admin-password", "segredo-2")
	assert.Equal(t, "Loja Dois", created["storeName"])

	list := runJSON(t, operator, "tenants", "list")
	assert.Len(t, list["tenants"].([]any), 2)

	_, err = run(t, operator, "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBadCredentialsAndUnreachableRemote(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)
	cfg.Password = "wrong-pass"

	_, err := run(t, cfg, "status")
	require.Error(t, err)
	assert.Equal(t, ExitAuth, GetExitCode(err))

	offline := testConfig(t, "http://127.0.0.1:1")
	offline.RequestTimeout = time.Second
	_, err = run(t, offline, "status")
	require.Error(t, err)
	assert.Equal(t, ExitUnreachable, GetExitCode(err))
}

func TestOutputFormats(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	_, err := run(t, cfg, "--format", "xml", "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := run(t, cfg, "--format", "yaml", "finance", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "status: ok")
	assert.Contains(t, out, "netProfit: 0")

	runJSON(t, cfg, "stock", "add", "--name", "Cabo", "--cost", "1000", "--price", "1234.5", "--qty", "1")
	out, err = run(t, cfg, "stock", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "R$ 1.234,50")
	assert.True(t, strings.HasPrefix(out, "ID"), out)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCommand(config.ClientConfig{RemoteURL: "http://example.test", LocalDBPath: "x.db"})

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
	assert.Equal(t, "http://example.test", cmd.PersistentFlags().Lookup("remote").DefValue)

	sellCmd, _, err := cmd.Find([]string{"sell"})
	require.NoError(t, err)
	assert.Equal(t, "Dinheiro", sellCmd.Flags().Lookup("method").DefValue)
}

func TestParseItems(t *testing.T) {
	items, err := parseItems([]string{"A", "B:3"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].quantity)
	assert.Equal(t, 3, items[1].quantity)

	_, err = parseItems([]string{"A:0"})
	require.Error(t, err)
	_, err = parseItems([]string{":2"})
	require.Error(t, err)
}

func TestSettingsAndUsersCommands(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	_, err := run(t, cfg, "settings", "set")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	updated := runJSON(t, cfg, "settings", "set", "--store", "Assistência Central", "--paper-width", "58")
	assert.Equal(t, "Assistência Central", updated["storeName"])
	assert.Equal(t, float64(58), updated["pdfPaperWidth"])
	assert.Equal(t, float64(8), updated["pdfFontSize"])

	_, err = run(t, cfg, "settings", "set", "--paper-width", "72")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	ana := runJSON(t, cfg, "users", "add", "--name", "Ana", "--role", "tecnico")
	assert.Equal(t, "tecnico", ana["role"])
	runJSON(t, cfg, "users", "add", "--name", "Bruno")

	_, err = run(t, cfg, "users", "add", "--name", "Carla", "--role", "admin")
	require.Error(t, err)

	runJSON(t, cfg, "users", "remove", ana["id"].(string))

	// A fresh device sees the pushed settings.
	other := cfg
	other.LocalDBPath = filepath.Join(t.TempDir(), "other.db")
	shown := runJSON(t, other, "settings", "show")
	assert.Equal(t, "Assistência Central", shown["storeName"])
	users := shown["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "Bruno", users[0].(map[string]any)["name"])
}

func TestSyncWatchStopsAfterDuration(t *testing.T) {
	server := newTestServer(t)
	cfg := testConfig(t, server.URL)

	runJSON(t, cfg, "stock", "add", "--name", "Cabo", "--cost", "1", "--price", "5", "--qty", "1")
	result := runJSON(t, cfg, "sync", "watch", "--for", "150ms", "--interval", "20ms")

	assert.NotEmpty(t, result["ran"])
	syncState := result["sync"].(map[string]any)
	assert.Equal(t, float64(0), syncState["pending"])
}
