package sdk_test

import (
	"fmt"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/celerix-dev/celerix-pond/internal/server"
	"github.com/celerix-dev/celerix-pond/pkg/engine"
	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

// MockStore implements CelerixStore for testing SDK helpers.
type MockStore struct {
	data map[string]any
}

func (m *MockStore) Get(personaID, appID, key string) (any, error) {
	return m.data[key], nil
}
func (m *MockStore) Set(personaID, appID, key string, val any) error {
	m.data[key] = val
	return nil
}
func (m *MockStore) Delete(personaID, appID, key string) error  { return nil }
func (m *MockStore) GetPersonas() ([]string, error)             { return nil, nil }
func (m *MockStore) GetApps(personaID string) ([]string, error) { return nil, nil }
func (m *MockStore) GetAppStore(personaID, appID string) (map[string]any, error) {
	return nil, nil
}
func (m *MockStore) DumpApp(appID string) (map[string]map[string]any, error) { return nil, nil }
func (m *MockStore) GetGlobal(appID, key string) (any, string, error)        { return nil, "", nil }
func (m *MockStore) Move(srcPersona, dstPersona, appID, key string) error    { return nil }

func TestGenericGetSet(t *testing.T) {
	ms := &MockStore{data: make(map[string]any)}

	type User struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	user := User{Name: "Alice", Age: 30}

	// Test Generic Set
	err := sdk.Set(ms, "p1", "a1", "user1", user)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Test Generic Get
	gotUser, err := sdk.Get[User](ms, "p1", "a1", "user1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if gotUser.Name != user.Name || gotUser.Age != user.Age {
		t.Errorf("Expected %v, got %v", user, gotUser)
	}
}

func TestGenericGetWithJsonConversion(t *testing.T) {
	// Simulate data coming from JSON (where it's map[string]any)
	ms := &MockStore{data: map[string]any{
		"user1": map[string]any{
			"name": "Bob",
			"age":  float64(25), // JSON unmarshals numbers as float64
		},
	}}

	type User struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	gotUser, err := sdk.Get[User](ms, "p1", "a1", "user1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if gotUser.Name != "Bob" || gotUser.Age != 25 {
		t.Errorf("Expected Bob/25, got %v", gotUser)
	}
}

func TestClient_Integration(t *testing.T) {
	// Start a real server on a random port
	store := engine.NewMemStore(nil, nil)
	router := server.NewRouter(store)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	port := fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port)
	addr := "127.0.0.1:" + port

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go router.HandleConnection(conn)
		}
	}()
	defer listener.Close()

	client, err := sdk.Connect(addr, false)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	// Test basic operations
	err = client.Set("p1", "a1", "k1", "v1")
	if err != nil {
		t.Fatalf("Client Set failed: %v", err)
	}

	val, err := client.Get("p1", "a1", "k1")
	if err != nil || val != "v1" {
		t.Errorf("Client Get failed: %v, %v", val, err)
	}

	// Test App Scope
	app := client.App("p1", "a1")
	err = app.Set("k2", "v2")
	if err != nil {
		t.Fatalf("App Set failed: %v", err)
	}

	val, _ = app.Get("k2")
	if val != "v2" {
		t.Errorf("App Get failed: %v", val)
	}

	// Test Vault Scope
	masterKey := []byte("thisis32byteslongsecretkey123456")
	vault := app.Vault(masterKey).(interface {
		Set(key string, plaintext string) error
		Get(key string) (string, error)
	})

	err = vault.Set("secret", "mypassword")
	if err != nil {
		t.Fatalf("Vault Set failed: %v", err)
	}

	got, err := vault.Get("secret")
	if err != nil || got != "mypassword" {
		t.Errorf("Vault Get failed: %v, %v", got, err)
	}
}

func TestClient_RetryLogic(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	router := server.NewRouter(store)

	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := listener.Addr().String()

	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			go router.HandleConnection(conn)
		}
	}()

	client, err := sdk.Connect(addr, false)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	// Close the listener so NO MORE connections can be accepted
	listener.Close()

	// The accepted connection may still serve; later calls must fail cleanly.
	client.Set("p1", "a1", "k1", "v1")
	client.Get("p1", "a1", "k1")
	client.Close()
}

func startPlainServer(t *testing.T, store *engine.MemStore) string {
	t.Helper()
	router := server.NewRouter(store)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go router.HandleConnection(conn)
		}
	}()
	return listener.Addr().String()
}

func TestClient_RemoteErrorsMapToSentinels(t *testing.T) {
	store := engine.NewMemStore(nil, nil, engine.WithQuota(16))
	client, err := sdk.Connect(startPlainServer(t, store), false)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if _, err := client.Get("p1", "a1", "missing"); !errors.Is(err, sdk.ErrPersonaNotFound) {
		t.Errorf("Expected ErrPersonaNotFound, got %v", err)
	}

	err = client.Set("p1", "pond", "timestamp1", strings.Repeat("x", 64))
	if !errors.Is(err, sdk.ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}
}

func TestClient_PreservesWhitespaceInValues(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	client, err := sdk.Connect(startPlainServer(t, store), false)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	payload := "<xml>\n  <block   type=\"pond_scan\"/>\n</xml>"
	if err := client.Set("p1", "pond", "timestamp1", payload); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := client.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	got, err := client.Get("p1", "pond", "timestamp1")
	if err != nil || got != payload {
		t.Errorf("Expected %q, got %q, %v", payload, got, err)
	}
}

func TestScope_OverEmbeddedStore(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	app := sdk.Scope(store, "learner", "pond")

	if err := app.Set("currentIndex", "1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if val, _ := store.Get("learner", "pond", "currentIndex"); val != "1" {
		t.Errorf("Expected scope write to land in learner/pond, got %v", val)
	}

	v := app.Vault([]byte("thisis32byteslongsecretkey123456")).(sdk.VaultScope)
	if err := v.Set("timestamp1", "secret"); err != nil {
		t.Fatalf("Vault Set failed: %v", err)
	}
	got, err := v.Get("timestamp1")
	if err != nil || got != "secret" {
		t.Errorf("Expected secret, got %v, %v", got, err)
	}
}

func TestNew_EmbeddedFallback(t *testing.T) {
	store, err := sdk.New(sdk.Options{
		RemoteAddr: "127.0.0.1:1",
		DataDir:    t.TempDir(),
		Backend:    "sqlite",
		QuotaBytes: 1024,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sdk.Close(store)

	if _, ok := store.(*engine.MemStore); !ok {
		t.Fatalf("Expected embedded *engine.MemStore, got %T", store)
	}
	if err := store.Set("p1", "pond", "k", "v"); err != nil {
		t.Errorf("Set failed: %v", err)
	}
}
