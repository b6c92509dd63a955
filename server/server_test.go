package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/db"
	"github.com/nickyhof/dbaccess/engine/sqlite"
	"github.com/nickyhof/dbaccess/journal"
	"github.com/nickyhof/dbaccess/protocol"
)

func setupTestAccess(t *testing.T, log *journal.Journal) *db.Access {
	conn, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	access := db.New(conn, db.Options{
		Journal:  log,
		Identity: core.Identity{Name: "test", Email: "test@test.com"},
	})
	t.Cleanup(func() { access.Close() })
	return access
}

func setupTestServer(t *testing.T) (*Server, func()) {
	server := NewServer(setupTestAccess(t, nil))
	if err := server.Start("127.0.0.1:0"); err != nil { // :0 picks a free port
		t.Fatalf("Failed to start server: %v", err)
	}

	return server, func() {
		server.Stop()
	}
}

// testClient keeps one connection open across requests.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialTestClient(t *testing.T, addr string) *testClient {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) protocol.Response {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("Failed to send %q: %v", line, err)
	}
	data, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("Failed to read response for %q: %v", line, err)
	}
	resp, err := protocol.DecodeResponse([]byte(data))
	if err != nil {
		c.t.Fatalf("Failed to parse response: %v", err)
	}
	return resp
}

func sendQuery(t *testing.T, addr, query string) protocol.Response {
	t.Helper()
	return dialTestClient(t, addr).send(query)
}

func decodeQuery(t *testing.T, resp protocol.Response) protocol.QueryResponse {
	t.Helper()
	if resp.Type != protocol.TypeQuery {
		t.Fatalf("Expected query type, got %q (%s)", resp.Type, resp.Error)
	}
	var qr protocol.QueryResponse
	if err := json.Unmarshal(resp.Result, &qr); err != nil {
		t.Fatalf("Failed to parse query result: %v", err)
	}
	return qr
}

func TestServerStartStop(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if server.Addr() == "" {
		t.Error("Expected non-empty address")
	}
	if server.TLSEnabled() {
		t.Error("Expected TLS to be disabled")
	}
}

func TestServerCreateInsertSelect(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()
	client := dialTestClient(t, server.Addr())

	resp := client.send("CREATE TABLE cat (id INTEGER PRIMARY KEY, name TEXT)")
	if !resp.Success {
		t.Fatalf("Failed to create table: %s", resp.Error)
	}
	if resp.Type != protocol.TypeExec {
		t.Errorf("Expected exec type, got: %s", resp.Type)
	}

	for _, query := range []string{
		"INSERT INTO cat (id, name) VALUES (1, 'Alice')",
		"INSERT INTO cat (id) VALUES (2)",
	} {
		if resp := client.send(query); !resp.Success {
			t.Fatalf("Failed to insert: %s", resp.Error)
		}
	}

	qr := decodeQuery(t, client.send("SELECT id, name FROM cat ORDER BY id"))
	if qr.RecordsRead != 2 {
		t.Fatalf("Expected 2 records, got %d", qr.RecordsRead)
	}
	if strings.Join(qr.Columns, ",") != "id,name" {
		t.Errorf("Unexpected columns %v", qr.Columns)
	}
	if qr.Data[0][1] == nil || *qr.Data[0][1] != "Alice" {
		t.Errorf("Expected Alice, got %v", qr.Data[0][1])
	}
	if qr.Data[1][1] != nil {
		t.Errorf("Expected NULL name, got %q", *qr.Data[1][1])
	}
}

func TestServerJSONRequest(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	request, err := protocol.EncodeRequest(protocol.Request{Query: "SELECT 'a\nb' AS text"})
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	resp := sendQuery(t, server.Addr(), strings.TrimSpace(string(request)))
	qr := decodeQuery(t, resp)
	if len(qr.Data) != 1 || *qr.Data[0][0] != "a\nb" {
		t.Errorf("Unexpected data %v", qr.Data)
	}
}

func TestServerBlob(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	qr := decodeQuery(t, sendQuery(t, server.Addr(), "SELECT X'00FF' AS data"))
	if qr.Types[0] != "BLOB" {
		t.Errorf("Expected BLOB type, got %q", qr.Types[0])
	}
	value, err := protocol.DecodeCell(qr.Data[0][0], qr.Types[0])
	if err != nil {
		t.Fatalf("Failed to decode cell: %v", err)
	}
	if data, ok := value.([]byte); !ok || len(data) != 2 || data[0] != 0x00 || data[1] != 0xff {
		t.Errorf("Expected bytes 00 ff, got %v", value)
	}
}

func TestServerError(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := sendQuery(t, server.Addr(), "SELECT * FROM nonexistent")
	if resp.Success {
		t.Error("Expected failure for non-existent table")
	}
	if !strings.Contains(resp.Error, "nonexistent") {
		t.Errorf("Expected engine error text, got: %s", resp.Error)
	}
}

func TestServerColonInStringLiteral(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	qr := decodeQuery(t, sendQuery(t, server.Addr(), "SELECT '10:30' AS at"))
	if len(qr.Data) != 1 || *qr.Data[0][0] != "10:30" {
		t.Errorf("Expected 10:30, got %v", qr.Data)
	}
}

func TestServerQuit(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()
	client := dialTestClient(t, server.Addr())

	if _, err := client.conn.Write([]byte("quit\n")); err != nil {
		t.Fatalf("Failed to send quit: %v", err)
	}
	client.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.reader.ReadString('\n'); err == nil {
		t.Error("Expected the server to close the connection")
	}
}

func TestServerConcurrentClients(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if resp := sendQuery(t, server.Addr(), "CREATE TABLE hit (client INTEGER, n INTEGER)"); !resp.Success {
		t.Fatalf("Failed to create table: %s", resp.Error)
	}

	var g errgroup.Group
	for client := 0; client < 4; client++ {
		g.Go(func() error {
			conn, err := net.DialTimeout("tcp", server.Addr(), 2*time.Second)
			if err != nil {
				return err
			}
			defer conn.Close()
			reader := bufio.NewReader(conn)
			for n := 0; n < 10; n++ {
				query := fmt.Sprintf("INSERT INTO hit VALUES (%d, %d)\n", client, n)
				if _, err := conn.Write([]byte(query)); err != nil {
					return err
				}
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				resp, err := protocol.DecodeResponse([]byte(line))
				if err != nil {
					return err
				}
				if !resp.Success {
					return fmt.Errorf("insert failed: %s", resp.Error)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent clients failed: %v", err)
	}

	qr := decodeQuery(t, sendQuery(t, server.Addr(), "SELECT COUNT(*) FROM hit"))
	if *qr.Data[0][0] != "40" {
		t.Errorf("Expected 40 rows, got %s", *qr.Data[0][0])
	}
}

// setupAuthTestServer creates a server with authentication enabled
func setupAuthTestServer(t *testing.T, authConfig *AuthConfig, log *journal.Journal) *Server {
	server := NewServerWithAuth(setupTestAccess(t, log), authConfig)
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

// createTestJWT creates a JWT token for testing
func createTestJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to create test JWT: %v", err)
	}
	return tokenString
}

func TestAuthRequired(t *testing.T) {
	server := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: "test-secret"}, nil)

	resp := sendQuery(t, server.Addr(), "SELECT 1")
	if resp.Success {
		t.Error("Expected failure when not authenticated")
	}
	if !strings.Contains(resp.Error, "authentication required") {
		t.Errorf("Expected 'authentication required' error, got: %s", resp.Error)
	}
}

func TestAuthWithValidJWT(t *testing.T) {
	secret := "test-secret"
	log, err := journal.NewMemory()
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	server := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: secret}, log)
	client := dialTestClient(t, server.Addr())

	token := createTestJWT(t, secret, jwt.MapClaims{"name": "Test User", "email": "test@example.com"})
	resp := client.send("AUTH JWT " + token)
	if !resp.Success {
		t.Fatalf("Auth failed: %s", resp.Error)
	}
	if resp.Type != protocol.TypeAuth {
		t.Errorf("Expected 'auth' type, got: %s", resp.Type)
	}

	var authResp protocol.AuthResponse
	if err := json.Unmarshal(resp.Result, &authResp); err != nil {
		t.Fatalf("Failed to parse auth result: %v", err)
	}
	if !authResp.Authenticated {
		t.Error("Expected authenticated to be true")
	}
	if authResp.Identity != "Test User <test@example.com>" {
		t.Errorf("Expected identity 'Test User <test@example.com>', got: %s", authResp.Identity)
	}
	if authResp.ExpiresIn <= 0 {
		t.Errorf("Expected positive expiry, got %d", authResp.ExpiresIn)
	}

	resp = client.send("CREATE TABLE authtest (id INTEGER)")
	if !resp.Success {
		t.Fatalf("Query after auth failed: %s", resp.Error)
	}

	latest, err := log.Latest()
	if err != nil {
		t.Fatalf("Failed to read journal: %v", err)
	}
	if latest.Author.Name != "Test User" || latest.Author.Email != "test@example.com" {
		t.Errorf("Expected journal author Test User, got %s", latest.Author)
	}
}

func TestAuthWithInvalidJWT(t *testing.T) {
	server := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: "test-secret", Issuer: "dbaccess"}, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", createTestJWT(t, "wrong-secret", jwt.MapClaims{"name": "Test", "iss": "dbaccess"})},
		{"wrong issuer", createTestJWT(t, "test-secret", jwt.MapClaims{"name": "Test", "iss": "other"})},
		{"no identity", createTestJWT(t, "test-secret", jwt.MapClaims{"iss": "dbaccess"})},
		{"expired", createTestJWT(t, "test-secret", jwt.MapClaims{"name": "Test", "iss": "dbaccess", "exp": time.Now().Add(-time.Hour).Unix()})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := sendQuery(t, server.Addr(), "AUTH JWT "+tt.token)
			if resp.Success {
				t.Error("Expected auth to fail")
			}
			if resp.Error == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestAuthAudience(t *testing.T) {
	server := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: "s", Audience: "cats"}, nil)

	ok := createTestJWT(t, "s", jwt.MapClaims{"email": "a@b.c", "aud": []string{"dogs", "cats"}})
	if resp := sendQuery(t, server.Addr(), "AUTH JWT "+ok); !resp.Success {
		t.Errorf("Expected audience match to succeed: %s", resp.Error)
	}
	wrong := createTestJWT(t, "s", jwt.MapClaims{"email": "a@b.c", "aud": "dogs"})
	if resp := sendQuery(t, server.Addr(), "AUTH JWT "+wrong); resp.Success {
		t.Error("Expected audience mismatch to fail")
	}
}

func TestParseAuthCommand(t *testing.T) {
	tests := []struct {
		line    string
		token   string
		wantErr bool
	}{
		{"AUTH JWT abc", "abc", false},
		{"auth jwt abc", "abc", false},
		{"AUTH JWT", "", true},
		{"AUTH BASIC abc", "", true},
		{"SELECT 1", "", true},
	}
	for _, tt := range tests {
		token, err := parseAuthCommand(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseAuthCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
		}
		if token != tt.token {
			t.Errorf("parseAuthCommand(%q) token = %q, expected %q", tt.line, token, tt.token)
		}
	}
}

// setupTLSTestServer creates a server with TLS enabled using test certificates
func setupTLSTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	tmpDir := t.TempDir()
	certFile := tmpDir + "/cert.pem"
	keyFile := tmpDir + "/key.pem"
	generateTestCertificate(t, certFile, keyFile)

	server := NewServer(setupTestAccess(t, nil))
	if err := server.StartTLS("127.0.0.1:0", certFile, keyFile); err != nil {
		t.Fatalf("Failed to start TLS server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server, certFile
}

// generateTestCertificate creates a self-signed certificate for testing
func generateTestCertificate(t *testing.T, certFile, keyFile string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate private key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "localhost",
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(time.Hour),
		KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}

	certOut, err := os.Create(certFile)
	if err != nil {
		t.Fatalf("Failed to create cert file: %v", err)
	}
	pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	certOut.Close()

	keyOut, err := os.Create(keyFile)
	if err != nil {
		t.Fatalf("Failed to create key file: %v", err)
	}
	pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	keyOut.Close()
}

func TestTLSServerConnection(t *testing.T) {
	server, certFile := setupTLSTestServer(t)
	if !server.TLSEnabled() {
		t.Error("Expected TLS to be enabled")
	}

	certPool := x509.NewCertPool()
	certData, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("Failed to read cert: %v", err)
	}
	certPool.AppendCertsFromPEM(certData)

	tlsConfig := &tls.Config{
		RootCAs:    certPool,
		ServerName: "localhost",
	}
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", server.Addr(), tlsConfig)
	if err != nil {
		t.Fatalf("Failed to connect with TLS: %v", err)
	}
	defer conn.Close()

	client := &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
	qr := decodeQuery(t, client.send("SELECT 42 AS answer"))
	if *qr.Data[0][0] != "42" {
		t.Errorf("Expected 42, got %s", *qr.Data[0][0])
	}
}

func TestTLSServerInvalidCert(t *testing.T) {
	server, _ := setupTLSTestServer(t)

	tlsConfig := &tls.Config{
		RootCAs:    x509.NewCertPool(),
		ServerName: "localhost",
	}
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", server.Addr(), tlsConfig)
	if err == nil {
		conn.Close()
		t.Error("Expected TLS connection to fail with invalid certificate")
	}
}

func TestSessionCheckAuth(t *testing.T) {
	sess := &session{id: "test"}
	if err := sess.checkAuth(); err != errAuthRequired {
		t.Errorf("Expected errAuthRequired, got %v", err)
	}

	sess.identity = &core.Identity{Name: "Test"}
	if err := sess.checkAuth(); err != nil {
		t.Errorf("Expected authenticated session, got %v", err)
	}

	sess.expiresAt = time.Now().Add(-time.Second)
	if err := sess.checkAuth(); err != errTokenExpired {
		t.Errorf("Expected errTokenExpired, got %v", err)
	}
	if sess.authenticated() {
		t.Error("Expected expired session to be logged out")
	}
}

func TestVerifyCustomClaims(t *testing.T) {
	config := &AuthConfig{Enabled: true, JWTSecret: "s", NameClaim: "preferred_username", EmailClaim: "mail"}

	token := createTestJWT(t, "s", jwt.MapClaims{"preferred_username": "cat", "mail": "cat@example.com"})
	identity, expiresAt, err := config.verify(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if identity.Name != "cat" || identity.Email != "cat@example.com" {
		t.Errorf("Expected cat <cat@example.com>, got %s", identity)
	}
	if expiresAt.IsZero() {
		t.Error("Expected expiry to be set")
	}

	var unconfigured *AuthConfig
	if _, _, err := unconfigured.verify(token); err == nil {
		t.Error("Expected error without configuration")
	}
}
